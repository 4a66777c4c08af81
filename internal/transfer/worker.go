// =============================================================================
// 文件: internal/transfer/worker.go
// 描述: 传输编排器 - 单个文件传输的滑动窗口发送/接收状态机
// =============================================================================
package transfer

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mrcgq/69/internal/metrics"
	"github.com/mrcgq/69/internal/packet"
	"github.com/mrcgq/69/internal/transport"
)

const (
	// MaxRetries 连续无效轮询的放弃阈值
	MaxRetries = 6

	// timeoutBuffer 回拨发送时钟的安全余量，保证首轮窗口立即发出
	timeoutBuffer = time.Second
)

// ErrTransferTimeout 重试预算耗尽
var ErrTransferTimeout = fmt.Errorf("传输超时: 连续 %d 次轮询无进展", MaxRetries)

// Worker 驱动一次完整的文件传输。
// 独占一个已绑定远端的传输端点；全部状态 (窗口、基准块号、重试计数)
// 归本 Worker 的 goroutine 私有，传输之间互不共享任何可变状态。
type Worker struct {
	conn       transport.Conn
	path       string
	blkSize    int
	timeout    time.Duration
	windowsize uint16

	metrics *metrics.TFTPMetrics
}

// NewWorker 创建传输编排器。conn 的所有权随之移交。
func NewWorker(conn transport.Conn, path string, blkSize int, timeout time.Duration, windowsize uint16) *Worker {
	return &Worker{
		conn:       conn,
		path:       path,
		blkSize:    blkSize,
		timeout:    timeout,
		windowsize: windowsize,
	}
}

// SetMetrics 挂接指标收集器 (可选)
func (w *Worker) SetMetrics(m *metrics.TFTPMetrics) {
	w.metrics = m
}

// Send 发送路径: 读取源文件并以窗口为单位发出数据块，
// 同步运行到终态，返回终止原因。
func (w *Worker) Send() error {
	file, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("打开源文件失败: %w", err)
	}
	defer file.Close()

	return w.sendFile(file)
}

// Receive 接收路径: 把收到的数据块写入目标文件，同步运行到终态。
// 失败时删除残留的目标文件，删除失败只记日志，不覆盖原始错误。
func (w *Worker) Receive() error {
	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("创建目标文件失败: %w", err)
	}

	err = w.receiveFile(file)
	file.Close()

	if err != nil {
		if rmErr := os.Remove(w.path); rmErr != nil {
			log.Printf("[Worker] 清理残留文件 %s 失败: %v", w.path, rmErr)
		}
		return err
	}
	return nil
}

// sendFile 发送状态机
func (w *Worker) sendFile(file *os.File) error {
	base := uint16(1)
	window := NewWindow(w.windowsize, w.blkSize, file)

	for {
		eof, err := window.Fill()
		if err != nil {
			return err
		}

		retryCnt := 0
		sentOnce := false
		// 把发送时钟拨到超时之前，强制立即发出首轮窗口
		lastSend := time.Now().Add(-(w.timeout + timeoutBuffer))

	ackLoop:
		for {
			if time.Since(lastSend) >= w.timeout {
				if err := w.sendWindow(window, base); err != nil {
					return err
				}
				if sentOnce && w.metrics != nil {
					w.metrics.WindowRetransmits.Inc()
				}
				sentOnce = true
				lastSend = time.Now()
			}

			pkt, err := w.conn.Recv()
			if err != nil {
				// 超时或畸形包都消耗一次重试
				retryCnt++
				if retryCnt == MaxRetries {
					return ErrTransferTimeout
				}
				continue
			}

			switch p := pkt.(type) {
			case *packet.Ack:
				// 16 位回绕减法; diff 在 [0, windowsize] 内才是
				// 覆盖当前窗口的有效累积确认
				diff := p.Block - base
				if diff <= w.windowsize {
					base = p.Block + 1
					if err := window.Remove(int(diff) + 1); err != nil {
						return err
					}
					break ackLoop
				}
				// 窗口外的陈旧确认: 忽略，不计重试
			case *packet.Err:
				return p
			default:
				retryCnt++
				if retryCnt == MaxRetries {
					return ErrTransferTimeout
				}
			}
		}

		if eof && window.IsEmpty() {
			return nil
		}
	}
}

// sendWindow 把窗口内的全部块按块号递增发出
func (w *Worker) sendWindow(window *Window, base uint16) error {
	blockNum := base
	for _, frame := range window.Elements() {
		if err := w.conn.Send(&packet.Data{Block: blockNum, Payload: frame}); err != nil {
			return fmt.Errorf("发送数据块 %d 失败: %w", blockNum, err)
		}
		if w.metrics != nil {
			w.metrics.BlocksSent.Inc()
			w.metrics.BytesSent.Add(float64(len(frame)))
		}
		blockNum++
	}
	return nil
}

// receiveFile 接收状态机
func (w *Worker) receiveFile(file *os.File) error {
	expected := uint16(0)
	window := NewWindow(w.windowsize, w.blkSize, file)

	for {
		size := w.blkSize
		retryCnt := 0

	dataLoop:
		for {
			pkt, err := w.conn.RecvWithSize(w.blkSize)
			if err != nil {
				retryCnt++
				if retryCnt == MaxRetries {
					return ErrTransferTimeout
				}
				continue
			}

			switch p := pkt.(type) {
			case *packet.Data:
				if p.Block == expected+1 {
					expected = p.Block
					size = len(p.Payload)
					if err := window.Add(p.Payload); err != nil {
						return err
					}
					if w.metrics != nil {
						w.metrics.BlocksReceived.Inc()
						w.metrics.BytesReceived.Add(float64(size))
					}

					// 短块标志文件结束；窗口满则先落盘确认
					if size < w.blkSize || window.IsFull() {
						break dataLoop
					}
				}
				// 重复或乱序的数据块: 忽略，不计重试
			case *packet.Err:
				return p
			default:
				retryCnt++
				if retryCnt == MaxRetries {
					return ErrTransferTimeout
				}
			}
		}

		if err := window.Empty(); err != nil {
			return err
		}
		if err := w.conn.Send(&packet.Ack{Block: expected}); err != nil {
			return fmt.Errorf("发送确认失败: %w", err)
		}

		if size < w.blkSize {
			return nil
		}
	}
}

// IsTimeout 判断错误是否为重试预算耗尽
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTransferTimeout)
}
