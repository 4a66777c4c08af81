// =============================================================================
// 文件: internal/transfer/window.go
// 描述: 滑动窗口块缓冲 - 流控单元，隔离窗口管理与文件 I/O
// =============================================================================
package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// 缓冲层错误，出现即说明编排逻辑违反了窗口不变量
var (
	ErrWindowFull       = errors.New("窗口已满")
	ErrRemoveOutOfRange = errors.New("移除数量超出窗口持有块数")
)

// Window 固定容量的有序块缓冲，绑定一个打开的文件。
// 不变量: 持有块数不超过容量；只有最后一块可以短于块大小 (文件结束标志)；
// 块按插入顺序 (即块号顺序) 保存。
// 窗口被单个传输 goroutine 独占，不需要锁。
type Window struct {
	size    uint16
	blkSize int
	file    *os.File
	blocks  [][]byte
	eof     bool
}

// NewWindow 创建绑定到 file 的窗口
func NewWindow(size uint16, blkSize int, file *os.File) *Window {
	return &Window{
		size:    size,
		blkSize: blkSize,
		file:    file,
	}
}

// Fill 发送路径: 从文件补读块直到满容量或文件耗尽。
// 返回 true 表示文件已耗尽 (最后一次读取不足一个完整块，包括 0 字节)。
// 已缓冲的块不会被重复读取；文件耗尽后再调用不再读取。
func (w *Window) Fill() (bool, error) {
	if w.eof {
		return true, nil
	}

	for len(w.blocks) < int(w.size) {
		buf := make([]byte, w.blkSize)
		n, err := readBlock(w.file, buf)
		if err != nil {
			return false, fmt.Errorf("读取源文件失败: %w", err)
		}

		w.blocks = append(w.blocks, buf[:n])
		if n < w.blkSize {
			w.eof = true
			return true, nil
		}
	}
	return false, nil
}

// Add 接收路径: 追加一个收到的块
func (w *Window) Add(data []byte) error {
	if len(w.blocks) >= int(w.size) {
		return ErrWindowFull
	}
	w.blocks = append(w.blocks, data)
	return nil
}

// Remove 发送路径: 丢弃最早的 n 个已被累积确认的块
func (w *Window) Remove(n int) error {
	if n > len(w.blocks) {
		return fmt.Errorf("%w: %d > %d", ErrRemoveOutOfRange, n, len(w.blocks))
	}
	w.blocks = w.blocks[n:]
	return nil
}

// Empty 接收路径: 把持有的块按序写入文件并清空窗口
func (w *Window) Empty() error {
	for _, b := range w.blocks {
		if _, err := w.file.Write(b); err != nil {
			return fmt.Errorf("写入目标文件失败: %w", err)
		}
	}
	w.blocks = w.blocks[:0]
	return nil
}

// IsFull 窗口是否已满
func (w *Window) IsFull() bool {
	return len(w.blocks) >= int(w.size)
}

// IsEmpty 窗口是否为空
func (w *Window) IsEmpty() bool {
	return len(w.blocks) == 0
}

// Len 当前持有块数
func (w *Window) Len() int {
	return len(w.blocks)
}

// Elements 按序返回持有的块，供重传使用，不改变状态
func (w *Window) Elements() [][]byte {
	return w.blocks
}

// readBlock 读满 buf 或读到文件尾，返回实际读取字节数
func readBlock(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
