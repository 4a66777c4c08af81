// =============================================================================
// 文件: internal/client/client.go
// 描述: 客户端 - 发起读/写请求并完成选项协商，传输交给 Worker
// =============================================================================
package client

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/mrcgq/69/internal/packet"
	"github.com/mrcgq/69/internal/transfer"
	"github.com/mrcgq/69/internal/transport"
)

// Options 客户端传输选项。零值表示走协议默认 (512 字节块、窗口 1)，
// 此时请求不携带任何选项扩展。
type Options struct {
	BlockSize  int
	WindowSize int
	Timeout    time.Duration
}

const defaultTimeout = 5 * time.Second

// Get 从服务器下载 remoteName 到本地 localPath
func Get(server, remoteName, localPath string, opts Options) error {
	conn, p, err := request(server, packet.OpRrq, remoteName, opts, -1)
	if err != nil {
		return err
	}
	defer conn.Close()

	worker := transfer.NewWorker(conn, localPath, p.blkSize, p.timeout, p.windowsize)
	if err := worker.Receive(); err != nil {
		return fmt.Errorf("下载 %s 失败: %w", remoteName, err)
	}
	log.Printf("[Client] 已下载 %s -> %s", remoteName, localPath)
	return nil
}

// Put 把本地 localPath 上传为服务器上的 remoteName
func Put(server, remoteName, localPath string, opts Options) error {
	size, err := fileSize(localPath)
	if err != nil {
		return err
	}

	conn, p, err := request(server, packet.OpWrq, remoteName, opts, size)
	if err != nil {
		return err
	}
	defer conn.Close()

	worker := transfer.NewWorker(conn, localPath, p.blkSize, p.timeout, p.windowsize)
	if err := worker.Send(); err != nil {
		return fmt.Errorf("上传 %s 失败: %w", localPath, err)
	}
	log.Printf("[Client] 已上传 %s -> %s", localPath, remoteName)
	return nil
}

// negotiated 协商生效的参数
type negotiated struct {
	blkSize    int
	windowsize uint16
	timeout    time.Duration
}

// request 发送请求并处理首个回应，返回可交给 Worker 的端点与参数。
// tsize >= 0 时 (写请求) 在选项中携带文件大小。
func request(server string, op uint16, remoteName string, opts Options, tsize int64) (transport.Conn, negotiated, error) {
	p := negotiated{
		blkSize:    packet.DefaultBlockSize,
		windowsize: packet.DefaultWindowSize,
		timeout:    opts.Timeout,
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}

	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, p, fmt.Errorf("解析服务器地址失败: %w", err)
	}
	conn, err := transport.NewRequestConn(addr, p.timeout)
	if err != nil {
		return nil, p, err
	}

	req := &packet.Request{
		Opcode:   op,
		Filename: remoteName,
		Mode:     "octet",
		Options:  buildOptions(opts, tsize),
	}

	for retry := 0; retry < transfer.MaxRetries; retry++ {
		if err := conn.Send(req); err != nil {
			conn.Close()
			return nil, p, fmt.Errorf("发送请求失败: %w", err)
		}

		pkt, err := conn.Recv()
		if err != nil {
			continue
		}

		switch resp := pkt.(type) {
		case *packet.Oack:
			if err := applyOack(&p, req, resp); err != nil {
				conn.Send(&packet.Err{Code: packet.ErrOptionNegotiation, Msg: err.Error()})
				conn.Close()
				return nil, p, err
			}
			if op == packet.OpRrq {
				// 读请求的 OACK 用 Ack(0) 应答后数据才会到来
				if err := conn.Send(&packet.Ack{Block: 0}); err != nil {
					conn.Close()
					return nil, p, err
				}
			}
			return conn, p, nil

		case *packet.Data:
			// 服务端忽略了选项，经典流程: 首个数据块已到达
			if op == packet.OpRrq {
				return transport.NewPrefetched(conn, resp), p, nil
			}

		case *packet.Ack:
			// 经典流程的写请求确认
			if op == packet.OpWrq && resp.Block == 0 {
				return conn, p, nil
			}

		case *packet.Err:
			conn.Close()
			return nil, p, resp
		}
	}

	conn.Close()
	return nil, p, fmt.Errorf("请求无回应: 重试 %d 次后放弃", transfer.MaxRetries)
}

// buildOptions 根据客户端选项构造请求的选项扩展
func buildOptions(opts Options, tsize int64) []packet.Option {
	var result []packet.Option
	if opts.BlockSize > 0 && opts.BlockSize != packet.DefaultBlockSize {
		result = append(result, packet.Option{
			Name:  packet.OptionBlockSize,
			Value: strconv.Itoa(opts.BlockSize),
		})
	}
	if opts.WindowSize > 1 {
		result = append(result, packet.Option{
			Name:  packet.OptionWindowSize,
			Value: strconv.Itoa(opts.WindowSize),
		})
	}
	if opts.Timeout > 0 && opts.Timeout != defaultTimeout {
		secs := int(opts.Timeout / time.Second)
		if secs >= 1 && secs <= 255 {
			result = append(result, packet.Option{
				Name:  packet.OptionTimeout,
				Value: strconv.Itoa(secs),
			})
		}
	}
	if tsize >= 0 {
		result = append(result, packet.Option{
			Name:  packet.OptionTsize,
			Value: strconv.FormatInt(tsize, 10),
		})
	}
	return result
}

// applyOack 校验并应用服务端确认的选项。
// 服务端只能确认请求过的选项，且数值不得超过请求值。
func applyOack(p *negotiated, req *packet.Request, oack *packet.Oack) error {
	for _, opt := range oack.Options {
		requested, ok := req.GetOption(opt.Name)
		if !ok {
			return fmt.Errorf("服务端确认了未请求的选项: %s", opt.Name)
		}

		switch opt.Name {
		case packet.OptionBlockSize:
			v, err := strconv.Atoi(opt.Value)
			want, _ := strconv.Atoi(requested)
			if err != nil || v < 8 || v > want {
				return fmt.Errorf("非法的块大小确认: %s", opt.Value)
			}
			p.blkSize = v

		case packet.OptionWindowSize:
			v, err := strconv.Atoi(opt.Value)
			want, _ := strconv.Atoi(requested)
			if err != nil || v < 1 || v > want {
				return fmt.Errorf("非法的窗口大小确认: %s", opt.Value)
			}
			p.windowsize = uint16(v)

		case packet.OptionTimeout:
			v, err := strconv.Atoi(opt.Value)
			if err != nil || v < 1 || v > 255 {
				return fmt.Errorf("非法的超时确认: %s", opt.Value)
			}
			p.timeout = time.Duration(v) * time.Second

		case packet.OptionTsize:
			// 信息性选项，无需应用
		}
	}
	return nil
}

// fileSize 上传前获取源文件大小
func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("源文件不可用: %w", err)
	}
	return info.Size(), nil
}
