// =============================================================================
// 文件: internal/server/server.go
// 描述: 请求分发器 - 解析读/写请求、协商选项、为每个传输派生独立 Worker
// =============================================================================
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrcgq/69/internal/config"
	"github.com/mrcgq/69/internal/metrics"
	"github.com/mrcgq/69/internal/packet"
	"github.com/mrcgq/69/internal/transfer"
	"github.com/mrcgq/69/internal/transport"
)

// Server TFTP 请求分发器。主 socket 只处理请求包，
// 每个被接受的传输都在新 goroutine 上用专属端点跑完。
type Server struct {
	cfg  *config.Config
	sock *net.UDPConn

	m               *metrics.TFTPMetrics
	activeTransfers int64
	localAddr       atomic.Value // *net.UDPAddr
}

// New 创建分发器
func New(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// SetMetrics 挂接指标收集器 (可选)
func (s *Server) SetMetrics(m *metrics.TFTPMetrics) {
	s.m = m
}

// ActiveTransfers 当前活跃传输数
func (s *Server) ActiveTransfers() int64 {
	return atomic.LoadInt64(&s.activeTransfers)
}

// LocalAddr 实际监听地址。Run 完成监听前返回 nil。
func (s *Server) LocalAddr() *net.UDPAddr {
	v, _ := s.localAddr.Load().(*net.UDPAddr)
	return v
}

// Run 运行请求循环，直到 ctx 取消或监听出错。
// 活跃传输不会被中途取消，各自跑到终态。
func (s *Server) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("解析监听地址失败: %w", err)
	}
	sock, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}
	s.sock = sock
	s.localAddr.Store(sock.LocalAddr().(*net.UDPAddr))

	log.Printf("[Server] TFTP 服务启动: %s, 根目录 %s", s.cfg.Listen, s.cfg.RootDir)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		sock.Close()
		return nil
	})

	g.Go(func() error {
		buf := make([]byte, 65535)
		for {
			n, raddr, err := sock.ReadFromUDP(buf)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("读取请求失败: %w", err)
			}

			data := make([]byte, n)
			copy(data, buf[:n])
			go s.handleRequest(data, raddr)
		}
	})

	return g.Wait()
}

// handleRequest 处理主端口收到的一个数据报
func (s *Server) handleRequest(data []byte, raddr *net.UDPAddr) {
	pkt, err := packet.Decode(data)
	if err != nil {
		s.reject(raddr, packet.ErrIllegalOperation, "无法解析请求")
		return
	}

	req, ok := pkt.(*packet.Request)
	if !ok {
		// 主端口只接受请求包，其余一律回错误
		s.reject(raddr, packet.ErrUnknownTransferID, "期望读/写请求")
		return
	}

	path, err := s.resolvePath(req.Filename)
	if err != nil {
		s.reject(raddr, packet.ErrAccessViolation, err.Error())
		return
	}

	switch req.Opcode {
	case packet.OpRrq:
		s.handleRead(req, path, raddr)
	case packet.OpWrq:
		s.handleWrite(req, path, raddr)
	}
}

// handleRead 读请求: 协商后向客户端发送文件
func (s *Server) handleRead(req *packet.Request, path string, raddr *net.UDPAddr) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.reject(raddr, packet.ErrFileNotFound, "文件不存在")
		return
	}

	params, replyOpts := s.negotiate(req, info.Size())
	conn, err := transport.NewConn(raddr, params.timeout)
	if err != nil {
		log.Printf("[Server] 为 %s 创建端点失败: %v", raddr, err)
		return
	}
	defer conn.Close()

	if len(replyOpts) > 0 {
		// OACK 需要等到客户端 Ack(0) 才能开始发数据
		if err := s.confirmOack(conn, replyOpts); err != nil {
			log.Printf("[Server] 与 %s 的选项协商失败: %v", raddr, err)
			return
		}
	}

	log.Printf("[Server] 开始发送 %s -> %s (blk=%d win=%d)",
		req.Filename, raddr, params.blkSize, params.windowsize)
	s.runWorker(conn, path, params, metrics.DirectionSend, req.Filename, raddr)
}

// handleWrite 写请求: 协商后接收客户端上传的文件
func (s *Server) handleWrite(req *packet.Request, path string, raddr *net.UDPAddr) {
	if s.cfg.ReadOnly {
		s.reject(raddr, packet.ErrAccessViolation, "服务器为只读模式")
		return
	}
	if _, err := os.Stat(path); err == nil && !s.cfg.AllowOverwrite {
		s.reject(raddr, packet.ErrFileExists, "文件已存在")
		return
	}

	params, replyOpts := s.negotiate(req, -1)
	conn, err := transport.NewConn(raddr, params.timeout)
	if err != nil {
		log.Printf("[Server] 为 %s 创建端点失败: %v", raddr, err)
		return
	}
	defer conn.Close()

	// OACK 本身充当对请求的确认；经典流程回 Ack(0)
	var first packet.Packet = &packet.Ack{Block: 0}
	if len(replyOpts) > 0 {
		first = &packet.Oack{Options: replyOpts}
	}
	if err := conn.Send(first); err != nil {
		log.Printf("[Server] 回应 %s 失败: %v", raddr, err)
		return
	}

	log.Printf("[Server] 开始接收 %s <- %s (blk=%d win=%d)",
		req.Filename, raddr, params.blkSize, params.windowsize)
	s.runWorker(conn, path, params, metrics.DirectionReceive, req.Filename, raddr)
}

// runWorker 在当前 goroutine 上跑完一次传输并记录结果
func (s *Server) runWorker(conn transport.Conn, path string, p transferParams, direction, name string, raddr *net.UDPAddr) {
	worker := transfer.NewWorker(conn, path, p.blkSize, p.timeout, p.windowsize)
	if s.m != nil {
		worker.SetMetrics(s.m)
		s.m.TransferStarted(direction)
	}
	atomic.AddInt64(&s.activeTransfers, 1)

	var err error
	if direction == metrics.DirectionSend {
		err = worker.Send()
	} else {
		err = worker.Receive()
	}

	atomic.AddInt64(&s.activeTransfers, -1)
	if s.m != nil {
		s.m.TransferDone(direction, err)
	}

	if err != nil {
		log.Printf("[Server] 传输 %s (%s) 失败: %v", name, raddr, err)
		// 本地失败时尽力告知对端；对端报告的错误不再回传
		var perr *packet.Err
		if !errors.As(err, &perr) {
			conn.Send(&packet.Err{Code: packet.ErrNotDefined, Msg: err.Error()})
		}
		return
	}
	log.Printf("[Server] 传输 %s (%s) 完成", name, raddr)
}

// confirmOack 发送 OACK 并等待 Ack(0)，超时按重试预算重发
func (s *Server) confirmOack(conn transport.Conn, opts []packet.Option) error {
	oack := &packet.Oack{Options: opts}
	for retry := 0; retry < transfer.MaxRetries; retry++ {
		if err := conn.Send(oack); err != nil {
			return err
		}

		pkt, err := conn.Recv()
		if err != nil {
			continue
		}
		switch p := pkt.(type) {
		case *packet.Ack:
			if p.Block == 0 {
				return nil
			}
		case *packet.Err:
			return p
		}
	}
	return fmt.Errorf("等待选项确认超时")
}

// transferParams 协商结果
type transferParams struct {
	blkSize    int
	windowsize uint16
	timeout    time.Duration
}

// negotiate 按出现顺序处理客户端选项，返回生效参数与需要回应的选项。
// tsize >= 0 时 (读请求) 以实际文件大小回应 tsize 选项。
func (s *Server) negotiate(req *packet.Request, tsize int64) (transferParams, []packet.Option) {
	p := transferParams{
		blkSize:    packet.DefaultBlockSize,
		windowsize: packet.DefaultWindowSize,
		timeout:    s.cfg.Timeout(),
	}

	var reply []packet.Option
	for _, opt := range req.Options {
		switch opt.Name {
		case packet.OptionBlockSize:
			v, err := strconv.Atoi(opt.Value)
			if err != nil || v < 8 {
				continue
			}
			if v > s.cfg.Transfer.MaxBlockSize {
				v = s.cfg.Transfer.MaxBlockSize
			}
			p.blkSize = v
			reply = append(reply, packet.Option{Name: opt.Name, Value: strconv.Itoa(v)})

		case packet.OptionWindowSize:
			v, err := strconv.Atoi(opt.Value)
			if err != nil || v < 1 {
				continue
			}
			if v > s.cfg.Transfer.MaxWindowSize {
				v = s.cfg.Transfer.MaxWindowSize
			}
			p.windowsize = uint16(v)
			reply = append(reply, packet.Option{Name: opt.Name, Value: strconv.Itoa(v)})

		case packet.OptionTimeout:
			v, err := strconv.Atoi(opt.Value)
			if err != nil || v < 1 || v > 255 {
				continue
			}
			p.timeout = time.Duration(v) * time.Second
			reply = append(reply, packet.Option{Name: opt.Name, Value: strconv.Itoa(v)})

		case packet.OptionTsize:
			if tsize >= 0 {
				reply = append(reply, packet.Option{Name: opt.Name, Value: strconv.FormatInt(tsize, 10)})
			} else {
				reply = append(reply, packet.Option{Name: opt.Name, Value: opt.Value})
			}
		}
	}
	return p, reply
}

// resolvePath 把请求文件名限制在根目录内
func (s *Server) resolvePath(name string) (string, error) {
	if name == "" {
		return "", errors.New("文件名为空")
	}

	root, err := filepath.Abs(s.cfg.RootDir)
	if err != nil {
		return "", fmt.Errorf("根目录无效: %w", err)
	}

	// 先绝对化再清洗，消除 .. 与多余分隔符
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	full := filepath.Join(root, clean)

	if full != root && !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		return "", errors.New("路径越出根目录")
	}
	return full, nil
}

// reject 用一次性端点回绝一个请求
func (s *Server) reject(raddr *net.UDPAddr, code uint16, msg string) {
	log.Printf("[Server] 拒绝 %s: %s", raddr, msg)
	conn, err := transport.NewConn(raddr, time.Second)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.Send(&packet.Err{Code: code, Msg: msg})
}
