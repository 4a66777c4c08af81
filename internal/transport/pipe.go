// =============================================================================
// 文件: internal/transport/pipe.go
// 描述: 内存管道端点 - 测试用的 Conn 实现，走完整编解码路径
// =============================================================================
package transport

import (
	"errors"
	"net"
	"time"

	"github.com/mrcgq/69/internal/packet"
)

// PipeConn 内存中的端点，两端通过有界通道互联。
// 通道传递编码后的字节，使测试同样覆盖编解码路径。
type PipeConn struct {
	in      <-chan []byte
	out     chan<- []byte
	timeout time.Duration
	addr    pipeAddr
}

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

// Pipe 创建一对互联端点，容量足够容纳若干个完整窗口
func Pipe(timeout time.Duration) (*PipeConn, *PipeConn) {
	a2b := make(chan []byte, 1024)
	b2a := make(chan []byte, 1024)
	a := &PipeConn{in: b2a, out: a2b, timeout: timeout, addr: "pipe:a"}
	b := &PipeConn{in: a2b, out: b2a, timeout: timeout, addr: "pipe:b"}
	return a, b
}

// Send 投递一个包。通道满视为网络丢包，静默丢弃。
func (c *PipeConn) Send(p packet.Packet) error {
	select {
	case c.out <- p.Encode():
	default:
	}
	return nil
}

// Recv 接收一个包
func (c *PipeConn) Recv() (packet.Packet, error) {
	return c.RecvWithSize(0)
}

// RecvWithSize 接收一个包，限制 DATA 载荷解码大小
func (c *PipeConn) RecvWithSize(maxPayload int) (packet.Packet, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, errors.New("管道已关闭")
		}
		return packet.DecodeWithSize(data, maxPayload)
	case <-time.After(c.timeout):
		return nil, ErrTimeout
	}
}

// RemoteAddr 远端地址
func (c *PipeConn) RemoteAddr() net.Addr {
	return c.addr
}

// Close 关闭发送方向，重复 Close 不视为错误
func (c *PipeConn) Close() error {
	defer func() { recover() }()
	close(c.out)
	return nil
}
