// =============================================================================
// 文件: internal/transport/conn.go
// 描述: 传输端点抽象 - 一个端点固定绑定一个远端，为单个传输独占
// =============================================================================
package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mrcgq/69/internal/packet"
)

// ErrTimeout 在轮询窗口内没有收到任何包
var ErrTimeout = errors.New("接收超时")

// Conn 传输端点。Recv 的阻塞时间由端点自身的轮询超时限定，
// 超时返回 ErrTimeout，由调用方决定重试或放弃。
type Conn interface {
	Send(p packet.Packet) error
	Recv() (packet.Packet, error)
	RecvWithSize(maxPayload int) (packet.Packet, error)
	RemoteAddr() net.Addr
	Close() error
}

// UDPConn 基于未连接 UDP socket 的端点实现。
// 不使用 connect 是为了支持 TFTP 的端口切换：客户端向主端口发请求，
// 服务端从随机端口回应，首个回应把远端固定到实际来源。
type UDPConn struct {
	sock    *net.UDPConn
	remote  *net.UDPAddr
	timeout time.Duration
	pinned  bool // 远端是否已固定
	buf     []byte
}

// NewConn 创建已固定远端的端点 (服务端工作线程使用)
func NewConn(remote *net.UDPAddr, timeout time.Duration) (*UDPConn, error) {
	sock, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("创建 socket 失败: %w", err)
	}
	return &UDPConn{
		sock:    sock,
		remote:  remote,
		timeout: timeout,
		pinned:  true,
		buf:     make([]byte, 65535),
	}, nil
}

// NewRequestConn 创建发起请求用的端点 (客户端使用)。
// 远端初始指向服务端主端口，收到同主机的首个回应后固定到其来源端口。
func NewRequestConn(server *net.UDPAddr, timeout time.Duration) (*UDPConn, error) {
	sock, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("创建 socket 失败: %w", err)
	}
	return &UDPConn{
		sock:    sock,
		remote:  server,
		timeout: timeout,
		pinned:  false,
		buf:     make([]byte, 65535),
	}, nil
}

// Send 向远端发送一个包
func (c *UDPConn) Send(p packet.Packet) error {
	_, err := c.sock.WriteToUDP(p.Encode(), c.remote)
	return err
}

// Recv 接收一个包，不限制载荷大小
func (c *UDPConn) Recv() (packet.Packet, error) {
	return c.RecvWithSize(0)
}

// RecvWithSize 接收一个包，maxPayload > 0 时限制 DATA 载荷解码大小。
// 来自其他地址的包静默丢弃，不消耗本次轮询之外的时间。
func (c *UDPConn) RecvWithSize(maxPayload int) (packet.Packet, error) {
	deadline := time.Now().Add(c.timeout)
	for {
		if err := c.sock.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		n, from, err := c.sock.ReadFromUDP(c.buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return nil, ErrTimeout
			}
			return nil, err
		}

		if c.pinned {
			if !from.IP.Equal(c.remote.IP) || from.Port != c.remote.Port {
				continue
			}
		} else {
			if !from.IP.Equal(c.remote.IP) {
				continue
			}
			c.remote = from
			c.pinned = true
		}

		return packet.DecodeWithSize(c.buf[:n], maxPayload)
	}
}

// RemoteAddr 远端地址
func (c *UDPConn) RemoteAddr() net.Addr {
	return c.remote
}

// LocalAddr 本地地址 (测试用)
func (c *UDPConn) LocalAddr() net.Addr {
	return c.sock.LocalAddr()
}

// Close 释放 socket
func (c *UDPConn) Close() error {
	return c.sock.Close()
}
