// =============================================================================
// 文件: internal/transport/prefetch.go
// 描述: 预读端点 - 把协商阶段已收到的首个包交还给传输循环
// =============================================================================
package transport

import "github.com/mrcgq/69/internal/packet"

// Prefetched 包装一个端点，首次 Recv 返回预读的包。
// 客户端协商时可能直接收到首个 DATA (服务端忽略选项的经典流程)，
// 该包属于传输循环而不是协商逻辑。
type Prefetched struct {
	Conn
	first packet.Packet
}

// NewPrefetched 创建预读端点
func NewPrefetched(conn Conn, first packet.Packet) *Prefetched {
	return &Prefetched{Conn: conn, first: first}
}

// Recv 首次返回预读包，之后透传
func (c *Prefetched) Recv() (packet.Packet, error) {
	return c.RecvWithSize(0)
}

// RecvWithSize 首次返回预读包，之后透传
func (c *Prefetched) RecvWithSize(maxPayload int) (packet.Packet, error) {
	if c.first != nil {
		p := c.first
		c.first = nil
		return p, nil
	}
	return c.Conn.RecvWithSize(maxPayload)
}
