// =============================================================================
// 文件: internal/transport/conn_test.go
// 描述: UDP 端点测试 - 超时映射、端口切换固定与异源包过滤
// =============================================================================
package transport

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/mrcgq/69/internal/packet"
)

// listenLoopback 开一个回环 UDP socket
func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	sock, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("创建 socket 失败: %v", err)
	}
	t.Cleanup(func() { sock.Close() })
	return sock
}

func TestUDPConnRecvTimeout(t *testing.T) {
	silent := listenLoopback(t)

	conn, err := NewConn(silent.LocalAddr().(*net.UDPAddr), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("创建端点失败: %v", err)
	}
	defer conn.Close()

	start := time.Now()
	_, err = conn.Recv()
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("应当返回 ErrTimeout: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("超时返回过慢: %v", elapsed)
	}
}

func TestUDPConnPortSwitchPinning(t *testing.T) {
	main := listenLoopback(t)
	worker := listenLoopback(t)
	foreign := listenLoopback(t)

	conn, err := NewRequestConn(main.LocalAddr().(*net.UDPAddr), 200*time.Millisecond)
	if err != nil {
		t.Fatalf("创建端点失败: %v", err)
	}
	defer conn.Close()

	req := &packet.Request{Opcode: packet.OpRrq, Filename: "f", Mode: "octet"}
	if err := conn.Send(req); err != nil {
		t.Fatalf("发送请求失败: %v", err)
	}

	buf := make([]byte, 2048)
	main.SetReadDeadline(time.Now().Add(time.Second))
	_, clientAddr, err := main.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("主端口接收请求失败: %v", err)
	}

	// 首个回应来自工作端口: 远端在此固定
	if _, err := worker.WriteToUDP((&packet.Data{Block: 1, Payload: []byte("x")}).Encode(), clientAddr); err != nil {
		t.Fatalf("工作端口回应失败: %v", err)
	}
	pkt, err := conn.Recv()
	if err != nil {
		t.Fatalf("接收回应失败: %v", err)
	}
	if d, ok := pkt.(*packet.Data); !ok || d.Block != 1 {
		t.Fatalf("回应不匹配: %+v", pkt)
	}
	if conn.RemoteAddr().String() != worker.LocalAddr().String() {
		t.Errorf("远端未固定到工作端口: got %s, want %s",
			conn.RemoteAddr(), worker.LocalAddr())
	}

	// 固定之后异源包被静默丢弃
	if _, err := foreign.WriteToUDP((&packet.Ack{Block: 9}).Encode(), clientAddr); err != nil {
		t.Fatalf("异源发送失败: %v", err)
	}
	if _, err := conn.Recv(); !errors.Is(err, ErrTimeout) {
		t.Errorf("异源包应当被丢弃直至超时: %v", err)
	}

	// 已固定的远端仍然畅通
	if _, err := worker.WriteToUDP((&packet.Data{Block: 2, Payload: []byte("y")}).Encode(), clientAddr); err != nil {
		t.Fatalf("工作端口发送失败: %v", err)
	}
	pkt, err = conn.Recv()
	if err != nil {
		t.Fatalf("接收失败: %v", err)
	}
	if d, ok := pkt.(*packet.Data); !ok || d.Block != 2 {
		t.Errorf("数据块不匹配: %+v", pkt)
	}
}

func TestPipeConnLossAndTimeout(t *testing.T) {
	a, b := Pipe(50 * time.Millisecond)

	if err := a.Send(&packet.Ack{Block: 1}); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	pkt, err := b.Recv()
	if err != nil {
		t.Fatalf("接收失败: %v", err)
	}
	if ack, ok := pkt.(*packet.Ack); !ok || ack.Block != 1 {
		t.Errorf("包不匹配: %+v", pkt)
	}

	if _, err := b.Recv(); !errors.Is(err, ErrTimeout) {
		t.Errorf("空管道应当超时: %v", err)
	}
}
