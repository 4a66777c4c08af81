// =============================================================================
// 文件: internal/packet/packet_test.go
// 描述: TFTP 包编解码测试
// =============================================================================
package packet

import (
	"bytes"
	"testing"
)

func TestRequestEncodeDecode(t *testing.T) {
	original := &Request{
		Opcode:   OpRrq,
		Filename: "firmware.bin",
		Mode:     "octet",
		Options: []Option{
			{Name: "blksize", Value: "1428"},
			{Name: "windowsize", Value: "8"},
		},
	}

	decoded, err := Decode(original.Encode())
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}

	req, ok := decoded.(*Request)
	if !ok {
		t.Fatalf("类型不匹配: got %T, want *Request", decoded)
	}
	if req.Opcode != OpRrq {
		t.Errorf("Opcode 不匹配: got %d, want %d", req.Opcode, OpRrq)
	}
	if req.Filename != original.Filename {
		t.Errorf("Filename 不匹配: got %s, want %s", req.Filename, original.Filename)
	}
	if req.Mode != "octet" {
		t.Errorf("Mode 不匹配: got %s, want octet", req.Mode)
	}
	if len(req.Options) != 2 {
		t.Fatalf("选项数量不匹配: got %d, want 2", len(req.Options))
	}
	if v, ok := req.GetOption("BLKSIZE"); !ok || v != "1428" {
		t.Errorf("blksize 选项不匹配: got %s (%v)", v, ok)
	}
	if v, ok := req.GetOption("windowsize"); !ok || v != "8" {
		t.Errorf("windowsize 选项不匹配: got %s (%v)", v, ok)
	}
}

func TestRequestModeValidation(t *testing.T) {
	// 模式大小写不敏感
	req := &Request{Opcode: OpWrq, Filename: "a", Mode: "OCTET"}
	decoded, err := Decode(req.Encode())
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if decoded.(*Request).Mode != "octet" {
		t.Errorf("模式未归一化: got %s", decoded.(*Request).Mode)
	}

	// 未知模式拒绝
	bad := &Request{Opcode: OpWrq, Filename: "a", Mode: "mail"}
	if _, err := Decode(bad.Encode()); err == nil {
		t.Error("未知模式应当被拒绝")
	}
}

func TestDataEncodeDecode(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 512)
	original := &Data{Block: 65535, Payload: payload}

	decoded, err := Decode(original.Encode())
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}

	d, ok := decoded.(*Data)
	if !ok {
		t.Fatalf("类型不匹配: got %T, want *Data", decoded)
	}
	if d.Block != 65535 {
		t.Errorf("Block 不匹配: got %d, want 65535", d.Block)
	}
	if !bytes.Equal(d.Payload, payload) {
		t.Errorf("Payload 不匹配: %d 字节", len(d.Payload))
	}
}

func TestDataZeroPayload(t *testing.T) {
	// 零长度数据块是合法的文件结束标志
	original := &Data{Block: 7}
	decoded, err := Decode(original.Encode())
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if d := decoded.(*Data); len(d.Payload) != 0 {
		t.Errorf("空载荷不匹配: got %d 字节", len(d.Payload))
	}
}

func TestDecodeWithSizeLimit(t *testing.T) {
	pkt := &Data{Block: 1, Payload: bytes.Repeat([]byte{1}, 100)}
	encoded := pkt.Encode()

	if _, err := DecodeWithSize(encoded, 100); err != nil {
		t.Errorf("等于限制的载荷应当通过: %v", err)
	}
	if _, err := DecodeWithSize(encoded, 99); err == nil {
		t.Error("超限载荷应当被拒绝")
	}
	if _, err := DecodeWithSize(encoded, 0); err != nil {
		t.Errorf("0 表示不限制: %v", err)
	}
}

func TestAckEncodeDecode(t *testing.T) {
	decoded, err := Decode((&Ack{Block: 30000}).Encode())
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if a := decoded.(*Ack); a.Block != 30000 {
		t.Errorf("Block 不匹配: got %d, want 30000", a.Block)
	}
}

func TestErrEncodeDecode(t *testing.T) {
	decoded, err := Decode((&Err{Code: ErrFileNotFound, Msg: "no such file"}).Encode())
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	e := decoded.(*Err)
	if e.Code != ErrFileNotFound {
		t.Errorf("Code 不匹配: got %d, want %d", e.Code, ErrFileNotFound)
	}
	if e.Msg != "no such file" {
		t.Errorf("Msg 不匹配: got %s", e.Msg)
	}

	// Err 同时是 Go error
	var _ error = e
}

func TestOackEncodeDecode(t *testing.T) {
	original := &Oack{Options: []Option{
		{Name: "blksize", Value: "1024"},
		{Name: "tsize", Value: "4096"},
	}}

	decoded, err := Decode(original.Encode())
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	o := decoded.(*Oack)
	if len(o.Options) != 2 {
		t.Fatalf("选项数量不匹配: got %d, want 2", len(o.Options))
	}
	if o.Options[0].Name != "blksize" || o.Options[0].Value != "1024" {
		t.Errorf("选项 0 不匹配: %+v", o.Options[0])
	}
	if o.Options[1].Name != "tsize" || o.Options[1].Value != "4096" {
		t.Errorf("选项 1 不匹配: %+v", o.Options[1])
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"包太短", []byte{0, 3, 0}},
		{"未知操作码", []byte{0, 99, 0, 0}},
		{"请求缺少模式", []byte{0, 1, 'a', 0}},
		{"请求字段未以NUL结尾", []byte{0, 1, 'a', 0, 'o', 'c', 't', 'e', 't'}},
		{"OACK选项不成对", []byte{0, 6, 'b', 0, '1', 0, 'x', 0}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Decode(c.data); err == nil {
				t.Errorf("畸形包应当解码失败: %v", c.data)
			}
		})
	}
}
