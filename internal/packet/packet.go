// =============================================================================
// 文件: internal/packet/packet.go
// 描述: TFTP 包编解码 - RRQ/WRQ/DATA/ACK/ERROR/OACK 与选项扩展
// =============================================================================
package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// 操作码
const (
	OpRrq   uint16 = 1 // 读请求
	OpWrq   uint16 = 2 // 写请求
	OpData  uint16 = 3 // 数据块
	OpAck   uint16 = 4 // 累积确认
	OpError uint16 = 5 // 错误
	OpOack  uint16 = 6 // 选项确认
)

// 错误码 (RFC 1350 / RFC 2347)
const (
	ErrNotDefined        uint16 = 0
	ErrFileNotFound      uint16 = 1
	ErrAccessViolation   uint16 = 2
	ErrDiskFull          uint16 = 3
	ErrIllegalOperation  uint16 = 4
	ErrUnknownTransferID uint16 = 5
	ErrFileExists        uint16 = 6
	ErrOptionNegotiation uint16 = 8
)

// 选项名 (RFC 2348 / RFC 2349 / RFC 7440)
const (
	OptionBlockSize  = "blksize"
	OptionWindowSize = "windowsize"
	OptionTimeout    = "timeout"
	OptionTsize      = "tsize"
)

// 协议默认值
const (
	DefaultBlockSize  = 512
	DefaultWindowSize = 1
)

// Packet TFTP 包的统一接口
type Packet interface {
	Op() uint16
	Encode() []byte
}

// Option 请求携带的选项 (保持出现顺序)
type Option struct {
	Name  string
	Value string
}

// Request 读/写请求
type Request struct {
	Opcode   uint16
	Filename string
	Mode     string
	Options  []Option
}

// Data 数据块
type Data struct {
	Block   uint16
	Payload []byte
}

// Ack 累积确认
type Ack struct {
	Block uint16
}

// Err 错误包 (对端报告的终止性错误)
type Err struct {
	Code uint16
	Msg  string
}

// Oack 选项确认
type Oack struct {
	Options []Option
}

func (p *Request) Op() uint16 { return p.Opcode }
func (p *Data) Op() uint16    { return OpData }
func (p *Ack) Op() uint16     { return OpAck }
func (p *Err) Op() uint16     { return OpError }
func (p *Oack) Op() uint16    { return OpOack }

// GetOption 按名字查找选项 (大小写不敏感)
func (p *Request) GetOption(name string) (string, bool) {
	for _, o := range p.Options {
		if strings.EqualFold(o.Name, name) {
			return o.Value, true
		}
	}
	return "", false
}

// Error 让对端错误可以直接作为 Go error 传播
func (p *Err) Error() string {
	return fmt.Sprintf("对端错误 %d: %s", p.Code, p.Msg)
}

// Encode 编码读/写请求
func (p *Request) Encode() []byte {
	var buf bytes.Buffer
	writeUint16(&buf, p.Opcode)
	buf.WriteString(p.Filename)
	buf.WriteByte(0)
	buf.WriteString(p.Mode)
	buf.WriteByte(0)
	for _, o := range p.Options {
		buf.WriteString(o.Name)
		buf.WriteByte(0)
		buf.WriteString(o.Value)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// Encode 编码数据块
func (p *Data) Encode() []byte {
	buf := make([]byte, 4+len(p.Payload))
	binary.BigEndian.PutUint16(buf[0:2], OpData)
	binary.BigEndian.PutUint16(buf[2:4], p.Block)
	copy(buf[4:], p.Payload)
	return buf
}

// Encode 编码确认
func (p *Ack) Encode() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint16(buf[0:2], OpAck)
	binary.BigEndian.PutUint16(buf[2:4], p.Block)
	return buf
}

// Encode 编码错误包
func (p *Err) Encode() []byte {
	buf := make([]byte, 4+len(p.Msg)+1)
	binary.BigEndian.PutUint16(buf[0:2], OpError)
	binary.BigEndian.PutUint16(buf[2:4], p.Code)
	copy(buf[4:], p.Msg)
	return buf
}

// Encode 编码选项确认
func (p *Oack) Encode() []byte {
	var buf bytes.Buffer
	writeUint16(&buf, OpOack)
	for _, o := range p.Options {
		buf.WriteString(o.Name)
		buf.WriteByte(0)
		buf.WriteString(o.Value)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// Decode 解码 TFTP 包
func Decode(data []byte) (Packet, error) {
	return DecodeWithSize(data, 0)
}

// DecodeWithSize 解码 TFTP 包，maxPayload > 0 时限制 DATA 载荷大小
// (对应协商后的块大小，超限视为畸形包)
func DecodeWithSize(data []byte, maxPayload int) (Packet, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("包太短: %d 字节", len(data))
	}

	op := binary.BigEndian.Uint16(data[0:2])
	switch op {
	case OpRrq, OpWrq:
		return decodeRequest(op, data[2:])
	case OpData:
		payload := data[4:]
		if maxPayload > 0 && len(payload) > maxPayload {
			return nil, fmt.Errorf("数据载荷超限: %d > %d", len(payload), maxPayload)
		}
		p := &Data{Block: binary.BigEndian.Uint16(data[2:4])}
		if len(payload) > 0 {
			p.Payload = make([]byte, len(payload))
			copy(p.Payload, payload)
		}
		return p, nil
	case OpAck:
		return &Ack{Block: binary.BigEndian.Uint16(data[2:4])}, nil
	case OpError:
		msg := data[4:]
		if i := bytes.IndexByte(msg, 0); i >= 0 {
			msg = msg[:i]
		}
		return &Err{Code: binary.BigEndian.Uint16(data[2:4]), Msg: string(msg)}, nil
	case OpOack:
		opts, err := decodeOptions(data[2:])
		if err != nil {
			return nil, err
		}
		return &Oack{Options: opts}, nil
	default:
		return nil, fmt.Errorf("未知操作码: %d", op)
	}
}

// decodeRequest 解码请求体: 文件名 0 模式 0 [选项名 0 选项值 0]...
func decodeRequest(op uint16, body []byte) (*Request, error) {
	fields, err := splitFields(body)
	if err != nil || len(fields) < 2 {
		return nil, fmt.Errorf("请求格式错误")
	}

	req := &Request{
		Opcode:   op,
		Filename: fields[0],
		Mode:     strings.ToLower(fields[1]),
	}
	switch req.Mode {
	case "octet", "netascii":
	default:
		return nil, fmt.Errorf("不支持的传输模式: %s", req.Mode)
	}

	for i := 2; i+1 < len(fields); i += 2 {
		req.Options = append(req.Options, Option{
			Name:  strings.ToLower(fields[i]),
			Value: fields[i+1],
		})
	}
	return req, nil
}

// decodeOptions 解码 OACK 选项对
func decodeOptions(body []byte) ([]Option, error) {
	fields, err := splitFields(body)
	if err != nil {
		return nil, err
	}
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("选项数量不成对")
	}
	var opts []Option
	for i := 0; i+1 < len(fields); i += 2 {
		opts = append(opts, Option{Name: strings.ToLower(fields[i]), Value: fields[i+1]})
	}
	return opts, nil
}

// splitFields 按 NUL 分割，要求以 NUL 结尾
func splitFields(body []byte) ([]string, error) {
	if len(body) == 0 {
		return nil, nil
	}
	if body[len(body)-1] != 0 {
		return nil, fmt.Errorf("字段未以 NUL 结尾")
	}
	parts := bytes.Split(body[:len(body)-1], []byte{0})
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		fields = append(fields, string(p))
	}
	return fields, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}
