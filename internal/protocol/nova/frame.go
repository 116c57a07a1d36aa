package nova

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"
)

// NovaStar 协议帧格式：
// marker(2) + ack(1) + seq(1) + src(1) + dest(4) + reserved(1) + code(1) + reserved(1) + reg(4) + len(2, LE) + data(N) + checksum(2, LE)
const (
	OffsetAck      = 2
	OffsetSeq      = 3
	OffsetSource   = 4
	OffsetDest     = 5
	OffsetCode     = 10
	OffsetRegister = 12
	OffsetLength   = 16
	OffsetPayload  = 18

	// HeaderLen 载荷之前的字节数
	HeaderLen = 18
	// MinFrameLen 最小帧长度（无载荷）
	MinFrameLen = 20

	SourceHost byte = 0xFE // 上位机源地址

	CodeRead  byte = 0x00
	CodeWrite byte = 0x01
)

var (
	// RequestMarker 上位机下发帧头
	RequestMarker = [2]byte{0x55, 0xAA}
	// ResponseMarker 设备应答帧头
	ResponseMarker = [2]byte{0xAA, 0x55}
)

var (
	// ErrFrameTooShort 帧长度不足20字节
	ErrFrameTooShort = errors.New("frame too short")
)

// Register 4字节寄存器地址（含偏移）
type Register [4]byte

// String 按线序输出十六进制
func (r Register) String() string { return hex.EncodeToString(r[:]) }

// Destination 目标描述：设备地址、设备类型、端口地址(2)
type Destination [4]byte

// 常用目标
var (
	DestController = Destination{0x00, 0x00, 0x00, 0x00}
	DestReceiver   = Destination{0x00, 0x01, 0x00, 0x00}
	DestAllCards   = Destination{0xFF, 0x01, 0xFF, 0xFF}
)

func (d Destination) String() string { return hex.EncodeToString(d[:]) }

// Header 帧头字段
type Header struct {
	Marker   [2]byte
	Seq      uint8
	Source   byte
	Dest     Destination
	Code     byte
	Register Register
	Length   uint16
}

// IsQuery 读命令判定
func (h Header) IsQuery() bool { return h.Code == CodeRead }

// ParseHeader 解析帧头，至少需要20字节
func ParseHeader(b []byte) (Header, error) {
	if len(b) < MinFrameLen {
		return Header{}, ErrFrameTooShort
	}
	var h Header
	copy(h.Marker[:], b[0:2])
	h.Seq = b[OffsetSeq]
	h.Source = b[OffsetSource]
	copy(h.Dest[:], b[OffsetDest:OffsetDest+4])
	h.Code = b[OffsetCode]
	copy(h.Register[:], b[OffsetRegister:OffsetRegister+4])
	h.Length = binary.LittleEndian.Uint16(b[OffsetLength:])
	return h, nil
}

// Frame 一个完整帧（含校验尾）。视为不可变，修改通过返回副本完成。
type Frame []byte

// Header 解析帧头
func (f Frame) Header() (Header, error) { return ParseHeader(f) }

// Seq 序列号
func (f Frame) Seq() uint8 {
	if len(f) <= OffsetSeq {
		return 0
	}
	return f[OffsetSeq]
}

// Code 操作码
func (f Frame) Code() byte {
	if len(f) <= OffsetCode {
		return 0
	}
	return f[OffsetCode]
}

// IsQuery 是否读命令
func (f Frame) IsQuery() bool { return f.Code() == CodeRead }

// Register 寄存器地址
func (f Frame) Register() Register {
	var r Register
	if len(f) >= OffsetRegister+4 {
		copy(r[:], f[OffsetRegister:OffsetRegister+4])
	}
	return r
}

// Destination 目标描述
func (f Frame) Destination() Destination {
	var d Destination
	if len(f) >= OffsetDest+4 {
		copy(d[:], f[OffsetDest:OffsetDest+4])
	}
	return d
}

// Length 长度字段（读命令中为期望应答长度）
func (f Frame) Length() uint16 {
	if len(f) < OffsetLength+2 {
		return 0
	}
	return binary.LittleEndian.Uint16(f[OffsetLength:])
}

// Payload 返回数据区；读命令或长度不足时返回 nil
func (f Frame) Payload() []byte {
	n := int(f.Length())
	if n == 0 || len(f) < MinFrameLen+n {
		return nil
	}
	return f[OffsetPayload : OffsetPayload+n]
}

// WithSeq 返回写入序列号并重算校验和的副本
func (f Frame) WithSeq(seq uint8) Frame {
	if len(f) < MinFrameLen {
		return append(Frame(nil), f...)
	}
	out := make(Frame, len(f))
	copy(out, f)
	out[OffsetSeq] = seq
	body := out[:len(out)-2]
	binary.LittleEndian.PutUint16(out[len(out)-2:], Checksum(body))
	return out
}

// WithDeviceType 返回修改设备类型字节后的副本（用于同一查询发往接收卡）
func (f Frame) WithDeviceType(t byte) Frame {
	if len(f) < MinFrameLen {
		return append(Frame(nil), f...)
	}
	out := make(Frame, len(f))
	copy(out, f)
	out[OffsetDest+1] = t
	binary.LittleEndian.PutUint16(out[len(out)-2:], Checksum(out[:len(out)-2]))
	return out
}

// Verify 校验尾部校验和
func (f Frame) Verify() error {
	if len(f) < MinFrameLen {
		return ErrFrameTooShort
	}
	return VerifyChecksum(f)
}

// String 以冒号分隔的十六进制输出，便于日志
func (f Frame) String() string {
	if len(f) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(f) * 3)
	for i, b := range f {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(hex.EncodeToString([]byte{b}))
	}
	return sb.String()
}
