package nova

import (
	"encoding/binary"
	"errors"
)

// ChecksumBase 校验和常量
const ChecksumBase = 0x5555

var (
	// ErrChecksumMismatch checksum校验失败
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Checksum 计算校验和
// body: 不含校验尾的帧（含2字节帧头）。从偏移2累加到数据区末尾，加 0x5555 后截断为16位。
func Checksum(body []byte) uint16 {
	sum := uint16(ChecksumBase)
	if len(body) <= 2 {
		return sum
	}
	for _, b := range body[2:] {
		sum += uint16(b)
	}
	return sum
}

// AppendChecksum 追加小端校验尾
func AppendChecksum(body []byte) []byte {
	return binary.LittleEndian.AppendUint16(body, Checksum(body))
}

// VerifyChecksum 验证带校验尾的完整帧
func VerifyChecksum(frame []byte) error {
	if len(frame) < 4 {
		return errors.New("data too short for checksum verification")
	}
	n := len(frame) - 2
	if binary.LittleEndian.Uint16(frame[n:]) != Checksum(frame[:n]) {
		return ErrChecksumMismatch
	}
	return nil
}
