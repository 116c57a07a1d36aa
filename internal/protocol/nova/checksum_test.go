package nova

import (
	"testing"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		expected uint16
	}{
		{
			name:     "仅帧头",
			body:     []byte{0x55, 0xAA},
			expected: 0x5555,
		},
		{
			name:     "帧头不参与累加",
			body:     []byte{0xFF, 0xFF, 0x01},
			expected: 0x5556,
		},
		{
			name: "控制器ID查询",
			body: []byte{
				0x55, 0xAA, 0x00, 0x00, 0xFE, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x02, 0x00,
			},
			expected: 0x5657, // 0xFE+0x02+0x02 = 0x102, +0x5555
		},
		{
			name:     "16位截断",
			body:     append([]byte{0x55, 0xAA}, make256(0xFF)...),
			expected: uint16((0xFF*256 + 0x5555) & 0xFFFF),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.body); got != tt.expected {
				t.Errorf("Checksum() = 0x%04X, expected 0x%04X", got, tt.expected)
			}
		})
	}
}

func TestChecksumSensitiveToEveryByte(t *testing.T) {
	f := BuildWrite(Register{0x01, 0x00, 0x00, 0x02}, []byte{0x80, 0x7F}, DestAllCards)
	body := []byte(f[:len(f)-2])
	base := Checksum(body)

	for i := 2; i < len(body); i++ {
		mut := append([]byte(nil), body...)
		mut[i] ^= 0x01
		if Checksum(mut) == base {
			t.Fatalf("修改偏移 %d 后校验和未变化", i)
		}
	}

	// 前两个字节不在校验范围内
	mut := append([]byte(nil), body...)
	mut[0], mut[1] = 0x00, 0x00
	if Checksum(mut) != base {
		t.Fatalf("帧头不应影响校验和")
	}
}

func TestVerifyChecksum(t *testing.T) {
	good := BuildQuery(Register{0x02, 0x00, 0x00, 0x00}, 2, DestController)
	if err := VerifyChecksum(good); err != nil {
		t.Fatalf("valid frame rejected: %v", err)
	}
	if good[len(good)-2] != 0x57 || good[len(good)-1] != 0x56 {
		t.Fatalf("trailer = % X, expected 57 56 (little-endian)", []byte(good[len(good)-2:]))
	}

	bad := append(Frame(nil), good...)
	bad[len(bad)-1] ^= 0xFF
	if err := VerifyChecksum(bad); err != ErrChecksumMismatch {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}

	if err := VerifyChecksum([]byte{0x55}); err == nil {
		t.Fatalf("short input should fail")
	}
}

func make256(b byte) []byte {
	out := make([]byte, 256)
	for i := range out {
		out[i] = b
	}
	return out
}
