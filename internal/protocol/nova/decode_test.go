package nova

import "testing"

func TestBrightnessPercent(t *testing.T) {
	tests := []struct {
		raw      byte
		expected float64
	}{
		{0, 0},
		{128, 50},
		{255, 100},
		{64, 25},
		{1, 0.5},
		{13, 5},
	}
	for _, tt := range tests {
		if got := BrightnessPercent(tt.raw); got != tt.expected {
			t.Errorf("BrightnessPercent(%d) = %v, expected %v", tt.raw, got, tt.expected)
		}
	}
}

func TestBrightnessRaw(t *testing.T) {
	tests := []struct {
		pct      float64
		expected byte
	}{
		{0, 0},
		{100, 255},
		{50, 128},
		{-10, 0},
		{150, 255},
	}
	for _, tt := range tests {
		if got := BrightnessRaw(tt.pct); got != tt.expected {
			t.Errorf("BrightnessRaw(%v) = %d, expected %d", tt.pct, got, tt.expected)
		}
	}
	// 往返误差不超过0.5
	for pct := 0.0; pct <= 100; pct++ {
		back := BrightnessPercent(BrightnessRaw(pct))
		if back < pct-0.5 || back > pct+0.5 {
			t.Fatalf("round trip %v -> %v", pct, back)
		}
	}
}

func TestDecodeDisplayMode(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		expected string
	}{
		{"正常", []byte{0x03, 0x00}, "0"},
		{"冻结", []byte{0x04, 0x00}, "1"},
		{"黑屏", []byte{0x05, 0x00}, "2"},
		{"表外值", []byte{0x07, 0x00}, UnknownMode},
		{"零值", []byte{0x00}, UnknownMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeDisplayMode(tt.payload)
			if !ok || got != tt.expected {
				t.Fatalf("DecodeDisplayMode(% X) = %q,%v, expected %q", tt.payload, got, ok, tt.expected)
			}
		})
	}
	if _, ok := DecodeDisplayMode(nil); ok {
		t.Fatal("empty payload must not decode")
	}
}

func TestDecodeBrightnessAndFirmware(t *testing.T) {
	if v, ok := DecodeBrightness([]byte{0x80, 0x11, 0x22}); !ok || v != 50 {
		t.Fatalf("DecodeBrightness = %v,%v", v, ok)
	}
	if _, ok := DecodeBrightness(nil); ok {
		t.Fatal("empty payload must not decode")
	}
	if v, ok := DecodeFirmware([]byte{1, 2, 10, 255}); !ok || v != "1.2.10.255" {
		t.Fatalf("DecodeFirmware = %q", v)
	}
	if _, ok := DecodeFirmware([]byte{1, 2}); ok {
		t.Fatal("short firmware payload must not decode")
	}
}
