package nova

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestBuildCommandRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		reg     Register
		code    byte
		payload []byte
		dest    Destination
	}{
		{"亮度写入", Register{0x01, 0x00, 0x00, 0x02}, CodeWrite, []byte{0x80}, DestAllCards},
		{"显示模式写入", Register{0x04, 0x00, 0x00, 0x13}, CodeWrite, []byte{0x05}, DestController},
		{"无数据写入", Register{0x1A, 0x00, 0x02, 0x13}, CodeWrite, nil, DestController},
		{"多字节载荷", Register{0x00, 0x00, 0x02, 0x13}, CodeWrite, []byte{0x01, 0x02, 0x03, 0x04}, Destination{0x00, 0x00, 0x01, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := BuildCommand(tt.reg, tt.code, tt.payload, tt.dest)
			if len(f) != MinFrameLen+len(tt.payload) {
				t.Fatalf("len = %d, expected %d", len(f), MinFrameLen+len(tt.payload))
			}
			h, err := ParseHeader(f)
			if err != nil {
				t.Fatalf("ParseHeader: %v", err)
			}
			if h.Marker != RequestMarker {
				t.Errorf("marker = % X", h.Marker[:])
			}
			if h.Register != tt.reg {
				t.Errorf("register = %s, expected %s", h.Register, tt.reg)
			}
			if h.Dest != tt.dest {
				t.Errorf("dest = %s, expected %s", h.Dest, tt.dest)
			}
			if int(h.Length) != len(tt.payload) {
				t.Errorf("length = %d, expected %d", h.Length, len(tt.payload))
			}
			if h.Source != SourceHost || h.Seq != 0 || h.Code != tt.code {
				t.Errorf("unexpected header %+v", h)
			}
			if !bytes.Equal(f.Payload(), tt.payload) {
				t.Errorf("payload = % X, expected % X", f.Payload(), tt.payload)
			}
			if err := f.Verify(); err != nil {
				t.Errorf("Verify: %v", err)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	f := BuildQuery(Register{0x04, 0x00, 0x10, 0x04}, 4, DestController)
	expected, _ := hex.DecodeString("55aa0000fe000000000000000400100404006f56")
	if !bytes.Equal(f, expected) {
		t.Fatalf("query = %s\nexpected % x", f, expected)
	}
	if !f.IsQuery() {
		t.Fatalf("query frame must carry code 0x00")
	}
	if f.Length() != 4 {
		t.Fatalf("length field should carry expected reply length, got %d", f.Length())
	}
	if f.Payload() != nil {
		t.Fatalf("query carries no payload bytes")
	}
}

func TestParseHeaderTooShort(t *testing.T) {
	if _, err := ParseHeader(make([]byte, 19)); err != ErrFrameTooShort {
		t.Fatalf("expected ErrFrameTooShort, got %v", err)
	}
}

func TestWithSeq(t *testing.T) {
	f := BuildQuery(Register{0x02, 0x00, 0x00, 0x00}, 2, DestController)
	g := f.WithSeq(0x7F)

	if f.Seq() != 0 {
		t.Fatalf("original frame mutated")
	}
	if g.Seq() != 0x7F {
		t.Fatalf("seq = %d", g.Seq())
	}
	if err := g.Verify(); err != nil {
		t.Fatalf("checksum not recomputed: %v", err)
	}
	if Checksum(g[:len(g)-2])-Checksum(f[:len(f)-2]) != 0x7F {
		t.Fatalf("sequence id must be inside the checksummed range")
	}
}

func TestWithDeviceType(t *testing.T) {
	f := BuildQuery(Register{0x02, 0x00, 0x00, 0x00}, 2, DestController)
	g := f.WithDeviceType(1)
	if g.Destination() != DestReceiver {
		t.Fatalf("dest = %s", g.Destination())
	}
	if err := g.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestFrameString(t *testing.T) {
	f := Frame{0x55, 0xAA, 0x00}
	if got := f.String(); got != "55:aa:00" {
		t.Fatalf("String() = %q", got)
	}
}
