package poller

import (
	"testing"

	"github.com/taoyao-code/nova-gateway/internal/catalog"
	"github.com/taoyao-code/nova-gateway/internal/protocol/nova"
)

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		poll   catalog.InputPoll
		family catalog.InputFamily
	}{
		{catalog.InputPoll{Family: catalog.FamilyCard, Register: catalog.Bytes{0x12, 0x00, 0x02, 0x13}, Length: 3}, catalog.FamilyCard},
		{catalog.InputPoll{Family: catalog.FamilyLayerSource, Register: catalog.Bytes{0x00, 0x00, 0x02, 0x13}, Length: 2}, catalog.FamilyLayerSource},
		{catalog.InputPoll{Family: catalog.FamilyValue, Register: catalog.Bytes{0x22, 0x00, 0x20, 0x02}, Length: 1}, catalog.FamilyValue},
	}
	for _, tt := range tests {
		s := StrategyFor(tt.poll)
		if s == nil || s.Family() != tt.family {
			t.Fatalf("StrategyFor(%s) = %v", tt.family, s)
		}
		q := s.Query()
		if !q.IsQuery() || q.Length() != tt.poll.Length || q.Register() != tt.poll.Reg() {
			t.Errorf("%s: unexpected query %s", tt.family, q)
		}
		if q.Destination() != nova.DestController {
			t.Errorf("%s: dest = %s", tt.family, q.Destination())
		}
	}
	if StrategyFor(catalog.InputPoll{Family: catalog.FamilyNone}) != nil {
		t.Fatal("none family must not poll")
	}
}

func TestCardStrategyDecode(t *testing.T) {
	s := cardStrategy{}
	if id, ok := s.Decode([]byte{0x03, 0x00, 0x00}, nil); !ok || id != "3" {
		t.Fatalf("Decode = %q,%v", id, ok)
	}
	if id, ok := s.Decode([]byte{0x0C}, nil); !ok || id != "12" {
		t.Fatalf("card number must be decimal, got %q", id)
	}
	if _, ok := s.Decode(nil, nil); ok {
		t.Fatal("empty payload must not decode")
	}
}

func TestLayerSourceStrategyDecode(t *testing.T) {
	inputs := []catalog.Choice{
		{ID: "0", Data: catalog.Bytes{0x00, 0x00}},
		{ID: "1", Data: catalog.Bytes{0x00, 0x01}},
		{ID: "4", Data: catalog.Bytes{0x01, 0x00}},
		{ID: "short", Data: catalog.Bytes{0x02}},
	}
	tests := []struct {
		name    string
		payload []byte
		id      string
		ok      bool
	}{
		{"图层1源2", []byte{0x00, 0x01}, "1", true},
		{"图层2源1", []byte{0x01, 0x00}, "4", true},
		{"无匹配", []byte{0x05, 0x05}, "", false},
		{"数据区过短", []byte{0x00}, "", false},
		{"数据不足的输入项被跳过", []byte{0x02, 0x00}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := layerSourceStrategy{}.Decode(tt.payload, inputs)
			if id != tt.id || ok != tt.ok {
				t.Fatalf("Decode = %q,%v expected %q,%v", id, ok, tt.id, tt.ok)
			}
		})
	}
}

func TestValueStrategyDecode(t *testing.T) {
	inputs := []catalog.Choice{
		{ID: "0", Data: catalog.Bytes{0x61}},
		{ID: "1", Data: catalog.Bytes{0x05}},
		{ID: "empty"},
	}
	if id, ok := (valueStrategy{}).Decode([]byte{0x05}, inputs); !ok || id != "1" {
		t.Fatalf("Decode = %q,%v", id, ok)
	}
	if _, ok := (valueStrategy{}).Decode([]byte{0x77}, inputs); ok {
		t.Fatal("unmatched value must not decode")
	}
	if _, ok := (valueStrategy{}).Decode(nil, inputs); ok {
		t.Fatal("empty payload must not decode")
	}
}
