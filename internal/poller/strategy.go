package poller

import (
	"strconv"

	"github.com/taoyao-code/nova-gateway/internal/catalog"
	"github.com/taoyao-code/nova-gateway/internal/protocol/nova"
)

// InputStrategy 当前输入源的查询与解码方式，按型号的输入族选择
type InputStrategy interface {
	Family() catalog.InputFamily
	// Query 查询帧
	Query() nova.Frame
	// Decode 将应答数据区解析为输入ID；ok=false 表示无法确定
	Decode(payload []byte, inputs []catalog.Choice) (id string, ok bool)
}

// StrategyFor 按型号描述选择策略；不轮询输入时返回 nil
func StrategyFor(p catalog.InputPoll) InputStrategy {
	base := pollQuery{reg: p.Reg(), length: p.Length}
	switch p.Family {
	case catalog.FamilyCard:
		return cardStrategy{base}
	case catalog.FamilyLayerSource:
		return layerSourceStrategy{base}
	case catalog.FamilyValue:
		return valueStrategy{base}
	default:
		return nil
	}
}

type pollQuery struct {
	reg    nova.Register
	length uint16
}

func (q pollQuery) Query() nova.Frame {
	return nova.BuildQuery(q.reg, q.length, nova.DestController)
}

// cardStrategy data[0] 为卡号，直接作为输入ID
type cardStrategy struct{ pollQuery }

func (cardStrategy) Family() catalog.InputFamily { return catalog.FamilyCard }

func (cardStrategy) Decode(payload []byte, _ []catalog.Choice) (string, bool) {
	if len(payload) < 1 {
		return "", false
	}
	return strconv.Itoa(int(payload[0])), true
}

// layerSourceStrategy data[0]=图层 data[1]=源，与输入表命令数据比对
type layerSourceStrategy struct{ pollQuery }

func (layerSourceStrategy) Family() catalog.InputFamily { return catalog.FamilyLayerSource }

func (layerSourceStrategy) Decode(payload []byte, inputs []catalog.Choice) (string, bool) {
	if len(payload) < 2 {
		return "", false
	}
	for _, in := range inputs {
		if len(in.Data) >= 2 && in.Data[0] == payload[0] && in.Data[1] == payload[1] {
			return in.ID, true
		}
	}
	return "", false
}

// valueStrategy 单字节值与输入表命令数据首字节比对
type valueStrategy struct{ pollQuery }

func (valueStrategy) Family() catalog.InputFamily { return catalog.FamilyValue }

func (valueStrategy) Decode(payload []byte, inputs []catalog.Choice) (string, bool) {
	if len(payload) < 1 {
		return "", false
	}
	for _, in := range inputs {
		if len(in.Data) >= 1 && in.Data[0] == payload[0] {
			return in.ID, true
		}
	}
	return "", false
}
