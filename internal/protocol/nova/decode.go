package nova

import (
	"fmt"
	"math"
)

// UnknownMode 显示模式未知
const UnknownMode = "-1"

// 显示模式协议值
const (
	ModeValueNormal byte = 0x03
	ModeValueFreeze byte = 0x04
	ModeValueBlack  byte = 0x05
)

var displayModeIDs = map[byte]string{
	ModeValueNormal: "0",
	ModeValueFreeze: "1",
	ModeValueBlack:  "2",
}

// BrightnessPercent 原始亮度值(0-255)换算为百分比，按0.5取整
func BrightnessPercent(raw byte) float64 {
	return math.Round(float64(raw)*100/255*2) / 2
}

// BrightnessRaw 百分比换算为原始亮度值，超出范围的输入先截断到0-100
func BrightnessRaw(pct float64) byte {
	pct = math.Max(0, math.Min(100, pct))
	return byte(math.Round(pct * 255 / 100))
}

// DecodeBrightness 取数据区首字节
func DecodeBrightness(payload []byte) (float64, bool) {
	if len(payload) < 1 {
		return 0, false
	}
	return BrightnessPercent(payload[0]), true
}

// DecodeDisplayMode 取数据区首字节映射为模式ID，表外值返回 "-1"
func DecodeDisplayMode(payload []byte) (string, bool) {
	if len(payload) < 1 {
		return "", false
	}
	if id, ok := displayModeIDs[payload[0]]; ok {
		return id, true
	}
	return UnknownMode, true
}

// DecodeFirmware 4字节版本号，按十进制输出 a.b.c.d
func DecodeFirmware(payload []byte) (string, bool) {
	if len(payload) < 4 {
		return "", false
	}
	return fmt.Sprintf("%d.%d.%d.%d", payload[0], payload[1], payload[2], payload[3]), true
}
