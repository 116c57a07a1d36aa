package control

import (
	"strconv"

	"github.com/taoyao-code/nova-gateway/internal/catalog"
	"github.com/taoyao-code/nova-gateway/internal/state"
)

// 变量名
const (
	VarControllerID   = "ctrl_id"
	VarControllerType = "ctrl_type"
	VarFirmware       = "ctrl_fw"
	VarBrightness     = "brite"
	VarActiveInput    = "active_input"
	VarDisplayMode    = "display_mode"
	VarActivePreset   = "active_preset"
)

// Variables 展示变量；选项类变量取显示名，未知时为空串
func (s *Service) Variables() map[string]string {
	snap := s.store.Snapshot()
	m := s.Model()
	if m == nil {
		m = &catalog.Model{}
	}

	vars := map[string]string{
		VarControllerID:   snap.Info.ControllerID,
		VarControllerType: snap.Info.ControllerType,
		VarFirmware:       snap.Info.FirmwareVersion,
		VarBrightness:     "",
		VarActiveInput:    label(m.Inputs, snap.ActiveInput),
		VarDisplayMode:    label(m.DisplayModes, snap.DisplayMode),
		VarActivePreset:   label(m.Presets, snap.ActivePreset),
	}
	if snap.BrightnessKnown() {
		vars[VarBrightness] = strconv.FormatFloat(snap.Brightness, 'f', -1, 64)
	}
	return vars
}

func label(list []catalog.Choice, id string) string {
	if id == state.Unknown {
		return ""
	}
	return catalog.LabelOf(list, id)
}
