package control

import (
	"fmt"
	"math"
	"strconv"

	"github.com/taoyao-code/nova-gateway/internal/catalog"
	"github.com/taoyao-code/nova-gateway/internal/state"
)

// FeedbackID 反馈判定
type FeedbackID string

const (
	FeedbackBrightness  FeedbackID = "brightness_match"
	FeedbackDisplayMode FeedbackID = "display_mode_match"
	FeedbackInput       FeedbackID = "input_match"
	FeedbackPreset      FeedbackID = "preset_match"
	FeedbackWorkingMode FeedbackID = "working_mode_match"
)

// FeedbackFor 属性变化时需要重新判定的反馈
func FeedbackFor(p state.Property) (FeedbackID, bool) {
	switch p {
	case state.PropBrightness:
		return FeedbackBrightness, true
	case state.PropDisplayMode:
		return FeedbackDisplayMode, true
	case state.PropActiveInput:
		return FeedbackInput, true
	case state.PropActivePreset:
		return FeedbackPreset, true
	case state.PropWorkingMode:
		return FeedbackWorkingMode, true
	}
	return "", false
}

// Feedbacks 当前型号可用的反馈
func (s *Service) Feedbacks() []FeedbackID {
	m := s.Model()
	if m == nil {
		return nil
	}
	var out []FeedbackID
	if m.Brightness {
		out = append(out, FeedbackBrightness)
	}
	if len(m.DisplayModes) > 0 {
		out = append(out, FeedbackDisplayMode)
	}
	if len(m.Inputs) > 0 {
		out = append(out, FeedbackInput)
	}
	if len(m.Presets) > 0 {
		out = append(out, FeedbackPreset)
	}
	if len(m.WorkingModes) > 0 {
		out = append(out, FeedbackWorkingMode)
	}
	return out
}

// Evaluate 按快照判定反馈；option 为亮度百分比（整数）或选项ID
func (s *Service) Evaluate(id FeedbackID, option string) (bool, error) {
	m := s.Model()
	if m == nil {
		return false, ErrNoModel
	}
	snap := s.store.Snapshot()

	switch id {
	case FeedbackBrightness:
		if !m.Brightness {
			return false, unsupported(m, id)
		}
		want, err := strconv.Atoi(option)
		if err != nil {
			return false, fmt.Errorf("%w: brightness %q", ErrInvalidArgument, option)
		}
		return int(math.Round(snap.Brightness)) == want, nil
	case FeedbackDisplayMode:
		return match(m, id, m.DisplayModes, snap.DisplayMode, option)
	case FeedbackInput:
		return match(m, id, m.Inputs, snap.ActiveInput, option)
	case FeedbackPreset:
		return match(m, id, m.Presets, snap.ActivePreset, option)
	case FeedbackWorkingMode:
		return match(m, id, m.WorkingModes, snap.WorkingMode, option)
	}
	return false, fmt.Errorf("%w: feedback %q", ErrInvalidArgument, id)
}

func match(m *catalog.Model, id FeedbackID, list []catalog.Choice, current, option string) (bool, error) {
	if len(list) == 0 {
		return false, unsupported(m, id)
	}
	return current == option, nil
}

func unsupported(m *catalog.Model, id FeedbackID) error {
	return fmt.Errorf("%w: %s on %s", ErrCapabilityUnsupported, id, m.ID)
}
