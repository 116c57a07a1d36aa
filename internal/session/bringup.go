package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/logging"
	"github.com/taoyao-code/nova-gateway/internal/outbound"
	"github.com/taoyao-code/nova-gateway/internal/protocol/nova"
	"github.com/taoyao-code/nova-gateway/internal/state"
)

// ControllerLabeler 控制器ID到型号名的查表
type ControllerLabeler interface {
	ControllerLabel(idHex string) string
}

type bringUpStep struct {
	name  string
	frame nova.Frame
	apply func(resp outbound.Response)
}

// BringUp 上线查询序列，逐条等待应答后再发下一条。
// 控制器ID查询失败视为连接失败；其余步骤失败仅记录日志。
func BringUp(store *state.Store, labels ControllerLabeler, logger *zap.Logger) BringUpFunc {
	log := logging.OrNop(logger)
	set := func(p state.Property, v string) {
		if _, err := store.Set(p, v, state.SourcePoll); err != nil {
			log.Warn("bring-up state update failed", zap.Error(err))
		}
	}

	ctrlQuery := nova.BuildQuery(nova.RegControllerID, 2, nova.DestController)
	steps := []bringUpStep{
		{"controller_id", ctrlQuery, func(r outbound.Response) {
			id := r.Hex()
			set(state.PropControllerID, id)
			set(state.PropControllerType, labels.ControllerLabel(id))
		}},
		{"receiver_id", ctrlQuery.WithDeviceType(1), func(r outbound.Response) {
			set(state.PropReceiverID, r.Hex())
		}},
		{"dvi_status", nova.BuildQuery(nova.RegDVIStatus, 1, nova.DestController), func(r outbound.Response) {
			set(state.PropDVIStatus, r.Hex())
		}},
		{"firmware", nova.BuildQuery(nova.RegFirmware, 4, nova.DestController), func(r outbound.Response) {
			if fw, ok := nova.DecodeFirmware(r.Payload); ok {
				set(state.PropFirmware, fw)
			}
		}},
		{"brightness", nova.BuildQuery(nova.RegBrightness, 5, nova.DestReceiver), func(r outbound.Response) {
			if v, ok := nova.DecodeBrightness(r.Payload); ok {
				store.SetBrightness(v, state.SourcePoll)
			}
		}},
		{"display_mode", nova.BuildQuery(nova.RegDisplayMode, 2, nova.DestController), func(r outbound.Response) {
			if id, ok := nova.DecodeDisplayMode(r.Payload); ok {
				set(state.PropDisplayMode, id)
			}
		}},
	}

	return func(ctx context.Context, s *Session) error {
		for i, st := range steps {
			resp, err := s.Query(ctx, st.frame)
			if err != nil {
				if i == 0 || errors.Is(err, ErrNotConnected) || ctx.Err() != nil {
					return fmt.Errorf("%s: %w", st.name, err)
				}
				log.Warn("bring-up query failed", zap.String("step", st.name), zap.Error(err))
				continue
			}
			log.Debug("bring-up", zap.String("step", st.name), zap.String("data", resp.Hex()))
			st.apply(resp)
		}
		return nil
	}
}
