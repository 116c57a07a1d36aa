// Package api 处理器控制 HTTP 接口
package api

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/control"
	"github.com/taoyao-code/nova-gateway/internal/device"
	"github.com/taoyao-code/nova-gateway/internal/logging"
	"github.com/taoyao-code/nova-gateway/internal/notify"
	"github.com/taoyao-code/nova-gateway/internal/protocol/nova"
)

// Handler 控制接口处理器
type Handler struct {
	dev    *device.Instance
	hub    *notify.Hub
	logger *zap.Logger
}

// NewHandler 创建处理器；hub 为空时不提供事件流
func NewHandler(dev *device.Instance, hub *notify.Hub, logger *zap.Logger) *Handler {
	return &Handler{dev: dev, hub: hub, logger: logging.OrNop(logger)}
}

// ChoiceRequest 按选项ID下发
type ChoiceRequest struct {
	ID string `json:"id" binding:"required"`
}

// BrightnessRequest 亮度请求，mode 为 set 或 adjust
type BrightnessRequest struct {
	Mode  control.BrightnessMode `json:"mode"`
	Value *float64               `json:"value" binding:"required"`
}

// RawQueryRequest 诊断读命令，寄存器与目标为十六进制（可含空格）
type RawQueryRequest struct {
	Register string `json:"register" binding:"required"`
	Length   uint16 `json:"length" binding:"required"`
	Dest     string `json:"dest"`
}

// ConfigRequest 设备配置变更
type ConfigRequest struct {
	Model string `json:"model"`
	Host  string `json:"host"`
	Port  int    `json:"port"`
}

// StatusView 连接状态
type StatusView struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	Since        int64  `json:"since"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Model        string `json:"model"`
	Pending      int    `json:"pending"`
	LastResponse int64  `json:"last_response,omitempty"`
	Polling      bool   `json:"polling"`
}

// GetStatus GET /api/v1/status
func (h *Handler) GetStatus(c *gin.Context) {
	st := h.dev.Status()
	t := h.dev.Session().Target()
	view := StatusView{
		Status:  st.Status.String(),
		Message: st.Message,
		Since:   st.Since.Unix(),
		Host:    t.Host,
		Port:    t.Port,
		Pending: h.dev.Session().Pending(),
		Polling: h.dev.Poller().Running(),
	}
	if m := h.dev.Control().Model(); m != nil {
		view.Model = m.ID
	}
	if last := h.dev.Session().LastResponse(); !last.IsZero() {
		view.LastResponse = last.Unix()
	}
	respondOK(c, view)
}

// GetState GET /api/v1/state
func (h *Handler) GetState(c *gin.Context) {
	respondOK(c, h.dev.Store().Snapshot())
}

// GetVariables GET /api/v1/variables
func (h *Handler) GetVariables(c *gin.Context) {
	respondOK(c, h.dev.Variables())
}

// ListFeedbacks GET /api/v1/feedbacks
func (h *Handler) ListFeedbacks(c *gin.Context) {
	respondOK(c, gin.H{"feedbacks": h.dev.Control().Feedbacks()})
}

// EvaluateFeedback GET /api/v1/feedbacks/:id?option=
func (h *Handler) EvaluateFeedback(c *gin.Context) {
	id := control.FeedbackID(c.Param("id"))
	option := c.Query("option")
	ok, err := h.dev.Control().Evaluate(id, option)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"feedback": id, "option": option, "active": ok})
}

// GetModel GET /api/v1/model
func (h *Handler) GetModel(c *gin.Context) {
	m := h.dev.Control().Model()
	if m == nil {
		respondErr(c, control.ErrNoModel)
		return
	}
	respondOK(c, m)
}

// ListModels GET /api/v1/models
func (h *Handler) ListModels(c *gin.Context) {
	models := h.dev.Catalog().Sorted()
	out := make([]gin.H, 0, len(models))
	for _, m := range models {
		out = append(out, gin.H{"id": m.ID, "label": m.Label, "port": m.TCPPort()})
	}
	respondOK(c, gin.H{"models": out, "test_patterns": h.dev.Catalog().TestPatterns})
}

// SetBrightness POST /api/v1/brightness
func (h *Handler) SetBrightness(c *gin.Context) {
	var req BrightnessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	h.run(c, "brightness", func(ctx context.Context) (control.Result, error) {
		return h.dev.Control().SetBrightness(ctx, req.Mode, *req.Value)
	})
}

// SetDisplayMode POST /api/v1/display-mode
func (h *Handler) SetDisplayMode(c *gin.Context) { h.choice(c, "display_mode", h.dev.Control().SetDisplayMode) }

// SetInput POST /api/v1/input
func (h *Handler) SetInput(c *gin.Context) { h.choice(c, "input", h.dev.Control().SetInput) }

// LoadPreset POST /api/v1/preset
func (h *Handler) LoadPreset(c *gin.Context) { h.choice(c, "preset", h.dev.Control().LoadPreset) }

// SetWorkingMode POST /api/v1/working-mode
func (h *Handler) SetWorkingMode(c *gin.Context) { h.choice(c, "working_mode", h.dev.Control().SetWorkingMode) }

// SetTestPattern POST /api/v1/test-pattern
func (h *Handler) SetTestPattern(c *gin.Context) { h.choice(c, "test_pattern", h.dev.Control().SetTestPattern) }

// SetScaling POST /api/v1/scaling
func (h *Handler) SetScaling(c *gin.Context) { h.choice(c, "scaling", h.dev.Control().SetScaling) }

// SetPIP POST /api/v1/pip
func (h *Handler) SetPIP(c *gin.Context) { h.choice(c, "pip", h.dev.Control().SetPIP) }

// Take POST /api/v1/take
func (h *Handler) Take(c *gin.Context) {
	h.run(c, "take", h.dev.Control().Take)
}

// RawQuery POST /api/v1/raw/query
func (h *Handler) RawQuery(c *gin.Context) {
	var req RawQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	reg, err := parseHex4(req.Register)
	if err != nil {
		respondError(c, http.StatusBadRequest, "register: "+err.Error())
		return
	}
	dest := nova.DestController
	if req.Dest != "" {
		d, err := parseHex4(req.Dest)
		if err != nil {
			respondError(c, http.StatusBadRequest, "dest: "+err.Error())
			return
		}
		dest = nova.Destination(d)
	}
	h.run(c, "raw_query", func(ctx context.Context) (control.Result, error) {
		return h.dev.Control().RawQuery(ctx, nova.Register(reg), req.Length, dest)
	})
}

// UpdateConfig PUT /api/v1/config
func (h *Handler) UpdateConfig(c *gin.Context) {
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	cfg := h.dev.Config()
	cfg.Model = strings.TrimSpace(req.Model)
	cfg.Host = strings.TrimSpace(req.Host)
	cfg.Port = req.Port

	if err := h.dev.ConfigUpdated(c.Request.Context(), cfg); err != nil {
		respondErr(c, err)
		return
	}
	h.logger.Info("device config updated",
		zap.String("model", cfg.Model),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
	)
	h.GetStatus(c)
}

func (h *Handler) choice(c *gin.Context, action string, fn func(context.Context, string) (control.Result, error)) {
	var req ChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	h.run(c, action, func(ctx context.Context) (control.Result, error) {
		return fn(ctx, req.ID)
	})
}

func (h *Handler) run(c *gin.Context, action string, fn func(context.Context) (control.Result, error)) {
	res, err := fn(c.Request.Context())
	if err != nil {
		h.logger.Warn("control action failed", zap.String("action", action), zap.Error(err))
		respondErr(c, err)
		return
	}
	h.logger.Info("control action",
		zap.String("action", action),
		zap.Bool("transmitted", res.Transmitted),
		zap.String("frame", res.Frame),
	)
	respondOK(c, res)
}

// parseHex4 4字节十六进制，允许空格或冒号分隔
func parseHex4(s string) ([4]byte, error) {
	var out [4]byte
	clean := strings.NewReplacer(" ", "", ":", "").Replace(s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return out, err
	}
	if len(b) != 4 {
		return out, fmt.Errorf("expected 4 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
