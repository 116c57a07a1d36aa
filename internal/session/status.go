package session

import "time"

// Status 连接状态
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusConnectionFailure
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusConnectionFailure:
		return "connection_failure"
	default:
		return "unknown"
	}
}

// MarshalText JSON 中输出状态名
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// 离线状态说明（非错误）
const (
	MsgNoHost  = "No host configured - offline programming available"
	MsgNoModel = "No model selected"
)

// StatusInfo 状态及说明
type StatusInfo struct {
	Status  Status    `json:"status"`
	Message string    `json:"message"`
	Since   time.Time `json:"since"`
}

// Offline 是否为未配置主机/型号的离线编程状态
func (s StatusInfo) Offline() bool {
	return s.Status == StatusDisconnected && (s.Message == MsgNoHost || s.Message == MsgNoModel)
}
