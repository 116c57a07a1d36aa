package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GenerateServerID 生成网关实例ID
// 优先使用环境变量NOVA_GATEWAY_ID，否则生成UUID
func GenerateServerID() string {
	if id := os.Getenv("NOVA_GATEWAY_ID"); id != "" {
		return id
	}

	// 格式：nova-gateway-{hostname}-{uuid}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	shortUUID := uuid.New().String()[:8]
	return fmt.Sprintf("nova-gateway-%s-%s", hostname, shortUUID)
}
