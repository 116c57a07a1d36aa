package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// WebhookPusher 以 HMAC 签名 POST 事件，5xx 与网络错误按退避重试
type WebhookPusher struct {
	Client   *http.Client
	Endpoint string
	APIKey   string
	Secret   string
	Retries  int
	Backoff  []time.Duration
}

// NewWebhookPusher 创建 Webhook 推送器
func NewWebhookPusher(client *http.Client, endpoint, apiKey, secret string) *WebhookPusher {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookPusher{
		Client:   client,
		Endpoint: endpoint,
		APIKey:   apiKey,
		Secret:   secret,
		Retries:  3,
		Backoff:  []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second},
	}
}

// Name 实现 Sink
func (p *WebhookPusher) Name() string { return "webhook" }

// Publish 实现 Sink
func (p *WebhookPusher) Publish(ctx context.Context, ev Event) error {
	code, _, err := p.SendJSON(ctx, ev)
	if err != nil {
		return err
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("webhook http %d", code)
	}
	return nil
}

// SendJSON 发送 JSON 事件，自动添加签名头
func (p *WebhookPusher) SendJSON(ctx context.Context, payload any) (int, []byte, error) {
	if p == nil || p.Client == nil {
		return 0, nil, errors.New("nil pusher")
	}
	u, err := url.Parse(p.Endpoint)
	if err != nil {
		return 0, nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	ts := time.Now().Unix()
	nonce := uuid.NewString()
	sig := SignHMAC(p.Secret, buildCanonical(http.MethodPost, u.Path, ts, nonce, hashHex(body)))

	var respBody []byte
	var code int
	var lastErr error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Api-Key", p.APIKey)
		req.Header.Set("X-Signature", sig)
		req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
		req.Header.Set("X-Nonce", nonce)

		resp, err := p.Client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			code = resp.StatusCode
			respBody, _ = io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			lastErr = nil
			// 仅对5xx重试
			if code < 500 {
				return code, respBody, nil
			}
		}
		if attempt == p.Retries {
			break
		}
		backoff := p.Backoff[min(attempt, len(p.Backoff)-1)]
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if lastErr != nil {
		return 0, nil, lastErr
	}
	return code, respBody, fmt.Errorf("http %d", code)
}
