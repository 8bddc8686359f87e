package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// SignatureHeader 签名请求头
	SignatureHeader = "X-Webhook-Signature"
	// TimestampHeader 时间戳请求头
	TimestampHeader = "X-Webhook-Timestamp"
	// EventHeader 事件类型请求头
	EventHeader = "X-Webhook-Event"
	// IDHeader 事件ID请求头
	IDHeader = "X-Webhook-ID"

	smsEvent = "sos.sms"
)

// WebhookNotifier posts signed messages to an SMS provider endpoint
type WebhookNotifier struct {
	url        string
	secret     string
	httpClient *http.Client
}

// NewWebhookNotifier creates a notifier. An empty secret sends unsigned requests.
func NewWebhookNotifier(url, secret string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Notify sends one request. Only a 2xx response counts as delivered to the provider.
func (n *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "AegiSher-Notify/1.0")
	req.Header.Set(EventHeader, smsEvent)
	req.Header.Set(IDHeader, uuid.NewString())

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(TimestampHeader, timestamp)
	if n.secret != "" {
		req.Header.Set(SignatureHeader, Sign(payload, timestamp, n.secret))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider responded %d", resp.StatusCode)
	}
	return nil
}

// Sign computes hex(hmac-sha256(timestamp + "." + payload))
func Sign(payload []byte, timestamp, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp + "." + string(payload)))
	return hex.EncodeToString(h.Sum(nil))
}

