package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/LeventeLantos/outreach-engine/internal/model"
)

const maxSidecarBody = 4 << 10

// WebhookSender hands deliveries to an automation sidecar over HTTP.
//
// The sidecar answers 2xx with {"delivered": bool, "messageId", "reason"}.
// Transport failures and unreadable 2xx bodies are errors. A non-2xx status
// or delivered=false is a rejection: (false, nil).
type WebhookSender struct {
	url    string
	client *http.Client
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type deliveryRequest struct {
	RecipientID string            `json:"recipientId"`
	Message     string            `json:"message"`
	Credentials model.Credentials `json:"credentials"`
}

type deliveryReport struct {
	Delivered bool   `json:"delivered"`
	MessageID string `json:"messageId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (c *WebhookSender) Send(ctx context.Context, recipientID, message string, creds model.Credentials) (bool, error) {
	payload, err := json.Marshal(deliveryRequest{
		RecipientID: recipientID,
		Message:     message,
		Credentials: creds,
	})
	if err != nil {
		return false, fmt.Errorf("encode delivery request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("call sidecar: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSidecarBody))
	if err != nil {
		return false, fmt.Errorf("read sidecar response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("sidecar rejected delivery",
			"recipient_id", recipientID,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return false, nil
	}

	var report deliveryReport
	if err := json.Unmarshal(body, &report); err != nil {
		return false, fmt.Errorf("decode sidecar response: %w", err)
	}
	if !report.Delivered {
		slog.Warn("sidecar reported undelivered",
			"recipient_id", recipientID,
			"reason", report.Reason,
		)
		return false, nil
	}

	slog.Debug("sidecar delivered", "recipient_id", recipientID, "message_id", report.MessageID)
	return true, nil
}
