package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/LeventeLantos/outreach-engine/internal/model"
)

// DeliveryClient is the external actuator that performs one send.
type DeliveryClient interface {
	Send(ctx context.Context, recipientID, message string, creds model.Credentials) (bool, error)
}

// Sender makes a single delivery attempt and reduces every failure mode of
// the actuator (false, error, panic, oversized content) to false.
type Sender struct {
	client     DeliveryClient
	contentMax int

	onAttempt func(task model.Task, ok bool, err error)
}

func NewSender(client DeliveryClient, contentMax int) *Sender {
	return &Sender{
		client:     client,
		contentMax: contentMax,
	}
}

// WithHook registers a callback observing every attempt outcome.
func (s *Sender) WithHook(onAttempt func(task model.Task, ok bool, err error)) *Sender {
	s.onAttempt = onAttempt
	return s
}

func (s *Sender) Attempt(ctx context.Context, campaignID string, task model.Task) bool {
	start := time.Now()
	ok, err := s.attempt(ctx, task)

	if s.onAttempt != nil {
		s.onAttempt(task, ok, err)
	}

	attrs := []any{
		"campaign_id", campaignID,
		"recipient_id", task.RecipientID,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	switch {
	case err != nil:
		slog.Warn("delivery attempt failed", append(attrs, "error", err)...)
	case !ok:
		slog.Warn("delivery attempt rejected", attrs...)
	default:
		slog.Info("delivery attempt succeeded", attrs...)
	}
	return ok && err == nil
}

func (s *Sender) attempt(ctx context.Context, task model.Task) (ok bool, err error) {
	if s.contentMax > 0 && utf8.RuneCountInString(task.Message) > s.contentMax {
		return false, fmt.Errorf("content exceeds %d chars", s.contentMax)
	}

	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("actuator panic: %v", r)
		}
	}()

	return s.client.Send(ctx, task.RecipientID, task.Message, task.Credentials)
}
