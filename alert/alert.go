// Copyright (c) 2026 BVK Chaitanya

// Package alert delivers trade notifications to the configured services.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvk/fulfill/pushover"
	"github.com/bvk/fulfill/telegram"
)

// Notifier sends a message that happened at the given time.
type Notifier interface {
	SendMessage(ctx context.Context, at time.Time, msg string) error
}

// Multi sends every message to all notifiers.
type Multi []Notifier

func (m Multi) SendMessage(ctx context.Context, at time.Time, msg string) error {
	var errs []error
	for _, n := range m {
		if err := n.SendMessage(ctx, at, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Options struct {
	Pushover *pushover.Keys

	Telegram *telegram.Secrets
}

// New creates notifiers for the configured services. Returns a nil Notifier
// when no service is configured.
func New(ctx context.Context, opts *Options) (Notifier, error) {
	var m Multi
	if opts.Pushover != nil && len(opts.Pushover.ApplicationKey) != 0 {
		c, err := pushover.New(opts.Pushover, nil)
		if err != nil {
			return nil, fmt.Errorf("could not create pushover client: %w", err)
		}
		m = append(m, c)
	}
	if opts.Telegram != nil && len(opts.Telegram.BotToken) != 0 {
		c, err := telegram.New(ctx, opts.Telegram, nil)
		if err != nil {
			return nil, fmt.Errorf("could not create telegram client: %w", err)
		}
		m = append(m, c)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

// Send notifies with a timeout, logging failures. A nil notifier is a no-op.
func Send(ctx context.Context, n Notifier, msg string) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := n.SendMessage(ctx, time.Now(), msg); err != nil {
		slog.Warn("could not send notification (ignored)", "message", msg, "err", err)
	}
}
