// Copyright (c) 2025 BVK Chaitanya

// Package telegram sends notifications to telegram chats through a bot.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-telegram/bot"
)

type Secrets struct {
	BotToken string `json:"token" mapstructure:"token"`

	// ChatIDs are the chats that receive the notifications.
	ChatIDs []int64 `json:"chat_ids" mapstructure:"chat_ids"`
}

func (v *Secrets) Check() error {
	if len(v.BotToken) == 0 {
		return fmt.Errorf("bot token cannot be empty")
	}
	if len(v.ChatIDs) == 0 {
		return fmt.Errorf("at least one chat id is required")
	}
	if slices.Contains(v.ChatIDs, 0) {
		return fmt.Errorf("zero is not a valid chat id")
	}
	return nil
}

func (v *Secrets) Clone() *Secrets {
	return &Secrets{
		BotToken: v.BotToken,
		ChatIDs:  slices.Clone(v.ChatIDs),
	}
}

type Options struct {
	// ServerURL overrides the telegram bot api server.
	ServerURL string
}

type Client struct {
	bot *bot.Bot

	secrets *Secrets
}

func New(ctx context.Context, secrets *Secrets, opts *Options) (*Client, error) {
	if err := secrets.Check(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = new(Options)
	}

	bopts := []bot.Option{
		bot.WithSkipGetMe(),
	}
	if len(opts.ServerURL) != 0 {
		bopts = append(bopts, bot.WithServerURL(opts.ServerURL))
	}
	b, err := bot.New(secrets.BotToken, bopts...)
	if err != nil {
		return nil, fmt.Errorf("could not create telegram bot: %w", err)
	}
	c := &Client{
		bot:     b,
		secrets: secrets.Clone(),
	}
	return c, nil
}

// SendMessage sends the message to all chats. Returns an error only if no
// chat could be notified.
func (c *Client) SendMessage(ctx context.Context, at time.Time, text string) error {
	msg := at.Format("2006-01-02 15:04:05 MST") + " " + text
	slog.Info("sending notification", "at", at, "message", text)

	var lastErr error
	sent := 0
	for _, cid := range c.secrets.ChatIDs {
		m := &bot.SendMessageParams{
			ChatID: cid,
			Text:   msg,
		}
		if _, err := c.bot.SendMessage(ctx, m); err != nil {
			slog.Error("could not notify chat (ignored)", "chat-id", cid, "err", err)
			lastErr = err
			continue
		}
		sent++
	}
	if sent == 0 && lastErr != nil {
		return fmt.Errorf("could not notify any chat: %w", lastErr)
	}
	return nil
}
