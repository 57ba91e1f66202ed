// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/chime-foundation/chime/lib/clock"
	"github.com/chime-foundation/chime/lib/clocks"
	"github.com/chime-foundation/chime/lib/ref"
	"github.com/chime-foundation/chime/lib/schema"
	"github.com/chime-foundation/chime/messaging"
)

// Bot is the daemon's core state: the authenticated session and the
// clock machinery everything routes through.
type Bot struct {
	session   *messaging.Session
	userID    ref.UserID
	service   *clocks.Service
	renderer  *clocks.Renderer
	registry  *clocks.Registry
	directory clocks.MessageDirectory

	surfaceCfg clocks.SurfaceConfig

	clk       clock.Clock
	noticeTTL time.Duration
	logger    *slog.Logger
}

// sessionDirectory adapts a Matrix session to the MessageDirectory
// capability the clock surfaces expect.
type sessionDirectory struct {
	session *messaging.Session
}

func (d *sessionDirectory) FetchEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) (map[string]any, error) {
	event, err := d.session.GetEvent(ctx, roomID, eventID)
	if err != nil {
		return nil, err
	}
	return event.Content, nil
}

func (d *sessionDirectory) SendMessage(ctx context.Context, roomID ref.RoomID, content schema.ClockMessage) (ref.EventID, error) {
	return d.session.SendMessage(ctx, roomID, content)
}

func (d *sessionDirectory) RedactEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) error {
	return d.session.RedactEvent(ctx, roomID, eventID, reason)
}

// sendNotice posts a transient m.notice reply and schedules its
// redaction after the notice TTL, mirroring the self-deleting replies
// users expect from command feedback. A zero TTL leaves the notice in
// place.
func (b *Bot) sendNotice(ctx context.Context, roomID ref.RoomID, text string) {
	eventID, err := b.session.SendMessage(ctx, roomID, messaging.NewNotice(text))
	if err != nil {
		b.logger.Error("sending notice", "room", roomID, "error", err)
		return
	}
	if b.noticeTTL <= 0 {
		return
	}
	b.clk.AfterFunc(b.noticeTTL, func() {
		redactCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.session.RedactEvent(redactCtx, roomID, eventID, "notice expired"); err != nil {
			b.logger.Debug("redacting expired notice", "room", roomID, "event", eventID, "error", err)
		}
	})
}

// postClock renders a clock, posts it to the room, and binds a fresh
// unlocked surface to the new message. Shared by the add, show, and
// tick commands.
func (b *Bot) postClock(ctx context.Context, roomID ref.RoomID, owner ref.UserID, clk clocks.Clock) {
	presentation, err := b.renderer.RenderOrText(ctx, clk)
	if err != nil {
		b.logger.Error("rendering clock", "tag", clk.Tag, "error", err)
		b.sendNotice(ctx, roomID, "Something went wrong, please try again.")
		return
	}
	message, err := clocks.ComposeMessage(clk, presentation, owner, false)
	if err != nil {
		b.logger.Error("composing clock message", "tag", clk.Tag, "error", err)
		b.sendNotice(ctx, roomID, "Something went wrong, please try again.")
		return
	}
	eventID, err := b.directory.SendMessage(ctx, roomID, message)
	if err != nil {
		b.logger.Error("posting clock message", "tag", clk.Tag, "error", err)
		b.sendNotice(ctx, roomID, "Something went wrong, please try again.")
		return
	}
	clocks.NewSurface(b.surfaceCfg, owner, clk.Tag, roomID, eventID, clocks.StateUnlocked)
}
