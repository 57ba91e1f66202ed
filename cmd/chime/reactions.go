// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/chime-foundation/chime/lib/clocks"
	"github.com/chime-foundation/chime/lib/ref"
	"github.com/chime-foundation/chime/lib/schema"
	"github.com/chime-foundation/chime/messaging"
)

// handleReaction routes a control reaction to the surface it targets.
// Reactions on messages the registry doesn't know about trigger a
// rebuild from the target event, which is how clock messages posted
// before a restart come back to life.
func (b *Bot) handleReaction(ctx context.Context, roomID ref.RoomID, event messaging.Event) {
	reaction, ok := schema.ParseReaction(event.Content)
	if !ok {
		return
	}

	surface, ok := b.registry.Lookup(roomID, reaction.Target)
	if !ok {
		rebuilt, err := clocks.Rebuild(ctx, b.surfaceCfg, roomID, reaction.Target)
		if err != nil {
			b.logger.Debug("rebuilding surface",
				"room", roomID, "event", reaction.Target, "error", err)
			return
		}
		if rebuilt == nil {
			// Not a clock message; somebody reacted 🔒 to lunch plans.
			return
		}
		surface = rebuilt
	}

	outcome := surface.HandleControl(ctx, event.Sender, reaction.Control, roomID, reaction.Target)
	if outcome.Notice != "" {
		b.sendNotice(ctx, roomID, outcome.Notice)
	}
}
