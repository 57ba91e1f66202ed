// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"

	"github.com/chime-foundation/chime/lib/ref"
	"github.com/chime-foundation/chime/lib/schema"
	"github.com/chime-foundation/chime/lib/service"
	"github.com/chime-foundation/chime/messaging"
)

// syncFilter restricts /sync responses to the event types the bot
// consumes: room messages (commands), reactions (clock controls), and
// membership (invites). Built from typed constants so event type
// renames are caught at compile time.
var syncFilter = buildSyncFilter()

func buildSyncFilter() string {
	timelineEventTypes := []string{
		schema.EventTypeMessage,
		schema.EventTypeReaction,
	}
	emptyTypes := []string{}

	filter := map[string]any{
		"room": map[string]any{
			"state": map[string]any{
				"types": []string{schema.EventTypeMember},
				"lazy_load_members": true,
			},
			"timeline": map[string]any{
				"types": timelineEventTypes,
				"limit": 100,
			},
			"ephemeral": map[string]any{
				"types": emptyTypes,
			},
			"account_data": map[string]any{
				"types": emptyTypes,
			},
		},
		"presence": map[string]any{
			"types": emptyTypes,
		},
		"account_data": map[string]any{
			"types": emptyTypes,
		},
	}

	data, err := json.Marshal(filter)
	if err != nil {
		panic("building sync filter: " + err.Error())
	}
	return string(data)
}

// initialSync performs the first /sync and accepts any invites that
// arrived while the bot was offline. Timeline events from the initial
// snapshot are deliberately not processed: they predate this process,
// and clock messages among them are picked up lazily through the
// surface rebuild path when someone reacts to them.
func (b *Bot) initialSync(ctx context.Context) (string, error) {
	sinceToken, response, err := service.InitialSync(ctx, b.session, syncFilter)
	if err != nil {
		return "", err
	}

	b.logger.Info("initial sync complete",
		"next_batch", sinceToken,
		"joined_rooms", len(response.Rooms.Join),
		"pending_invites", len(response.Rooms.Invite),
	)

	service.AcceptInvites(ctx, b.session, response.Rooms.Invite, b.logger)
	return sinceToken, nil
}

// handleSync processes an incremental /sync response: accept invites,
// then route each timeline event in joined rooms.
func (b *Bot) handleSync(ctx context.Context, response *messaging.SyncResponse) {
	if len(response.Rooms.Invite) > 0 {
		accepted := service.AcceptInvites(ctx, b.session, response.Rooms.Invite, b.logger)
		if len(accepted) > 0 {
			b.logger.Info("accepted room invites", "count", len(accepted))
		}
	}

	for roomID, room := range response.Rooms.Join {
		for _, event := range room.Timeline.Events {
			b.routeEvent(ctx, roomID, event)
		}
	}
}

// routeEvent dispatches a single timeline event. The bot's own events
// are skipped: its clock messages and notices must not feed back into
// command handling.
func (b *Bot) routeEvent(ctx context.Context, roomID ref.RoomID, event messaging.Event) {
	if event.Sender == b.userID {
		return
	}
	switch event.Type {
	case schema.EventTypeMessage:
		b.handleMessage(ctx, roomID, event)
	case schema.EventTypeReaction:
		b.handleReaction(ctx, roomID, event)
	}
}
