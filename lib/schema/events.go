// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"fmt"

	"github.com/chime-foundation/chime/lib/ref"
)

// Matrix event type constants.
const (
	// EventTypeMessage is the standard Matrix room message type. Clock
	// displays and notices are both m.room.message events.
	EventTypeMessage = "m.room.message"

	// EventTypeReaction is the annotation event users send by clicking
	// a reaction. Chime reads these as control presses on its clock
	// messages.
	EventTypeReaction = "m.reaction"

	// EventTypeRedaction removes an event's content. Chime redacts its
	// own expired notices and watches for redactions of clock messages.
	EventTypeRedaction = "m.room.redaction"

	// EventTypeMember is the room membership state event. Chime watches
	// it only to accept invites during sync.
	EventTypeMember = "m.room.member"
)

// Message type constants for the msgtype field of m.room.message.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeImage  = "m.image"
)

// Relation type constants for m.relates_to blocks.
const (
	// RelTypeAnnotation marks a reaction: the relation's key field
	// holds the emoji, the event_id field the message reacted to.
	RelTypeAnnotation = "m.annotation"

	// RelTypeReplace marks a message edit. The replacement event's
	// m.new_content holds the new body; the original event keeps its
	// original content when fetched by ID.
	RelTypeReplace = "m.replace"
)

// ClockContentKey is the content field under which clock messages
// carry their identity block. The key is namespaced so other clients
// ignore it; redacting the message strips it, which is how a clock
// message stops being one.
const ClockContentKey = "dev.chime.clock"

// HTMLFormat is the value of the format field when formatted_body
// carries rendered HTML.
const HTMLFormat = "org.matrix.custom.html"

// ClockInfo is the identity block embedded in every clock message.
// Owner and Tag key the clock in the store; Locked records the
// interaction state the message was last rendered in, so a restarted
// bot fetching the event knows which controls were live.
type ClockInfo struct {
	Owner  ref.UserID `json:"owner"`
	Tag    string     `json:"tag"`
	Locked bool       `json:"locked"`
}

// RelatesTo is the m.relates_to block shared by reactions and edits.
type RelatesTo struct {
	RelType string      `json:"rel_type,omitempty"`
	EventID ref.EventID `json:"event_id,omitempty"`
	Key     string      `json:"key,omitempty"`
}

// NewContent is the m.new_content block of a replacement event: the
// full content the target message should now display.
type NewContent struct {
	MsgType       string     `json:"msgtype"`
	Body          string     `json:"body"`
	Format        string     `json:"format,omitempty"`
	FormattedBody string     `json:"formatted_body,omitempty"`
	URL           string     `json:"url,omitempty"`
	Clock         *ClockInfo `json:"dev.chime.clock,omitempty"`
}

// ClockMessage is the content of a clock display event. A fresh clock
// is a plain message with an embedded ClockInfo; an update to an
// existing display additionally carries an m.replace relation and
// m.new_content (Matrix clients that understand edits show
// NewContent, ones that don't show the fallback Body).
type ClockMessage struct {
	MsgType       string      `json:"msgtype"`
	Body          string      `json:"body"`
	Format        string      `json:"format,omitempty"`
	FormattedBody string      `json:"formatted_body,omitempty"`
	URL           string      `json:"url,omitempty"`
	Clock         *ClockInfo  `json:"dev.chime.clock,omitempty"`
	NewContent    *NewContent `json:"m.new_content,omitempty"`
	RelatesTo     *RelatesTo  `json:"m.relates_to,omitempty"`
}

// AsReplacement converts the message into an edit of the given event.
// The top-level fields become the fallback ("* ..." style) and the
// original content moves into m.new_content, per the Matrix edit
// convention.
func (m ClockMessage) AsReplacement(target ref.EventID) ClockMessage {
	replacement := m
	replacement.NewContent = &NewContent{
		MsgType:       m.MsgType,
		Body:          m.Body,
		Format:        m.Format,
		FormattedBody: m.FormattedBody,
		URL:           m.URL,
		Clock:         m.Clock,
	}
	replacement.Body = "* " + m.Body
	replacement.RelatesTo = &RelatesTo{
		RelType: RelTypeReplace,
		EventID: target,
	}
	return replacement
}

// ClockInfoFromContent extracts the clock identity block from raw
// event content. It checks the top-level content first and then
// m.new_content, so it works on both original clock messages and
// replacement events. Returns false if the event carries no clock
// block.
func ClockInfoFromContent(content map[string]any) (ClockInfo, bool, error) {
	raw, ok := content[ClockContentKey]
	if !ok {
		newContent, isMap := content["m.new_content"].(map[string]any)
		if isMap {
			raw, ok = newContent[ClockContentKey]
		}
	}
	if !ok {
		return ClockInfo{}, false, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return ClockInfo{}, false, fmt.Errorf("re-encoding %s block: %w", ClockContentKey, err)
	}
	var info ClockInfo
	if err := json.Unmarshal(encoded, &info); err != nil {
		return ClockInfo{}, false, fmt.Errorf("decoding %s block: %w", ClockContentKey, err)
	}
	if info.Owner.IsZero() || info.Tag == "" {
		return ClockInfo{}, false, fmt.Errorf("%s block missing owner or tag", ClockContentKey)
	}
	return info, true, nil
}
