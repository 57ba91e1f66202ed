// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"testing"

	"github.com/chime-foundation/chime/lib/ref"
)

func TestClockInfoFromContent(t *testing.T) {
	t.Run("top-level block", func(t *testing.T) {
		content := map[string]any{
			"msgtype": MsgTypeText,
			"body":    "harm: 2/6",
			ClockContentKey: map[string]any{
				"owner":  "@alice:test.local",
				"tag":    "harm",
				"locked": false,
			},
		}
		info, ok, err := ClockInfoFromContent(content)
		if err != nil {
			t.Fatalf("ClockInfoFromContent failed: %v", err)
		}
		if !ok {
			t.Fatal("expected clock block to be found")
		}
		if info.Owner.String() != "@alice:test.local" {
			t.Errorf("unexpected owner: %s", info.Owner)
		}
		if info.Tag != "harm" {
			t.Errorf("unexpected tag: %s", info.Tag)
		}
		if info.Locked {
			t.Error("expected unlocked")
		}
	})

	t.Run("block inside m.new_content", func(t *testing.T) {
		content := map[string]any{
			"msgtype": MsgTypeText,
			"body":    "* harm: 3/6",
			"m.new_content": map[string]any{
				"msgtype": MsgTypeText,
				"body":    "harm: 3/6",
				ClockContentKey: map[string]any{
					"owner":  "@alice:test.local",
					"tag":    "harm",
					"locked": true,
				},
			},
		}
		info, ok, err := ClockInfoFromContent(content)
		if err != nil {
			t.Fatalf("ClockInfoFromContent failed: %v", err)
		}
		if !ok {
			t.Fatal("expected clock block to be found")
		}
		if !info.Locked {
			t.Error("expected locked")
		}
	})

	t.Run("no block", func(t *testing.T) {
		content := map[string]any{"msgtype": MsgTypeText, "body": "hi"}
		_, ok, err := ClockInfoFromContent(content)
		if err != nil {
			t.Fatalf("ClockInfoFromContent failed: %v", err)
		}
		if ok {
			t.Error("expected no clock block in plain message")
		}
	})

	t.Run("malformed block", func(t *testing.T) {
		content := map[string]any{
			ClockContentKey: map[string]any{"tag": ""},
		}
		_, _, err := ClockInfoFromContent(content)
		if err == nil {
			t.Fatal("expected error for block missing owner and tag")
		}
	})
}

func TestClockMessageRoundTrip(t *testing.T) {
	message := ClockMessage{
		MsgType: MsgTypeText,
		Body:    "doom: 4/8",
		Clock: &ClockInfo{
			Owner: ref.MustParseUserID("@bob:test.local"),
			Tag:   "doom",
		},
	}
	encoded, err := json.Marshal(message)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	// Decode as raw content, the way sync delivers it, and confirm
	// the identity block survives.
	var content map[string]any
	if err := json.Unmarshal(encoded, &content); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	info, ok, err := ClockInfoFromContent(content)
	if err != nil || !ok {
		t.Fatalf("clock block not recovered: ok=%v err=%v", ok, err)
	}
	if info.Tag != "doom" {
		t.Errorf("unexpected tag: %s", info.Tag)
	}
}

func TestAsReplacement(t *testing.T) {
	original := ClockMessage{
		MsgType: MsgTypeText,
		Body:    "doom: 5/8",
		Clock: &ClockInfo{
			Owner: ref.MustParseUserID("@bob:test.local"),
			Tag:   "doom",
		},
	}
	target := ref.MustParseEventID("$display:test.local")
	replacement := original.AsReplacement(target)

	if replacement.RelatesTo == nil || replacement.RelatesTo.RelType != RelTypeReplace {
		t.Fatal("replacement missing m.replace relation")
	}
	if replacement.RelatesTo.EventID != target {
		t.Errorf("unexpected relation target: %s", replacement.RelatesTo.EventID)
	}
	if replacement.NewContent == nil {
		t.Fatal("replacement missing m.new_content")
	}
	if replacement.NewContent.Body != "doom: 5/8" {
		t.Errorf("unexpected new content body: %s", replacement.NewContent.Body)
	}
	if replacement.Body != "* doom: 5/8" {
		t.Errorf("unexpected fallback body: %s", replacement.Body)
	}
	if replacement.NewContent.Clock == nil || replacement.NewContent.Clock.Tag != "doom" {
		t.Error("clock block missing from new content")
	}
}

func TestParseReaction(t *testing.T) {
	reactionContent := func(key, eventID string) map[string]any {
		return map[string]any{
			"m.relates_to": map[string]any{
				"rel_type": RelTypeAnnotation,
				"event_id": eventID,
				"key":      key,
			},
		}
	}

	t.Run("advance control", func(t *testing.T) {
		reaction, ok := ParseReaction(reactionContent(KeyAdvance, "$msg:test.local"))
		if !ok {
			t.Fatal("expected reaction to parse")
		}
		if reaction.Control != ControlAdvance {
			t.Errorf("unexpected control: %s", reaction.Control)
		}
		if reaction.Target.String() != "$msg:test.local" {
			t.Errorf("unexpected target: %s", reaction.Target)
		}
	})

	t.Run("key without variation selector", func(t *testing.T) {
		reaction, ok := ParseReaction(reactionContent("◀", "$msg:test.local"))
		if !ok {
			t.Fatal("expected bare rewind character to parse")
		}
		if reaction.Control != ControlRewind {
			t.Errorf("unexpected control: %s", reaction.Control)
		}
	})

	t.Run("unrelated emoji", func(t *testing.T) {
		if _, ok := ParseReaction(reactionContent("\U0001f44d", "$msg:test.local")); ok {
			t.Error("thumbs-up should not parse as a control")
		}
	})

	t.Run("wrong relation type", func(t *testing.T) {
		content := map[string]any{
			"m.relates_to": map[string]any{
				"rel_type": RelTypeReplace,
				"event_id": "$msg:test.local",
				"key":      KeyAdvance,
			},
		}
		if _, ok := ParseReaction(content); ok {
			t.Error("m.replace relation should not parse as a control")
		}
	})

	t.Run("missing relation", func(t *testing.T) {
		if _, ok := ParseReaction(map[string]any{}); ok {
			t.Error("empty content should not parse")
		}
	})

	t.Run("invalid target event ID", func(t *testing.T) {
		if _, ok := ParseReaction(reactionContent(KeyAdvance, "not-an-event-id")); ok {
			t.Error("invalid event ID should not parse")
		}
	})
}

func TestControlFromKey(t *testing.T) {
	cases := []struct {
		key     string
		control Control
	}{
		{KeyAdvance, ControlAdvance},
		{KeyRewind, ControlRewind},
		{KeyDelete, ControlDelete},
		{KeyLock, ControlLock},
		{KeyUnlock, ControlUnlock},
	}
	for _, c := range cases {
		control, ok := ControlFromKey(c.key)
		if !ok {
			t.Errorf("key %q did not map to a control", c.key)
			continue
		}
		if control != c.control {
			t.Errorf("key %q mapped to %s, want %s", c.key, control, c.control)
		}
	}
}
