// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"strings"

	"github.com/chime-foundation/chime/lib/ref"
)

// Control identifies one of the reaction-driven clock controls.
type Control string

const (
	ControlAdvance Control = "advance"
	ControlRewind  Control = "rewind"
	ControlDelete  Control = "delete"
	ControlLock    Control = "lock"
	ControlUnlock  Control = "unlock"
)

// Reaction keys for each control. Clients differ on whether they send
// the emoji with the U+FE0F emoji-presentation selector, so matching
// goes through NormalizeReactionKey rather than comparing these
// directly.
const (
	KeyAdvance = "▶️" // ▶️
	KeyRewind  = "◀️" // ◀️
	KeyDelete  = "\U0001f6ae"   // 🚮
	KeyLock    = "\U0001f512"   // 🔒
	KeyUnlock  = "\U0001f513"   // 🔓
)

// controlKeys maps normalized reaction keys to controls.
var controlKeys = map[string]Control{
	NormalizeReactionKey(KeyAdvance): ControlAdvance,
	NormalizeReactionKey(KeyRewind):  ControlRewind,
	NormalizeReactionKey(KeyDelete):  ControlDelete,
	NormalizeReactionKey(KeyLock):    ControlLock,
	NormalizeReactionKey(KeyUnlock):  ControlUnlock,
}

// NormalizeReactionKey strips the U+FE0F variation selector so that
// text-presentation and emoji-presentation forms of the same character
// compare equal.
func NormalizeReactionKey(key string) string {
	return strings.ReplaceAll(key, "️", "")
}

// ControlFromKey maps a reaction key to its control. Returns false for
// keys that are not clock controls.
func ControlFromKey(key string) (Control, bool) {
	control, ok := controlKeys[NormalizeReactionKey(key)]
	return control, ok
}

// Reaction is a parsed m.reaction event: which control was pressed on
// which message.
type Reaction struct {
	Control Control
	Target  ref.EventID
}

// ParseReaction extracts a clock control press from raw m.reaction
// event content. Returns false for reactions with other keys, missing
// relations, or the wrong relation type.
func ParseReaction(content map[string]any) (Reaction, bool) {
	relates, ok := content["m.relates_to"].(map[string]any)
	if !ok {
		return Reaction{}, false
	}
	if relType, _ := relates["rel_type"].(string); relType != RelTypeAnnotation {
		return Reaction{}, false
	}
	key, _ := relates["key"].(string)
	control, ok := ControlFromKey(key)
	if !ok {
		return Reaction{}, false
	}
	rawEventID, _ := relates["event_id"].(string)
	target, err := ref.ParseEventID(rawEventID)
	if err != nil {
		return Reaction{}, false
	}
	return Reaction{Control: control, Target: target}, true
}
