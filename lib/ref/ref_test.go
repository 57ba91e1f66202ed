// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"testing"
)

func TestParseRoomID(t *testing.T) {
	valid := []string{"!abc:chime.local", "!x:example.com:8448"}
	for _, raw := range valid {
		if _, err := ParseRoomID(raw); err != nil {
			t.Errorf("ParseRoomID(%q) = %v, want nil", raw, err)
		}
	}

	invalid := []string{"", "abc:chime.local", "!abc", "!:chime.local", "!abc:"}
	for _, raw := range invalid {
		if _, err := ParseRoomID(raw); err == nil {
			t.Errorf("ParseRoomID(%q) succeeded, want error", raw)
		}
	}
}

func TestParseEventID(t *testing.T) {
	if _, err := ParseEventID("$abc123"); err != nil {
		t.Errorf("ParseEventID($abc123) = %v", err)
	}
	for _, raw := range []string{"", "abc", "$"} {
		if _, err := ParseEventID(raw); err == nil {
			t.Errorf("ParseEventID(%q) succeeded, want error", raw)
		}
	}
}

func TestParseUserID(t *testing.T) {
	u, err := ParseUserID("@alice:chime.local")
	if err != nil {
		t.Fatalf("ParseUserID: %v", err)
	}
	if got := u.Localpart(); got != "alice" {
		t.Errorf("Localpart = %q, want %q", got, "alice")
	}

	for _, raw := range []string{"", "alice", "@alice", "@:chime.local", "@alice:"} {
		if _, err := ParseUserID(raw); err == nil {
			t.Errorf("ParseUserID(%q) succeeded, want error", raw)
		}
	}
}

func TestUserIDJSONRoundtrip(t *testing.T) {
	type payload struct {
		Owner UserID `json:"owner"`
	}
	original := payload{Owner: MustParseUserID("@bob:chime.local")}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded payload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Owner != original.Owner {
		t.Errorf("roundtrip = %v, want %v", decoded.Owner, original.Owner)
	}
}

func TestEventIDZeroValue(t *testing.T) {
	var e EventID
	if !e.IsZero() {
		t.Error("zero EventID should report IsZero")
	}
	if MustParseEventID("$x").IsZero() {
		t.Error("parsed EventID should not report IsZero")
	}
}
