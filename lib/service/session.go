// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chime-foundation/chime/lib/secret"
	"github.com/chime-foundation/chime/messaging"
)

// SessionData is the JSON structure of session.json, written by the
// login command and read by the daemon at startup.
type SessionData struct {
	HomeserverURL string `json:"homeserver_url"`
	UserID        string `json:"user_id"`
	AccessToken   string `json:"access_token"`
}

// LoadSession reads stateDir/session.json and returns an authenticated
// session, validated against the homeserver with a whoami round trip.
// A non-empty homeserverURL overrides the URL stored in the file.
//
// The access token is moved into guarded memory; the raw JSON bytes
// are zeroed after parsing. The caller must Close the session.
func LoadSession(ctx context.Context, stateDir, homeserverURL string) (*messaging.Session, error) {
	sessionPath := filepath.Join(stateDir, "session.json")

	jsonData, err := os.ReadFile(sessionPath)
	if err != nil {
		return nil, fmt.Errorf("reading session from %s: %w", sessionPath, err)
	}

	var data SessionData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		secret.Zero(jsonData)
		return nil, fmt.Errorf("parsing session from %s: %w", sessionPath, err)
	}
	secret.Zero(jsonData)

	if data.AccessToken == "" {
		return nil, fmt.Errorf("session file %s has empty access token", sessionPath)
	}

	serverURL := homeserverURL
	if serverURL == "" {
		serverURL = data.HomeserverURL
	}

	client, err := messaging.NewClient(serverURL)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	token, err := secret.NewFromBytes([]byte(data.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("guarding access token: %w", err)
	}

	session, err := client.SessionFromToken(ctx, token)
	if err != nil {
		token.Close()
		return nil, err
	}
	return session, nil
}

// SaveSession writes session.json into stateDir with owner-only
// permissions. The directory is created if missing.
func SaveSession(stateDir string, data SessionData) error {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return fmt.Errorf("creating state directory %s: %w", stateDir, err)
	}
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	sessionPath := filepath.Join(stateDir, "session.json")
	if err := os.WriteFile(sessionPath, encoded, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", sessionPath, err)
	}
	return nil
}
