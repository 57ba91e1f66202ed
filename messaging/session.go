// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/chime-foundation/chime/lib/ref"
	"github.com/chime-foundation/chime/lib/secret"
)

// Session is an authenticated connection to a Matrix homeserver.
type Session struct {
	client      *Client
	userID      ref.UserID
	accessToken *secret.Buffer
	deviceID    string
	txnCounter  atomic.Uint64
}

// UserID returns the Matrix user ID this session is authenticated as.
func (s *Session) UserID() ref.UserID {
	return s.userID
}

// DeviceID returns the device ID of this session, if known.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// AccessToken returns the raw access token. Callers must not retain
// the returned string beyond immediate use.
func (s *Session) AccessToken() string {
	return s.accessToken.String()
}

// Close releases the session's secret material. The session must not
// be used after Close.
func (s *Session) Close() error {
	return s.accessToken.Close()
}

// CloseIdleConnections closes idle HTTP connections to the homeserver.
func (s *Session) CloseIdleConnections() {
	s.client.httpClient.CloseIdleConnections()
}

// nextTxnID returns a transaction ID unique within this session.
// Matrix uses transaction IDs to deduplicate retried PUTs.
func (s *Session) nextTxnID() string {
	return fmt.Sprintf("chime-%d-%d", time.Now().UnixNano(), s.txnCounter.Add(1))
}

// WhoAmI asks the homeserver which user this session's token belongs
// to.
func (s *Session) WhoAmI(ctx context.Context) (*WhoAmIResponse, error) {
	var response WhoAmIResponse
	err := s.client.doRequest(ctx, "GET", "/_matrix/client/v3/account/whoami", s.accessToken.String(), nil, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// JoinRoom joins the given room.
func (s *Session) JoinRoom(ctx context.Context, roomID ref.RoomID) error {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) + "/join"
	err := s.client.doRequest(ctx, "POST", path, s.accessToken.String(), struct{}{}, nil)
	if err != nil {
		return fmt.Errorf("joining %s: %w", roomID, err)
	}
	return nil
}

// JoinedRooms returns the rooms this session's user has joined.
func (s *Session) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	var response JoinedRoomsResponse
	err := s.client.doRequest(ctx, "GET", "/_matrix/client/v3/joined_rooms", s.accessToken.String(), nil, &response)
	if err != nil {
		return nil, err
	}
	return response.JoinedRooms, nil
}

// SendMessage sends an m.room.message event with the given content and
// returns the new event's ID.
func (s *Session) SendMessage(ctx context.Context, roomID ref.RoomID, content any) (ref.EventID, error) {
	return s.SendEvent(ctx, roomID, "m.room.message", content)
}

// SendEvent sends an event of the given type and returns the new
// event's ID.
func (s *Session) SendEvent(ctx context.Context, roomID ref.RoomID, eventType string, content any) (ref.EventID, error) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) +
		"/send/" + url.PathEscape(eventType) + "/" + url.PathEscape(s.nextTxnID())
	var response SendEventResponse
	err := s.client.doRequest(ctx, "PUT", path, s.accessToken.String(), content, &response)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("sending %s to %s: %w", eventType, roomID, err)
	}
	return response.EventID, nil
}

// RedactEvent redacts (removes the content of) an event. An empty
// reason is allowed.
func (s *Session) RedactEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) error {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) +
		"/redact/" + url.PathEscape(eventID.String()) + "/" + url.PathEscape(s.nextTxnID())
	err := s.client.doRequest(ctx, "PUT", path, s.accessToken.String(), RedactRequest{Reason: reason}, nil)
	if err != nil {
		return fmt.Errorf("redacting %s in %s: %w", eventID, roomID, err)
	}
	return nil
}

// GetEvent fetches a single event by ID. Returns the original event
// content as sent, even if the event has since been replaced by an
// edit.
func (s *Session) GetEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) (*Event, error) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) +
		"/event/" + url.PathEscape(eventID.String())
	var event Event
	err := s.client.doRequest(ctx, "GET", path, s.accessToken.String(), nil, &event)
	if err != nil {
		return nil, fmt.Errorf("fetching %s from %s: %w", eventID, roomID, err)
	}
	return &event, nil
}

// Sync performs a single /sync request. Long-polling is controlled via
// the options; callers loop over Sync feeding each response's
// NextBatch back in as Since.
func (s *Session) Sync(ctx context.Context, opts SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if opts.Since != "" {
		query.Set("since", opts.Since)
	}
	if opts.SetTimeout {
		query.Set("timeout", fmt.Sprintf("%d", opts.Timeout))
	}
	if opts.Filter != "" {
		query.Set("filter", opts.Filter)
	}
	path := "/_matrix/client/v3/sync"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var response SyncResponse
	err := s.client.doRequest(ctx, "GET", path, s.accessToken.String(), nil, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// UploadMedia uploads a blob to the homeserver's media repository and
// returns its mxc:// content URI.
func (s *Session) UploadMedia(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	path := "/_matrix/media/v3/upload"
	if filename != "" {
		path += "?filename=" + url.QueryEscape(filename)
	}
	body, err := s.client.doRequestRaw(ctx, "POST", path, s.accessToken.String(), contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", filename, err)
	}
	var response UploadResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("uploading %s: decoding response: %w", filename, err)
	}
	if response.ContentURI == "" {
		return "", fmt.Errorf("uploading %s: server returned no content_uri", filename)
	}
	return response.ContentURI, nil
}
