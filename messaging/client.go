// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/chime-foundation/chime/lib/netutil"
	"github.com/chime-foundation/chime/lib/secret"
)

// Client is an unauthenticated handle on a Matrix homeserver. It can
// perform login; everything else requires a Session.
type Client struct {
	homeserverURL string
	httpClient    *http.Client
}

// NewClient creates a client for the given homeserver URL. The URL
// must include the scheme and must not have a trailing slash.
func NewClient(homeserverURL string) (*Client, error) {
	parsed, err := url.Parse(homeserverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid homeserver URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("homeserver URL must use http or https, got %q", parsed.Scheme)
	}
	return &Client{
		homeserverURL: strings.TrimRight(homeserverURL, "/"),
		httpClient:    &http.Client{},
	}, nil
}

// HomeserverURL returns the homeserver base URL the client talks to.
func (c *Client) HomeserverURL() string {
	return c.homeserverURL
}

// Login authenticates with a username and password and returns an
// authenticated session. The password is read from the secret buffer
// at call time and never retained.
func (c *Client) Login(ctx context.Context, username string, password *secret.Buffer, deviceName string) (*Session, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if password == nil {
		return nil, fmt.Errorf("password is required")
	}
	request := LoginRequest{
		Type:                     "m.login.password",
		User:                     username,
		Password:                 password.String(),
		InitialDeviceDisplayName: deviceName,
	}
	var response AuthResponse
	err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", "", request, &response)
	if err != nil {
		return nil, fmt.Errorf("login failed for %q: %w", username, err)
	}
	token, err := secret.NewFromBytes([]byte(response.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("storing access token: %w", err)
	}
	return &Session{
		client:      c,
		userID:      response.UserID,
		accessToken: token,
		deviceID:    response.DeviceID,
	}, nil
}

// SessionFromToken constructs a session from a previously obtained
// access token, without performing a login round trip. The session
// takes ownership of the token buffer.
func (c *Client) SessionFromToken(ctx context.Context, token *secret.Buffer) (*Session, error) {
	session := &Session{
		client:      c,
		accessToken: token,
	}
	whoami, err := session.WhoAmI(ctx)
	if err != nil {
		return nil, fmt.Errorf("validating access token: %w", err)
	}
	session.userID = whoami.UserID
	session.deviceID = whoami.DeviceID
	return session, nil
}

// doRequest performs an HTTP request against the homeserver with a
// JSON request body (may be nil) and decodes the JSON response into
// result (may be nil to discard). Matrix-level errors are returned as
// *MatrixError.
func (c *Client) doRequest(ctx context.Context, method, path, accessToken string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}
	responseBody, err := c.doRequestRaw(ctx, method, path, accessToken, "application/json", bodyReader)
	if err != nil {
		return err
	}
	if result != nil {
		if err := json.Unmarshal(responseBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// doRequestRaw performs an HTTP request with an arbitrary body and
// content type, returning the raw response bytes. Used directly for
// media uploads, and by doRequest for JSON traffic.
func (c *Client) doRequestRaw(ctx context.Context, method, path, accessToken, contentType string, body io.Reader) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.homeserverURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", contentType)
	}
	if accessToken != "" {
		request.Header.Set("Authorization", "Bearer "+accessToken)
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		matrixErr := &MatrixError{StatusCode: response.StatusCode}
		if err := json.Unmarshal(responseBody, matrixErr); err != nil || matrixErr.Code == "" {
			matrixErr.Code = ErrCodeUnknown
			matrixErr.Message = strings.TrimSpace(string(responseBody))
		}
		return nil, matrixErr
	}
	return responseBody, nil
}
