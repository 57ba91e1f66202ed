// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package clocks

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/chime-foundation/chime/lib/ref"
	"github.com/chime-foundation/chime/lib/schema"
)

// lockedFooter is appended to a locked clock's body so the room can
// see which control is still live.
const lockedFooter = "\U0001f512 locked — react \U0001f513 to unlock"

// ComposeMessage builds the Matrix message content for a clock in the
// given interaction state. Image presentations become m.image events
// with the caption as body; text presentations become m.text with the
// Markdown source as fallback body and a goldmark-rendered HTML
// formatted body. The dev.chime.clock identity block is always
// embedded.
func ComposeMessage(clock Clock, presentation Presentation, owner ref.UserID, locked bool) (schema.ClockMessage, error) {
	info := &schema.ClockInfo{
		Owner:  owner,
		Tag:    clock.Tag,
		Locked: locked,
	}

	if presentation.IsImage() {
		body := presentation.Caption
		if locked {
			body += "\n" + lockedFooter
		}
		return schema.ClockMessage{
			MsgType: schema.MsgTypeImage,
			Body:    body,
			URL:     presentation.ImageURI,
			Clock:   info,
		}, nil
	}

	markdown := fmt.Sprintf("**%s**: %d/%d", clock.Name, clock.Position, clock.Size)
	if locked {
		markdown += "\n\n" + lockedFooter
	}
	formatted, err := renderHTML(markdown)
	if err != nil {
		return schema.ClockMessage{}, fmt.Errorf("clocks: formatting message for %q: %w", clock.Tag, err)
	}
	return schema.ClockMessage{
		MsgType:       schema.MsgTypeText,
		Body:          markdown,
		Format:        schema.HTMLFormat,
		FormattedBody: formatted,
		Clock:         info,
	}, nil
}

// ComposeListing builds a notice listing the owner's clocks in
// insertion order, or a "no clocks yet" line for an empty collection.
func ComposeListing(clocks []Clock) (schema.ClockMessage, error) {
	if len(clocks) == 0 {
		return schema.ClockMessage{
			MsgType: schema.MsgTypeNotice,
			Body:    "You have no clocks yet. Start one with !clock add <tag> <size> <name>.",
		}, nil
	}
	var lines []string
	for _, clock := range clocks {
		lines = append(lines, fmt.Sprintf("- **%s**: %d/%d (`%s`)", clock.Name, clock.Position, clock.Size, clock.Tag))
	}
	markdown := strings.Join(lines, "\n")
	formatted, err := renderHTML(markdown)
	if err != nil {
		return schema.ClockMessage{}, fmt.Errorf("clocks: formatting listing: %w", err)
	}
	return schema.ClockMessage{
		MsgType:       schema.MsgTypeNotice,
		Body:          markdown,
		Format:        schema.HTMLFormat,
		FormattedBody: formatted,
	}, nil
}

// renderHTML converts Markdown to the HTML dialect Matrix clients
// display in formatted_body.
func renderHTML(markdown string) (string, error) {
	var buffer bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buffer); err != nil {
		return "", err
	}
	return strings.TrimSpace(buffer.String()), nil
}
