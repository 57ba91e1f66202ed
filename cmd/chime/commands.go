// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chime-foundation/chime/lib/clocks"
	"github.com/chime-foundation/chime/lib/ref"
	"github.com/chime-foundation/chime/messaging"
)

const commandPrefix = "!clock"

const usageText = "Usage: !clock add <tag> <size> [name…] [start] | show <tag> | tick <tag> [delta] | remove <tag> | list"

// command is a parsed !clock invocation.
type command struct {
	verb string
	args []string
}

// parseCommand extracts a !clock command from a message body. Returns
// false for anything else, including bare "!clock" with no verb.
func parseCommand(body string) (command, bool) {
	fields := strings.Fields(body)
	if len(fields) < 2 || fields[0] != commandPrefix {
		return command{}, false
	}
	return command{verb: fields[1], args: fields[2:]}, true
}

// handleMessage routes a room message through the command handlers.
// Non-command messages are ignored. All clock-core errors are
// converted to transient notices here; nothing propagates.
func (b *Bot) handleMessage(ctx context.Context, roomID ref.RoomID, event messaging.Event) {
	body, _ := event.Content["body"].(string)
	cmd, ok := parseCommand(body)
	if !ok {
		return
	}
	actor := event.Sender

	switch cmd.verb {
	case "add":
		b.commandAdd(ctx, roomID, actor, cmd.args)
	case "show":
		b.commandShow(ctx, roomID, actor, cmd.args)
	case "tick":
		b.commandTick(ctx, roomID, actor, cmd.args)
	case "remove":
		b.commandRemove(ctx, roomID, actor, cmd.args)
	case "list":
		b.commandList(ctx, roomID, actor)
	default:
		b.sendNotice(ctx, roomID, usageText)
	}
}

// commandAdd creates a clock and posts it with live controls. If the
// tag already exists, the existing clock is re-displayed unchanged.
func (b *Bot) commandAdd(ctx context.Context, roomID ref.RoomID, actor ref.UserID, args []string) {
	if len(args) < 2 {
		b.sendNotice(ctx, roomID, usageText)
		return
	}
	tag := args[0]
	size, err := strconv.Atoi(args[1])
	if err != nil {
		b.sendNotice(ctx, roomID, fmt.Sprintf("Size %q is not a number. %s", args[1], usageText))
		return
	}

	// The remaining words are the display name; a trailing integer is
	// the starting position.
	nameWords := args[2:]
	position := 0
	if len(nameWords) > 0 {
		if start, err := strconv.Atoi(nameWords[len(nameWords)-1]); err == nil {
			position = start
			nameWords = nameWords[:len(nameWords)-1]
		}
	}
	name := strings.Join(nameWords, " ")

	clk, created, err := b.service.Add(ctx, actor, tag, name, size, position)
	if err != nil {
		b.sendNotice(ctx, roomID, noticeForError(err))
		return
	}
	if !created {
		b.sendNotice(ctx, roomID, fmt.Sprintf("You already have a clock tagged %q; here it is.", clk.Tag))
	}
	b.postClock(ctx, roomID, actor, clk)
}

func (b *Bot) commandShow(ctx context.Context, roomID ref.RoomID, actor ref.UserID, args []string) {
	if len(args) != 1 {
		b.sendNotice(ctx, roomID, usageText)
		return
	}
	clk, err := b.service.Get(ctx, actor, args[0])
	if err != nil {
		b.sendNotice(ctx, roomID, noticeForError(err))
		return
	}
	b.postClock(ctx, roomID, actor, clk)
}

func (b *Bot) commandTick(ctx context.Context, roomID ref.RoomID, actor ref.UserID, args []string) {
	if len(args) < 1 || len(args) > 2 {
		b.sendNotice(ctx, roomID, usageText)
		return
	}
	delta := 1
	if len(args) == 2 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil {
			b.sendNotice(ctx, roomID, fmt.Sprintf("Delta %q is not a number. %s", args[1], usageText))
			return
		}
		delta = parsed
	}
	clk, err := b.service.Tick(ctx, actor, args[0], delta)
	if err != nil {
		b.sendNotice(ctx, roomID, noticeForError(err))
		return
	}
	b.postClock(ctx, roomID, actor, clk)
}

func (b *Bot) commandRemove(ctx context.Context, roomID ref.RoomID, actor ref.UserID, args []string) {
	if len(args) != 1 {
		b.sendNotice(ctx, roomID, usageText)
		return
	}
	if err := b.service.Remove(ctx, actor, args[0]); err != nil {
		b.sendNotice(ctx, roomID, noticeForError(err))
		return
	}
	b.sendNotice(ctx, roomID, fmt.Sprintf("Clock %q deleted.", clocks.NormalizeTag(args[0])))
}

func (b *Bot) commandList(ctx context.Context, roomID ref.RoomID, actor ref.UserID) {
	all, err := b.service.List(ctx, actor)
	if err != nil {
		b.sendNotice(ctx, roomID, noticeForError(err))
		return
	}
	message, err := clocks.ComposeListing(all)
	if err != nil {
		b.logger.Error("composing listing", "error", err)
		b.sendNotice(ctx, roomID, "Something went wrong, please try again.")
		return
	}
	if len(all) == 0 {
		// The empty reply is transient like other notices.
		b.sendNotice(ctx, roomID, message.Body)
		return
	}
	if _, err := b.directory.SendMessage(ctx, roomID, message); err != nil {
		b.logger.Error("sending listing", "error", err)
	}
}

// noticeForError converts clock-core errors into the transient replies
// users see. Unknown errors get the generic apology and a log line is
// the operator's problem.
func noticeForError(err error) string {
	var notFound *clocks.NotFoundError
	if errors.As(err, &notFound) {
		return fmt.Sprintf("You have no clock tagged %q.", notFound.Tag)
	}
	var capacity *clocks.CapacityError
	if errors.As(err, &capacity) {
		return fmt.Sprintf("You already have %d clocks; remove one first.", capacity.Limit)
	}
	return "Something went wrong, please try again."
}
