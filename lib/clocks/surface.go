// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package clocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chime-foundation/chime/lib/clock"
	"github.com/chime-foundation/chime/lib/ref"
	"github.com/chime-foundation/chime/lib/schema"
)

// State is the interaction state of a posted clock message.
type State int

const (
	// StateUnlocked has the full control set live: advance, rewind,
	// delete, lock.
	StateUnlocked State = iota

	// StateLocked has only the unlock control live, gated to the
	// clock's owner.
	StateLocked
)

func (s State) String() string {
	if s == StateLocked {
		return "locked"
	}
	return "unlocked"
}

// DefaultLockAfter is the inactivity window before an unlocked surface
// locks itself.
const DefaultLockAfter = 10 * time.Hour

// MessageDirectory is the injected capability a surface uses to reach
// its posted message. The bot daemon backs it with a Matrix session;
// tests back it with an in-memory fake.
type MessageDirectory interface {
	// FetchEvent returns the original content of the event as sent,
	// regardless of later edits.
	FetchEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) (map[string]any, error)

	// SendMessage posts an m.room.message; edits are sent as
	// replacement events through the same call.
	SendMessage(ctx context.Context, roomID ref.RoomID, content schema.ClockMessage) (ref.EventID, error)

	// RedactEvent removes the event's content.
	RedactEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) error
}

// Outcome is what a control press produced, for the command layer to
// relay. Errors never escape HandleControl; anything the user should
// hear becomes a Notice.
type Outcome struct {
	// Notice is a transient user-facing line, empty if the press needs
	// no reply.
	Notice string

	// Destroyed reports that the binding no longer exists (clock
	// deleted or message unreachable).
	Destroyed bool
}

// SurfaceConfig carries the collaborators every surface shares.
type SurfaceConfig struct {
	Service   *Service
	Renderer  *Renderer
	Directory MessageDirectory
	Registry  *Registry
	Clock     clock.Clock
	Logger    *slog.Logger

	// LockAfter is the inactivity window before auto-lock. Zero means
	// DefaultLockAfter.
	LockAfter time.Duration
}

func (c SurfaceConfig) lockAfter() time.Duration {
	if c.LockAfter <= 0 {
		return DefaultLockAfter
	}
	return c.LockAfter
}

// Surface binds a posted clock message to its owner, tag, and
// interaction state, and runs the control state machine over it.
//
// The in-memory fields are a cache: the durable record of what a
// message displays is the dev.chime.clock block in the event content.
// The lock transition re-derives owner and tag from the fetched event
// rather than trusting these fields, which is what keeps a surface
// correct when the message was last edited by an earlier process.
type Surface struct {
	cfg SurfaceConfig

	mu      sync.Mutex
	state   State
	owner   ref.UserID
	tag     string
	roomID  ref.RoomID
	eventID ref.EventID
	timer   *clock.Timer
	gone    bool
}

// transition is one row of the state machine: what a control does in a
// given state. Controls without a row in the current state are inert.
type transition func(ctx context.Context, s *Surface, actor ref.UserID) Outcome

var transitions = map[State]map[schema.Control]transition{
	StateUnlocked: {
		schema.ControlAdvance: func(ctx context.Context, s *Surface, _ ref.UserID) Outcome {
			return s.tick(ctx, +1)
		},
		schema.ControlRewind: func(ctx context.Context, s *Surface, _ ref.UserID) Outcome {
			return s.tick(ctx, -1)
		},
		schema.ControlDelete: func(ctx context.Context, s *Surface, _ ref.UserID) Outcome {
			return s.deleteClock(ctx)
		},
		schema.ControlLock: func(ctx context.Context, s *Surface, _ ref.UserID) Outcome {
			return s.lock(ctx)
		},
	},
	StateLocked: {
		schema.ControlUnlock: func(ctx context.Context, s *Surface, actor ref.UserID) Outcome {
			return s.unlock(ctx, actor)
		},
	},
}

// NewSurface creates a surface for a just-posted clock message,
// registers it, and arms the inactivity timer if unlocked.
func NewSurface(cfg SurfaceConfig, owner ref.UserID, tag string, roomID ref.RoomID, eventID ref.EventID, state State) *Surface {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	s := &Surface{
		cfg:     cfg,
		state:   state,
		owner:   owner,
		tag:     tag,
		roomID:  roomID,
		eventID: eventID,
	}
	if cfg.Registry != nil {
		cfg.Registry.register(roomID, eventID, s)
	}
	if state == StateUnlocked {
		s.mu.Lock()
		s.armTimerLocked()
		s.mu.Unlock()
	}
	return s
}

// Rebuild reconstructs a surface for a message the process has no
// memory of sending: it fetches the event and, if the content carries
// a clock identity block, registers a Locked surface for it. A
// restarted bot calls this when a reaction lands on an unknown event.
// Returns nil with no error when the event is not a clock message.
func Rebuild(ctx context.Context, cfg SurfaceConfig, roomID ref.RoomID, eventID ref.EventID) (*Surface, error) {
	content, err := cfg.Directory.FetchEvent(ctx, roomID, eventID)
	if err != nil {
		return nil, fmt.Errorf("clocks: fetching %s for rebuild: %w", eventID, err)
	}
	info, ok, err := schema.ClockInfoFromContent(content)
	if err != nil {
		return nil, fmt.Errorf("clocks: rebuilding surface for %s: %w", eventID, err)
	}
	if !ok {
		return nil, nil
	}
	// Rebuilt surfaces always start Locked: with no live timer history
	// the safe degradation is the single owner-gated unlock control.
	return NewSurface(cfg, info.Owner, info.Tag, roomID, eventID, StateLocked), nil
}

// State returns the current interaction state.
func (s *Surface) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Owner returns the bound owner.
func (s *Surface) Owner() ref.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Tag returns the bound tag.
func (s *Surface) Tag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tag
}

// HandleControl runs one control press through the state machine.
// roomID and eventID identify the message the press landed on; they
// backfill the surface's location if it was previously unknown, so a
// later timeout-lock can always re-locate the message. Controls that
// are inert in the current state return an empty outcome. Nothing
// escapes as an error.
func (s *Surface) HandleControl(ctx context.Context, actor ref.UserID, control schema.Control, roomID ref.RoomID, eventID ref.EventID) Outcome {
	s.mu.Lock()
	if s.gone {
		s.mu.Unlock()
		return Outcome{Destroyed: true}
	}
	if s.roomID.IsZero() {
		s.roomID = roomID
	}
	if s.eventID.IsZero() {
		s.eventID = eventID
	}
	fn, ok := transitions[s.state][control]
	s.mu.Unlock()
	if !ok {
		return Outcome{}
	}
	return fn(ctx, s, actor)
}

// tick reloads the clock, moves it one step, persists, and edits the
// message with the fresh rendition.
func (s *Surface) tick(ctx context.Context, delta int) Outcome {
	s.mu.Lock()
	owner, tag := s.owner, s.tag
	s.mu.Unlock()

	clk, err := s.cfg.Service.Tick(ctx, owner, tag, delta)
	if err != nil {
		return s.coreErrorOutcome(err)
	}
	if outcome, failed := s.redisplay(ctx, clk, StateUnlocked); failed {
		return outcome
	}

	s.mu.Lock()
	s.armTimerLocked()
	s.mu.Unlock()
	return Outcome{}
}

// deleteClock removes the clock from the store, redacts the message,
// and destroys the binding.
func (s *Surface) deleteClock(ctx context.Context) Outcome {
	s.mu.Lock()
	owner, tag := s.owner, s.tag
	roomID, eventID := s.roomID, s.eventID
	s.mu.Unlock()

	if err := s.cfg.Service.Remove(ctx, owner, tag); err != nil {
		return s.coreErrorOutcome(err)
	}
	if err := s.cfg.Directory.RedactEvent(ctx, roomID, eventID, "clock deleted"); err != nil {
		s.cfg.Logger.Error("redacting deleted clock message",
			"room", roomID,
			"event", eventID,
			"error", err,
		)
	}
	s.destroy()
	return Outcome{Notice: fmt.Sprintf("Clock %q deleted.", tag), Destroyed: true}
}

// lock flips the surface into the Locked state. Owner and tag are
// re-derived from the fetched message event, not from the in-memory
// fields: after a restart the in-memory binding may be older than the
// message's last edit, and the displayed event is the durable record
// of which clock this message shows. If the event cannot be fetched or
// no longer carries a clock block, the transition is abandoned and the
// binding destroyed.
func (s *Surface) lock(ctx context.Context) Outcome {
	s.mu.Lock()
	roomID, eventID := s.roomID, s.eventID
	s.stopTimerLocked()
	s.mu.Unlock()

	if roomID.IsZero() || eventID.IsZero() {
		s.cfg.Logger.Debug("lock abandoned, message location unknown")
		s.destroy()
		return Outcome{Destroyed: true}
	}

	content, err := s.cfg.Directory.FetchEvent(ctx, roomID, eventID)
	if err != nil {
		s.cfg.Logger.Debug("lock abandoned, message unreachable",
			"room", roomID,
			"event", eventID,
			"error", err,
		)
		s.destroy()
		return Outcome{Destroyed: true}
	}
	info, ok, err := schema.ClockInfoFromContent(content)
	if err != nil || !ok {
		s.cfg.Logger.Debug("lock abandoned, message carries no clock block",
			"room", roomID,
			"event", eventID,
			"error", err,
		)
		s.destroy()
		return Outcome{Destroyed: true}
	}

	s.mu.Lock()
	s.owner = info.Owner
	s.tag = info.Tag
	s.state = StateLocked
	owner, tag := s.owner, s.tag
	s.mu.Unlock()

	clk, err := s.cfg.Service.Get(ctx, owner, tag)
	if err != nil {
		return s.coreErrorOutcome(err)
	}
	outcome, _ := s.redisplay(ctx, clk, StateLocked)
	return outcome
}

// unlock flips a locked surface back to Unlocked, gated to the bound
// owner.
func (s *Surface) unlock(ctx context.Context, actor ref.UserID) Outcome {
	s.mu.Lock()
	owner, tag := s.owner, s.tag
	s.mu.Unlock()

	if actor != owner {
		s.cfg.Logger.Debug("unlock rejected", "actor", actor, "owner", owner)
		return s.coreErrorOutcome(&AuthorizationError{Actor: actor})
	}

	clk, err := s.cfg.Service.Get(ctx, owner, tag)
	if err != nil {
		return s.coreErrorOutcome(err)
	}

	s.mu.Lock()
	s.state = StateUnlocked
	s.mu.Unlock()

	if outcome, failed := s.redisplay(ctx, clk, StateUnlocked); failed {
		return outcome
	}

	s.mu.Lock()
	s.armTimerLocked()
	s.mu.Unlock()
	return Outcome{}
}

// redisplay renders the clock in the given state and edits the posted
// message. Returns (outcome, true) when delivery failed and the press
// should answer with the generic apology.
func (s *Surface) redisplay(ctx context.Context, clk Clock, state State) (Outcome, bool) {
	s.mu.Lock()
	owner := s.owner
	roomID, eventID := s.roomID, s.eventID
	s.mu.Unlock()

	presentation, err := s.cfg.Renderer.RenderOrText(ctx, clk)
	if err != nil {
		return s.deliveryErrorOutcome(err), true
	}
	message, err := ComposeMessage(clk, presentation, owner, state == StateLocked)
	if err != nil {
		return s.deliveryErrorOutcome(err), true
	}
	if _, err := s.cfg.Directory.SendMessage(ctx, roomID, message.AsReplacement(eventID)); err != nil {
		return s.deliveryErrorOutcome(err), true
	}
	return Outcome{}, false
}

// armTimerLocked (re)arms the inactivity auto-lock. Caller holds mu.
func (s *Surface) armTimerLocked() {
	if s.timer != nil {
		s.timer.Reset(s.cfg.lockAfter())
		return
	}
	s.timer = s.cfg.Clock.AfterFunc(s.cfg.lockAfter(), func() {
		if s.State() != StateUnlocked {
			return
		}
		s.lock(context.Background())
	})
}

// stopTimerLocked stops the auto-lock timer. Caller holds mu.
func (s *Surface) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// destroy unregisters the surface and stops its timer. Idempotent.
func (s *Surface) destroy() {
	s.mu.Lock()
	if s.gone {
		s.mu.Unlock()
		return
	}
	s.gone = true
	s.stopTimerLocked()
	roomID, eventID := s.roomID, s.eventID
	s.mu.Unlock()

	if s.cfg.Registry != nil {
		s.cfg.Registry.unregister(roomID, eventID)
	}
}

// coreErrorOutcome converts clock-core errors into user notices. No
// core error is allowed past the handler boundary.
func (s *Surface) coreErrorOutcome(err error) Outcome {
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return Outcome{Notice: fmt.Sprintf("Clock %q no longer exists.", notFound.Tag)}
	}
	var capacity *CapacityError
	if errors.As(err, &capacity) {
		return Outcome{Notice: fmt.Sprintf("You already have %d clocks.", capacity.Limit)}
	}
	var authorization *AuthorizationError
	if errors.As(err, &authorization) {
		return Outcome{Notice: "Only the clock's owner can unlock it."}
	}
	return s.deliveryErrorOutcome(err)
}

// deliveryErrorOutcome handles transient failures: log at error, tell
// the user to retry, leave state alone.
func (s *Surface) deliveryErrorOutcome(err error) Outcome {
	s.cfg.Logger.Error("control press failed", "tag", s.Tag(), "error", err)
	return Outcome{Notice: "Something went wrong, please try again."}
}
