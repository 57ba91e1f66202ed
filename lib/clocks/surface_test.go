// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package clocks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chime-foundation/chime/lib/clock"
	"github.com/chime-foundation/chime/lib/ref"
	"github.com/chime-foundation/chime/lib/schema"
)

// fakeDirectory is an in-memory MessageDirectory. It stores the
// original content of every sent event, the way a homeserver does:
// replacement events get their own event ID and the target's original
// content stays as sent.
type fakeDirectory struct {
	mu       sync.Mutex
	room     ref.RoomID
	events   map[ref.EventID]map[string]any
	sends    []schema.ClockMessage
	redacted []ref.EventID
	nextID   int
	fetchErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		room:   ref.MustParseRoomID("!room:test.local"),
		events: make(map[ref.EventID]map[string]any),
	}
}

func (d *fakeDirectory) FetchEvent(_ context.Context, _ ref.RoomID, eventID ref.EventID) (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fetchErr != nil {
		return nil, d.fetchErr
	}
	content, ok := d.events[eventID]
	if !ok {
		return nil, fmt.Errorf("no such event %s", eventID)
	}
	return content, nil
}

func (d *fakeDirectory) SendMessage(_ context.Context, _ ref.RoomID, content schema.ClockMessage) (ref.EventID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	eventID := ref.MustParseEventID(fmt.Sprintf("$event%d:test.local", d.nextID))
	encoded, err := json.Marshal(content)
	if err != nil {
		return ref.EventID{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(encoded, &raw); err != nil {
		return ref.EventID{}, err
	}
	d.events[eventID] = raw
	d.sends = append(d.sends, content)
	return eventID, nil
}

func (d *fakeDirectory) RedactEvent(_ context.Context, _ ref.RoomID, eventID ref.EventID, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.redacted = append(d.redacted, eventID)
	delete(d.events, eventID)
	return nil
}

// lastReplacement returns the most recent edit sent through the
// directory.
func (d *fakeDirectory) lastReplacement(t *testing.T) schema.ClockMessage {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.sends) - 1; i >= 0; i-- {
		if d.sends[i].RelatesTo != nil && d.sends[i].RelatesTo.RelType == schema.RelTypeReplace {
			return d.sends[i]
		}
	}
	t.Fatal("no replacement event was sent")
	return schema.ClockMessage{}
}

// surfaceEnv bundles the collaborators for surface tests. The renderer
// has no asset directory, so every rendition is the text form.
type surfaceEnv struct {
	service   *Service
	renderer  *Renderer
	directory *fakeDirectory
	registry  *Registry
	clk       *clock.FakeClock
	cfg       SurfaceConfig
}

func newSurfaceEnv(t *testing.T) *surfaceEnv {
	t.Helper()
	renderer, err := NewRenderer("", &fakeUploader{}, nil)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	env := &surfaceEnv{
		service:   NewService(NewMemoryStore()),
		renderer:  renderer,
		directory: newFakeDirectory(),
		registry:  NewRegistry(),
		clk:       clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	env.cfg = SurfaceConfig{
		Service:   env.service,
		Renderer:  env.renderer,
		Directory: env.directory,
		Registry:  env.registry,
		Clock:     env.clk,
	}
	return env
}

// postClock stores a clock, posts its message, and binds an unlocked
// surface to it — the same sequence the command layer runs for
// "!clock add".
func (env *surfaceEnv) postClock(t *testing.T, owner ref.UserID, tag string, size, position int) (*Surface, ref.EventID) {
	t.Helper()
	ctx := context.Background()
	clk, _, err := env.service.Add(ctx, owner, tag, strings.ToUpper(tag[:1])+tag[1:]+" Clock", size, position)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	presentation, err := env.renderer.RenderOrText(ctx, clk)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	message, err := ComposeMessage(clk, presentation, owner, false)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	eventID, err := env.directory.SendMessage(ctx, env.directory.room, message)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	surface := NewSurface(env.cfg, owner, clk.Tag, env.directory.room, eventID, StateUnlocked)
	return surface, eventID
}

func (env *surfaceEnv) press(surface *Surface, actor ref.UserID, control schema.Control, eventID ref.EventID) Outcome {
	return surface.HandleControl(context.Background(), actor, control, env.directory.room, eventID)
}

func TestSurfaceTickEditsMessage(t *testing.T) {
	env := newSurfaceEnv(t)
	surface, eventID := env.postClock(t, testOwner, "harm", 6, 0)

	outcome := env.press(surface, testOwner, schema.ControlAdvance, eventID)
	if outcome.Notice != "" || outcome.Destroyed {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	stored, err := env.service.Get(context.Background(), testOwner, "harm")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Position != 1 {
		t.Errorf("position after advance = %d, want 1", stored.Position)
	}

	edit := env.directory.lastReplacement(t)
	if edit.RelatesTo.EventID != eventID {
		t.Errorf("edit targets %s, want %s", edit.RelatesTo.EventID, eventID)
	}
	if !strings.Contains(edit.NewContent.Body, "1/6") {
		t.Errorf("edit body missing new position: %q", edit.NewContent.Body)
	}
}

func TestSurfaceHarmScenario(t *testing.T) {
	env := newSurfaceEnv(t)
	surface, eventID := env.postClock(t, testOwner, "harm", 6, 0)
	ctx := context.Background()

	for range 4 {
		env.press(surface, testOwner, schema.ControlAdvance, eventID)
	}
	stored, _ := env.service.Get(ctx, testOwner, "harm")
	if stored.Position != 4 {
		t.Fatalf("after 4 advances position = %d, want 4", stored.Position)
	}

	for range 3 {
		env.press(surface, testOwner, schema.ControlAdvance, eventID)
	}
	stored, _ = env.service.Get(ctx, testOwner, "harm")
	if stored.Position != 6 {
		t.Fatalf("position should clamp at 6, got %d", stored.Position)
	}

	env.press(surface, testOwner, schema.ControlLock, eventID)
	if surface.State() != StateLocked {
		t.Fatal("surface should be locked")
	}

	// A different user cannot unlock.
	outcome := env.press(surface, testOther, schema.ControlUnlock, eventID)
	if !strings.Contains(outcome.Notice, "owner") {
		t.Errorf("foreign unlock should produce the ownership rejection, got %q", outcome.Notice)
	}
	if surface.State() != StateLocked {
		t.Fatal("foreign unlock must not change state")
	}

	// The owner can.
	outcome = env.press(surface, testOwner, schema.ControlUnlock, eventID)
	if outcome.Notice != "" {
		t.Errorf("owner unlock should be silent, got %q", outcome.Notice)
	}
	if surface.State() != StateUnlocked {
		t.Fatal("owner unlock should return to unlocked")
	}

	// And subsequent ticks on the same message work again.
	env.press(surface, testOwner, schema.ControlRewind, eventID)
	stored, _ = env.service.Get(ctx, testOwner, "harm")
	if stored.Position != 5 {
		t.Errorf("rewind after unlock: position = %d, want 5", stored.Position)
	}
}

func TestSurfaceLockedIgnoresTickControls(t *testing.T) {
	env := newSurfaceEnv(t)
	surface, eventID := env.postClock(t, testOwner, "harm", 6, 2)
	env.press(surface, testOwner, schema.ControlLock, eventID)

	outcome := env.press(surface, testOwner, schema.ControlAdvance, eventID)
	if outcome.Notice != "" || outcome.Destroyed {
		t.Errorf("advance on a locked surface should be inert, got %+v", outcome)
	}
	stored, _ := env.service.Get(context.Background(), testOwner, "harm")
	if stored.Position != 2 {
		t.Errorf("locked surface must not tick: position = %d", stored.Position)
	}
}

func TestSurfaceDelete(t *testing.T) {
	env := newSurfaceEnv(t)
	surface, eventID := env.postClock(t, testOwner, "harm", 6, 0)

	outcome := env.press(surface, testOwner, schema.ControlDelete, eventID)
	if !outcome.Destroyed {
		t.Fatal("delete should destroy the binding")
	}
	if !strings.Contains(outcome.Notice, "deleted") {
		t.Errorf("unexpected notice: %q", outcome.Notice)
	}

	if _, err := env.service.Get(context.Background(), testOwner, "harm"); !IsNotFound(err) {
		t.Errorf("clock should be gone from the store, got %v", err)
	}
	if len(env.directory.redacted) != 1 || env.directory.redacted[0] != eventID {
		t.Errorf("message should be redacted, got %v", env.directory.redacted)
	}
	if env.registry.Len() != 0 {
		t.Errorf("registry should be empty, has %d", env.registry.Len())
	}

	// Further presses on the dead surface are inert.
	outcome = env.press(surface, testOwner, schema.ControlAdvance, eventID)
	if !outcome.Destroyed {
		t.Error("press on destroyed surface should report Destroyed")
	}
}

func TestSurfaceControlOnMissingClock(t *testing.T) {
	env := newSurfaceEnv(t)
	surface, eventID := env.postClock(t, testOwner, "harm", 6, 0)

	// The clock vanishes through another path.
	if err := env.service.Remove(context.Background(), testOwner, "harm"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	outcome := env.press(surface, testOwner, schema.ControlAdvance, eventID)
	if outcome.Destroyed {
		t.Error("missing clock must not destroy the binding")
	}
	if !strings.Contains(outcome.Notice, "no longer exists") {
		t.Errorf("expected a not-found notice, got %q", outcome.Notice)
	}
	if surface.State() != StateUnlocked {
		t.Error("state must not change on a not-found press")
	}
}

func TestSurfaceAutoLockTimeout(t *testing.T) {
	env := newSurfaceEnv(t)
	surface, eventID := env.postClock(t, testOwner, "harm", 6, 0)

	// Activity re-arms the timer: 9 hours pass, a tick lands, and 9
	// more hours still leave the surface unlocked.
	env.clk.Advance(9 * time.Hour)
	env.press(surface, testOwner, schema.ControlAdvance, eventID)
	env.clk.Advance(9 * time.Hour)
	if surface.State() != StateUnlocked {
		t.Fatal("surface locked before the re-armed window elapsed")
	}

	env.clk.Advance(time.Hour)
	if surface.State() != StateLocked {
		t.Fatal("surface should auto-lock after the inactivity window")
	}

	// The locked rendition was pushed to the room.
	edit := env.directory.lastReplacement(t)
	if edit.NewContent.Clock == nil || !edit.NewContent.Clock.Locked {
		t.Error("auto-lock edit should carry the locked clock block")
	}
}

func TestSurfaceLockRederivesFromEvent(t *testing.T) {
	env := newSurfaceEnv(t)
	_, eventID := env.postClock(t, testOwner, "harm", 6, 3)

	// A stale in-memory binding points at the wrong tag; the posted
	// message is the durable record and must win on lock.
	stale := NewSurface(env.cfg, testOwner, "stale", env.directory.room, eventID, StateUnlocked)
	env.press(stale, testOwner, schema.ControlLock, eventID)

	if stale.State() != StateLocked {
		t.Fatal("lock should succeed")
	}
	if stale.Tag() != "harm" {
		t.Errorf("lock should re-derive the tag from the event, got %q", stale.Tag())
	}
}

func TestSurfaceLockUnfetchableMessage(t *testing.T) {
	env := newSurfaceEnv(t)
	surface, eventID := env.postClock(t, testOwner, "harm", 6, 0)
	env.directory.fetchErr = fmt.Errorf("gone")

	outcome := env.press(surface, testOwner, schema.ControlLock, eventID)
	if !outcome.Destroyed {
		t.Fatal("lock on an unreachable message should abandon the binding")
	}
	if outcome.Notice != "" {
		t.Errorf("abandoned lock must be silent, got %q", outcome.Notice)
	}
	if env.registry.Len() != 0 {
		t.Error("abandoned surface should be unregistered")
	}
}

func TestSurfaceRebuildAfterRestart(t *testing.T) {
	env := newSurfaceEnv(t)
	_, eventID := env.postClock(t, testOwner, "harm", 6, 4)

	// Simulate a restart: a fresh registry with no memory of the
	// message.
	env.registry = NewRegistry()
	env.cfg.Registry = env.registry

	rebuilt, err := Rebuild(context.Background(), env.cfg, env.directory.room, eventID)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if rebuilt == nil {
		t.Fatal("Rebuild returned nil for a clock message")
	}
	if rebuilt.State() != StateLocked {
		t.Error("rebuilt surfaces must start locked")
	}
	if rebuilt.Owner() != testOwner || rebuilt.Tag() != "harm" {
		t.Errorf("rebuilt binding wrong: owner=%s tag=%s", rebuilt.Owner(), rebuilt.Tag())
	}
	if _, ok := env.registry.Lookup(env.directory.room, eventID); !ok {
		t.Error("rebuilt surface should be registered")
	}

	// The owner can unlock it and keep ticking.
	env.press(rebuilt, testOwner, schema.ControlUnlock, eventID)
	if rebuilt.State() != StateUnlocked {
		t.Fatal("owner unlock on rebuilt surface failed")
	}
	env.press(rebuilt, testOwner, schema.ControlAdvance, eventID)
	stored, _ := env.service.Get(context.Background(), testOwner, "harm")
	if stored.Position != 5 {
		t.Errorf("tick after rebuild: position = %d, want 5", stored.Position)
	}
}

func TestSurfaceRebuildNonClockMessage(t *testing.T) {
	env := newSurfaceEnv(t)
	eventID, err := env.directory.SendMessage(context.Background(), env.directory.room, schema.ClockMessage{
		MsgType: schema.MsgTypeText,
		Body:    "just chatting",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	rebuilt, err := Rebuild(context.Background(), env.cfg, env.directory.room, eventID)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if rebuilt != nil {
		t.Error("Rebuild should return nil for a plain message")
	}
}
