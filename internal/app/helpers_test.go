package app

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/voicehub/internal/core"
	"github.com/dkeye/voicehub/internal/domain"
)

// fakeSignal records frames. A positive limit makes TrySend report backpressure.
type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	limit  int
	closed bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.ErrConnClosed
	}
	if f.limit > 0 && len(f.frames) >= f.limit {
		return core.ErrBackpressure
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSignal) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSignal) messages(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, fr := range f.frames {
		var m map[string]any
		if err := json.Unmarshal(fr, &m); err != nil {
			t.Fatalf("frame %q: %v", fr, err)
		}
		out = append(out, m)
	}
	return out
}

func register(t *testing.T, reg *Registry, id domain.ConnID) *fakeSignal {
	t.Helper()
	return registerAs(t, reg, id, domain.UserID("user-"+string(id)))
}

// registerAs registers id for an explicit user, as a reconnecting client would.
func registerAs(t *testing.T, reg *Registry, id domain.ConnID, user domain.UserID) *fakeSignal {
	t.Helper()
	sig := &fakeSignal{}
	u, err := domain.NewUser(user, string(id))
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if _, err := reg.Register(id, *u, sig); err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
	return sig
}

// checkInvariants verifies every live room: voice presence is a subset of
// room membership, a member is in at most one voice channel, no live room is
// empty and the channel index points back at the owning room.
func checkInvariants(t *testing.T, d *Directory) {
	t.Helper()
	d.mu.RLock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.RUnlock()

	for _, r := range rooms {
		r.mu.Lock()
		if err := roomInvariants(d, r); err != nil {
			r.mu.Unlock()
			t.Fatalf("room %s: %v", r.info.ID, err)
		}
		r.mu.Unlock()
	}
}

func roomInvariants(d *Directory, r *Room) error {
	if r.closed {
		return nil
	}
	if len(r.members) == 0 {
		return fmt.Errorf("live room has no members")
	}
	seen := map[domain.ConnID]domain.ChannelID{}
	for chID, set := range r.voice {
		if _, ok := r.channel(chID); !ok {
			return fmt.Errorf("voice set for unknown channel %s", chID)
		}
		for id := range set {
			if _, ok := r.members[id]; !ok {
				return fmt.Errorf("%s in voice %s but not in room", id, chID)
			}
			if prev, ok := seen[id]; ok {
				return fmt.Errorf("%s in voice %s and %s", id, prev, chID)
			}
			seen[id] = chID
		}
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, ch := range r.info.Channels {
		if d.channels[ch.ID] != r.info.ID {
			return fmt.Errorf("channel %s not indexed to its room", ch.ID)
		}
	}
	return nil
}
