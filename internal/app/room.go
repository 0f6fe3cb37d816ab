package app

import (
	"maps"
	"slices"
	"sync"

	"github.com/dkeye/voicehub/internal/domain"
)

type memberSet map[domain.ConnID]struct{}

func (s memberSet) sorted() []domain.ConnID {
	return slices.Sorted(maps.Keys(s))
}

func (s memberSet) without(id domain.ConnID) []domain.ConnID {
	out := make([]domain.ConnID, 0, len(s))
	for m := range s {
		if m != id {
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return out
}

// Room is the directory's per-room state. Every field below mu is guarded by it;
// membership and voice presence of a room are always mutated together.
type Room struct {
	mu      sync.Mutex
	info    domain.Room
	members memberSet
	voice   map[domain.ChannelID]memberSet
	// closed is set once the room left the directory; late lookups treat it as absent.
	closed bool
}

func newRoom(info domain.Room, owner domain.ConnID) *Room {
	r := &Room{
		info:    info,
		members: memberSet{owner: {}},
		voice:   make(map[domain.ChannelID]memberSet),
	}
	for _, ch := range info.Channels {
		if ch.Kind == domain.ChannelVoice {
			r.voice[ch.ID] = memberSet{}
		}
	}
	return r
}

func (r *Room) channel(ref domain.ChannelID) (domain.Channel, bool) {
	for _, ch := range r.info.Channels {
		if ch.ID == ref {
			return ch, true
		}
	}
	for _, ch := range r.info.Channels {
		if ch.Name == string(ref) {
			return ch, true
		}
	}
	return domain.Channel{}, false
}

func (r *Room) dropChannel(id domain.ChannelID) {
	delete(r.voice, id)
	r.info.Channels = slices.DeleteFunc(r.info.Channels, func(ch domain.Channel) bool {
		return ch.ID == id
	})
}

// voiceOf returns the voice channel of this room that id is in.
func (r *Room) voiceOf(id domain.ConnID) (domain.ChannelID, bool) {
	for chID, set := range r.voice {
		if _, ok := set[id]; ok {
			return chID, true
		}
	}
	return "", false
}
