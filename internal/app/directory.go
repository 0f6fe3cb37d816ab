package app

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/voicehub/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTextChannel  = "general"
	DefaultVoiceChannel = "voice"
)

// RoomInfo is a summary for listings.
type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	Owner       domain.UserID   `json:"owner"`
	MemberCount int             `json:"member_count"`
	Channels    int             `json:"channel_count"`
}

// LeaveResult describes what a room departure changed.
type LeaveResult struct {
	Remaining []domain.ConnID
	// VoiceChannel is set when the departure also removed the connection from voice.
	VoiceChannel   domain.ChannelID
	VoiceRemaining []domain.ConnID
	// VoiceChannelRemoved is set when that voice channel was ad-hoc and is now gone.
	VoiceChannelRemoved bool
	RoomRemoved         bool
}

// VoiceJoin describes a voice-channel join.
type VoiceJoin struct {
	RoomID   domain.RoomID
	Channel  domain.Channel
	Existing []domain.ConnID
	Created  bool
	// Already is true when the connection was in the channel before the call.
	Already bool
	// Left is the channel of the same room the connection moved out of.
	Left          domain.ChannelID
	LeftRemaining []domain.ConnID
	// LeftRemoved is set when Left was an ad-hoc channel emptied by the move.
	LeftRemoved bool
	// Others is the rest of the room, set only when Created or LeftRemoved.
	Others []domain.ConnID
}

// VoiceLeave describes a voice-channel departure.
type VoiceLeave struct {
	Remaining []domain.ConnID
	// ChannelRemoved is set when the departure emptied an ad-hoc channel.
	ChannelRemoved bool
	// RoomMembers is the room membership, set only when ChannelRemoved.
	RoomMembers []domain.ConnID
}

// Directory maps rooms and voice channels to their members.
//
// Lock order: Room.mu, then Directory.mu or the registry lock. Directory.mu
// only guards the two indexes; it is taken under a room lock or on its own,
// and never held while a room lock is acquired. onCommit callbacks
// run while the room lock is held, so they see exactly the membership the
// mutation produced; they must not block or call back into the Directory.
type Directory struct {
	reg *Registry

	mu       sync.RWMutex
	rooms    map[domain.RoomID]*Room
	channels map[domain.ChannelID]domain.RoomID
}

func NewDirectory(reg *Registry) *Directory {
	return &Directory{
		reg:      reg,
		rooms:    make(map[domain.RoomID]*Room),
		channels: make(map[domain.ChannelID]domain.RoomID),
	}
}

func (d *Directory) CreateRoom(owner domain.ConnID, name domain.RoomName) (domain.Room, error) {
	conn, err := d.reg.Lookup(owner)
	if err != nil {
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}
	if len(name) > domain.MaxRoomNameLen {
		return domain.Room{}, domain.ErrRoomNameTooLong
	}
	if name == "" {
		name = "room"
	}
	info := domain.Room{
		ID:    domain.RoomID(uuid.NewString()),
		Name:  name,
		Owner: conn.User.ID,
		Channels: []domain.Channel{
			{ID: domain.ChannelID(uuid.NewString()), Name: DefaultTextChannel, Kind: domain.ChannelText, Declared: true},
			{ID: domain.ChannelID(uuid.NewString()), Name: DefaultVoiceChannel, Kind: domain.ChannelVoice, Declared: true},
		},
	}
	room := newRoom(info, owner)

	d.mu.Lock()
	d.rooms[info.ID] = room
	for _, ch := range info.Channels {
		d.channels[ch.ID] = info.ID
	}
	d.mu.Unlock()

	log.Info().Str("module", "app.directory").Str("room", string(info.ID)).Str("owner", string(conn.User.ID)).Msg("room created")
	return info.Clone(), nil
}

// lockRoom returns the live room with its lock held.
func (d *Directory) lockRoom(id domain.RoomID) (*Room, error) {
	d.mu.RLock()
	room, ok := d.rooms[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("room %s: %w", id, domain.ErrRoomNotFound)
	}
	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		return nil, fmt.Errorf("room %s: %w", id, domain.ErrRoomNotFound)
	}
	return room, nil
}

// ownedBy reports whether requester's user owns the room. Ownership follows the
// user, so a reconnect with the same identity keeps it.
func (d *Directory) ownedBy(room *Room, requester domain.ConnID) bool {
	conn, err := d.reg.Lookup(requester)
	return err == nil && conn.User.ID == room.info.Owner
}

// removeLocked detaches a room from the indexes. Caller holds room.mu.
func (d *Directory) removeLocked(room *Room) {
	room.closed = true
	d.mu.Lock()
	delete(d.rooms, room.info.ID)
	for _, ch := range room.info.Channels {
		delete(d.channels, ch.ID)
	}
	d.mu.Unlock()
	log.Info().Str("module", "app.directory").Str("room", string(room.info.ID)).Msg("room removed")
}

// JoinRoom adds id to the room and returns the members that were already there.
func (d *Directory) JoinRoom(
	roomID domain.RoomID,
	id domain.ConnID,
	onCommit func(room domain.Room, others []domain.ConnID),
) (domain.Room, []domain.ConnID, error) {
	if !d.reg.Contains(id) {
		return domain.Room{}, nil, fmt.Errorf("join room: connection %s: %w", id, domain.ErrNotFound)
	}
	room, err := d.lockRoom(roomID)
	if err != nil {
		return domain.Room{}, nil, err
	}
	defer room.mu.Unlock()

	others := room.members.without(id)
	room.members[id] = struct{}{}
	info := room.info.Clone()
	if onCommit != nil {
		onCommit(info, others)
	}
	log.Info().Str("module", "app.directory").Str("room", string(roomID)).Str("cid", string(id)).Int("members", len(room.members)).Msg("member joined")
	return info, others, nil
}

// LeaveRoom removes id from the room and from any of its voice channels.
// The room is deleted as soon as it has no members.
func (d *Directory) LeaveRoom(
	roomID domain.RoomID,
	id domain.ConnID,
	onCommit func(LeaveResult),
) (LeaveResult, error) {
	room, err := d.lockRoom(roomID)
	if err != nil {
		return LeaveResult{}, err
	}
	defer room.mu.Unlock()

	if _, ok := room.members[id]; !ok {
		return LeaveResult{}, fmt.Errorf("leave room %s: %w", roomID, domain.ErrNotInRoom)
	}

	var res LeaveResult
	if chID, ok := room.voiceOf(id); ok {
		res.VoiceChannel = chID
		res.VoiceRemaining, res.VoiceChannelRemoved = d.leaveVoiceLocked(room, chID, id)
	}
	delete(room.members, id)
	res.Remaining = room.members.sorted()
	if len(room.members) == 0 {
		d.removeLocked(room)
		res.RoomRemoved = true
	}
	if onCommit != nil {
		onCommit(res)
	}
	log.Info().Str("module", "app.directory").Str("room", string(roomID)).Str("cid", string(id)).Int("members", len(res.Remaining)).Msg("member left")
	return res, nil
}

// JoinVoice adds a room member to a voice channel, matched by id then by name.
// An unknown name creates an ad-hoc channel that disappears with its last member.
// A member is in at most one voice channel, so joining another one moves it.
func (d *Directory) JoinVoice(
	roomID domain.RoomID,
	ref domain.ChannelID,
	id domain.ConnID,
	onCommit func(VoiceJoin),
) (VoiceJoin, error) {
	room, err := d.lockRoom(roomID)
	if err != nil {
		return VoiceJoin{}, err
	}
	defer room.mu.Unlock()

	if _, ok := room.members[id]; !ok {
		return VoiceJoin{}, fmt.Errorf("join voice in %s: %w", roomID, domain.ErrNotInRoom)
	}

	res := VoiceJoin{RoomID: roomID}
	ch, ok := room.channel(ref)
	switch {
	case !ok:
		ch = domain.Channel{
			ID:   domain.ChannelID(uuid.NewString()),
			Name: string(ref),
			Kind: domain.ChannelVoice,
		}
		room.info.Channels = append(room.info.Channels, ch)
		room.voice[ch.ID] = memberSet{}
		d.mu.Lock()
		d.channels[ch.ID] = roomID
		d.mu.Unlock()
		res.Created = true
		res.Others = room.members.without(id)
	case ch.Kind != domain.ChannelVoice:
		return VoiceJoin{}, fmt.Errorf("join voice %s: %w", ref, domain.ErrNotVoiceChannel)
	}

	if prev, ok := room.voiceOf(id); ok && prev != ch.ID {
		res.Left = prev
		res.LeftRemaining, res.LeftRemoved = d.leaveVoiceLocked(room, prev, id)
		if res.LeftRemoved {
			res.Others = room.members.without(id)
		}
	}

	set := room.voice[ch.ID]
	_, res.Already = set[id]
	res.Channel = ch
	res.Existing = set.without(id)
	set[id] = struct{}{}
	if onCommit != nil {
		onCommit(res)
	}
	log.Info().Str("module", "app.directory").Str("room", string(roomID)).Str("channel", string(ch.ID)).Str("cid", string(id)).Bool("created", res.Created).Msg("voice joined")
	return res, nil
}

// LeaveVoice removes id from the channel and returns who remains.
func (d *Directory) LeaveVoice(
	roomID domain.RoomID,
	channelID domain.ChannelID,
	id domain.ConnID,
	onCommit func(VoiceLeave),
) (VoiceLeave, error) {
	room, err := d.lockRoom(roomID)
	if err != nil {
		return VoiceLeave{}, err
	}
	defer room.mu.Unlock()

	set, ok := room.voice[channelID]
	if !ok {
		return VoiceLeave{}, fmt.Errorf("leave voice %s: %w", channelID, domain.ErrChannelNotFound)
	}
	if _, ok := set[id]; !ok {
		return VoiceLeave{}, fmt.Errorf("leave voice %s: %w", channelID, domain.ErrNotFound)
	}
	var res VoiceLeave
	res.Remaining, res.ChannelRemoved = d.leaveVoiceLocked(room, channelID, id)
	if res.ChannelRemoved {
		res.RoomMembers = room.members.sorted()
	}
	if onCommit != nil {
		onCommit(res)
	}
	log.Info().Str("module", "app.directory").Str("room", string(roomID)).Str("channel", string(channelID)).Str("cid", string(id)).Msg("voice left")
	return res, nil
}

// leaveVoiceLocked drops id from the channel and deletes the channel if it was
// ad-hoc and is now empty. Caller holds room.mu.
func (d *Directory) leaveVoiceLocked(room *Room, channelID domain.ChannelID, id domain.ConnID) ([]domain.ConnID, bool) {
	set := room.voice[channelID]
	delete(set, id)
	if len(set) > 0 {
		return set.sorted(), false
	}
	if ch, ok := room.channel(channelID); !ok || ch.Declared {
		return nil, false
	}
	room.dropChannel(channelID)
	d.mu.Lock()
	delete(d.channels, channelID)
	d.mu.Unlock()
	log.Debug().Str("module", "app.directory").Str("channel", string(channelID)).Msg("ad-hoc voice channel removed")
	return nil, true
}

// AddChannel declares a new channel. Only the owner may do so.
func (d *Directory) AddChannel(
	roomID domain.RoomID,
	requester domain.ConnID,
	name string,
	kind domain.ChannelKind,
	onCommit func(ch domain.Channel, members []domain.ConnID),
) (domain.Channel, error) {
	if !kind.Valid() {
		return domain.Channel{}, fmt.Errorf("channel kind %q: %w", kind, domain.ErrInvalidChannelKind)
	}
	room, err := d.lockRoom(roomID)
	if err != nil {
		return domain.Channel{}, err
	}
	defer room.mu.Unlock()

	if !d.ownedBy(room, requester) {
		return domain.Channel{}, fmt.Errorf("add channel to %s: %w", roomID, domain.ErrNotOwner)
	}
	ch := domain.Channel{ID: domain.ChannelID(uuid.NewString()), Name: name, Kind: kind, Declared: true}
	room.info.Channels = append(room.info.Channels, ch)
	if kind == domain.ChannelVoice {
		room.voice[ch.ID] = memberSet{}
	}
	d.mu.Lock()
	d.channels[ch.ID] = roomID
	d.mu.Unlock()
	if onCommit != nil {
		onCommit(ch, room.members.sorted())
	}
	return ch, nil
}

// DeleteRoom evicts every member and removes the room. Only the owner may do so.
func (d *Directory) DeleteRoom(
	roomID domain.RoomID,
	requester domain.ConnID,
	onCommit func(members []domain.ConnID),
) ([]domain.ConnID, error) {
	room, err := d.lockRoom(roomID)
	if err != nil {
		return nil, err
	}
	defer room.mu.Unlock()

	if !d.ownedBy(room, requester) {
		return nil, fmt.Errorf("delete room %s: %w", roomID, domain.ErrNotOwner)
	}
	members := room.members.sorted()
	room.members = memberSet{}
	clear(room.voice)
	d.removeLocked(room)
	if onCommit != nil {
		onCommit(members)
	}
	return members, nil
}

// WithMembers runs fn with the room's member snapshot under the room lock.
func (d *Directory) WithMembers(roomID domain.RoomID, fn func(members []domain.ConnID)) error {
	room, err := d.lockRoom(roomID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()
	fn(room.members.sorted())
	return nil
}

// WithVoiceMembers runs fn with the channel's member snapshot under its room lock.
func (d *Directory) WithVoiceMembers(channelID domain.ChannelID, fn func(roomID domain.RoomID, members []domain.ConnID)) error {
	d.mu.RLock()
	roomID, ok := d.channels[channelID]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("channel %s: %w", channelID, domain.ErrChannelNotFound)
	}
	room, err := d.lockRoom(roomID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()
	set, ok := room.voice[channelID]
	if !ok {
		return fmt.Errorf("channel %s: %w", channelID, domain.ErrChannelNotFound)
	}
	fn(roomID, set.sorted())
	return nil
}

func (d *Directory) MembersOf(roomID domain.RoomID) ([]domain.ConnID, error) {
	var out []domain.ConnID
	err := d.WithMembers(roomID, func(members []domain.ConnID) { out = members })
	return out, err
}

func (d *Directory) VoiceMembersOf(channelID domain.ChannelID) ([]domain.ConnID, error) {
	var out []domain.ConnID
	err := d.WithVoiceMembers(channelID, func(_ domain.RoomID, members []domain.ConnID) { out = members })
	return out, err
}

func (d *Directory) IsMember(roomID domain.RoomID, id domain.ConnID) bool {
	var ok bool
	_ = d.WithMembers(roomID, func(members []domain.ConnID) {
		_, ok = slices.BinarySearch(members, id)
	})
	return ok
}

func (d *Directory) Room(roomID domain.RoomID) (domain.Room, bool) {
	room, err := d.lockRoom(roomID)
	if err != nil {
		return domain.Room{}, false
	}
	defer room.mu.Unlock()
	return room.info.Clone(), true
}

func (d *Directory) List() []RoomInfo {
	d.mu.RLock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.RUnlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.closed {
			out = append(out, RoomInfo{
				ID:          r.info.ID,
				Name:        r.info.Name,
				Owner:       r.info.Owner,
				MemberCount: len(r.members),
				Channels:    len(r.info.Channels),
			})
		}
		r.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b RoomInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}
