package orch

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voicehub/internal/app"
	"github.com/dkeye/voicehub/internal/core"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/dkeye/voicehub/internal/metrics"
)

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

// drain returns and forgets every frame received so far.
func (f *fakeSignal) drain(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	frames := f.frames
	f.frames = nil
	f.mu.Unlock()
	out := make([]map[string]any, 0, len(frames))
	for _, fr := range frames {
		var m map[string]any
		if err := json.Unmarshal(fr, &m); err != nil {
			t.Fatalf("frame %q: %v", fr, err)
		}
		out = append(out, m)
	}
	return out
}

func types(msgs []map[string]any) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i], _ = m["type"].(string)
	}
	return out
}

func expectTypes(t *testing.T, who string, msgs []map[string]any, want ...string) {
	t.Helper()
	got := types(msgs)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("%s got %v, want %v", who, got, want)
	}
}

type harness struct {
	o    *Orchestrator
	sigs map[domain.ConnID]*fakeSignal
}

func newHarness(t *testing.T, policy app.Policy) *harness {
	t.Helper()
	m := metrics.New()
	reg := app.NewRegistry()
	dir := app.NewDirectory(reg)
	r := app.NewRouter(reg, dir, policy, m)
	return &harness{o: New(reg, dir, r, m), sigs: map[domain.ConnID]*fakeSignal{}}
}

func (h *harness) connect(t *testing.T, id domain.ConnID) *fakeSignal {
	t.Helper()
	return h.connectAs(t, id, domain.UserID("user-"+string(id)))
}

// connectAs opens a connection for an existing user identity.
func (h *harness) connectAs(t *testing.T, id domain.ConnID, user domain.UserID) *fakeSignal {
	t.Helper()
	sig := &fakeSignal{}
	u, err := domain.NewUser(user, string(id))
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if err := h.o.OnConnect(id, *u, sig); err != nil {
		t.Fatalf("OnConnect(%s): %v", id, err)
	}
	h.sigs[id] = sig
	return sig
}

func (h *harness) createRoom(t *testing.T, id domain.ConnID) domain.RoomID {
	t.Helper()
	h.o.Handle(id, core.CreateRoom{Name: "room-of-" + string(id)})
	msgs := h.sigs[id].drain(t)
	expectTypes(t, string(id), msgs, core.TypeRoomCreated)
	return domain.RoomID(msgs[0]["roomId"].(string))
}

func TestScenarioCreateJoinVoiceDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	b := h.connect(t, "B")

	roomID := h.createRoom(t, "A")

	h.o.Handle("B", core.JoinRoom{RoomID: roomID})
	bMsgs := b.drain(t)
	expectTypes(t, "B", bMsgs, core.TypeCurrentMembers)
	members := bMsgs[0]["members"].([]any)
	if len(members) != 1 || members[0].(map[string]any)["id"] != "A" {
		t.Fatalf("B current members=%v, want [A]", members)
	}
	aMsgs := a.drain(t)
	expectTypes(t, "A", aMsgs, core.TypePresenceJoined)
	if aMsgs[0]["member"].(map[string]any)["id"] != "B" {
		t.Fatalf("presence-joined=%v", aMsgs[0])
	}

	h.o.Handle("A", core.JoinVoice{ChannelID: "voice"})
	aMsgs = a.drain(t)
	expectTypes(t, "A", aMsgs, core.TypeVoiceMembers)
	if len(aMsgs[0]["members"].([]any)) != 0 {
		t.Fatalf("first voice joiner saw members %v", aMsgs[0]["members"])
	}
	channelID := aMsgs[0]["channelId"].(string)

	h.o.Handle("B", core.JoinVoice{ChannelID: "voice"})
	bMsgs = b.drain(t)
	expectTypes(t, "B", bMsgs, core.TypeVoiceMembers, core.TypeInitiateOffer)
	if vm := bMsgs[0]["members"].([]any); len(vm) != 1 || vm[0].(map[string]any)["id"] != "A" {
		t.Fatalf("B voice members=%v, want [A]", vm)
	}
	if bMsgs[1]["targetId"] != "A" {
		t.Fatalf("initiate-offer=%v, want target A", bMsgs[1])
	}
	aMsgs = a.drain(t)
	expectTypes(t, "A", aMsgs, core.TypeVoiceJoined)
	if aMsgs[0]["member"].(map[string]any)["id"] != "B" {
		t.Fatalf("voice-joined=%v", aMsgs[0])
	}

	h.o.OnDisconnect("A")
	bMsgs = b.drain(t)
	expectTypes(t, "B", bMsgs, core.TypeUserLeft, core.TypeUserLeft)
	if bMsgs[0]["scope"] != core.ScopeVoice || bMsgs[0]["channelId"] != channelID || bMsgs[0]["connectionId"] != "A" {
		t.Fatalf("voice user-left=%v", bMsgs[0])
	}
	if bMsgs[1]["scope"] != core.ScopeRoom || bMsgs[1]["roomId"] != string(roomID) {
		t.Fatalf("room user-left=%v", bMsgs[1])
	}

	room, err := h.o.Rooms.MembersOf(roomID)
	if err != nil || len(room) != 1 || room[0] != "B" {
		t.Fatalf("room members=%v err=%v, want [B]", room, err)
	}
	if h.o.Registry.Contains("A") {
		t.Fatalf("A still registered")
	}

	// A second disconnect is a no-op.
	h.o.OnDisconnect("A")
	if msgs := b.drain(t); len(msgs) != 0 {
		t.Fatalf("second disconnect produced %v", types(msgs))
	}
}

func TestJoinMissingRoom(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	h.o.Handle("A", core.JoinRoom{RoomID: "nope"})
	msgs := a.drain(t)
	expectTypes(t, "A", msgs, core.TypeRoomNotFound)
	if msgs[0]["roomId"] != "nope" {
		t.Fatalf("room-not-found=%v", msgs[0])
	}
}

func TestExplicitLeave(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	b := h.connect(t, "B")
	roomID := h.createRoom(t, "A")
	h.o.Handle("B", core.JoinRoom{RoomID: roomID})
	a.drain(t)
	b.drain(t)

	h.o.Handle("B", core.LeaveRoom{})
	expectTypes(t, "B", b.drain(t), core.TypeLeft)
	msgs := a.drain(t)
	expectTypes(t, "A", msgs, core.TypePresenceLeft)
	if msgs[0]["connectionId"] != "B" {
		t.Fatalf("presence-left=%v", msgs[0])
	}

	h.o.Handle("B", core.LeaveRoom{})
	msgs = b.drain(t)
	expectTypes(t, "B", msgs, core.TypeError)
	if msgs[0]["code"] != core.CodeNotInRoom {
		t.Fatalf("error=%v", msgs[0])
	}
}

func TestJoinVoiceWithoutRoom(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	h.o.Handle("A", core.JoinVoice{ChannelID: "voice"})
	msgs := a.drain(t)
	expectTypes(t, "A", msgs, core.TypeError)
	if msgs[0]["code"] != core.CodeNotInRoom {
		t.Fatalf("error=%v", msgs[0])
	}
	conn, _ := h.o.Registry.Lookup("A")
	if conn.State != domain.StateConnected {
		t.Fatalf("state=%v, want connected", conn.State)
	}
}

func TestSignalRelay(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	b := h.connect(t, "B")

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	h.o.Handle("A", core.Signal{Kind: core.KindOffer, Target: "B", Payload: payload})
	msgs := b.drain(t)
	expectTypes(t, "B", msgs, string(core.KindOffer))
	if msgs[0]["sender"] != "A" {
		t.Fatalf("offer=%v", msgs[0])
	}
	got, _ := json.Marshal(msgs[0]["payload"])
	var want any
	_ = json.Unmarshal(payload, &want)
	wantJSON, _ := json.Marshal(want)
	if string(got) != string(wantJSON) {
		t.Fatalf("payload=%s, want %s", got, wantJSON)
	}

	h.o.Handle("A", core.Signal{Kind: core.KindICECandidate, Target: "gone", Payload: json.RawMessage(`{}`)})
	if msgs := a.drain(t); len(msgs) != 0 {
		t.Fatalf("sender told about dropped relay: %v", types(msgs))
	}
	if got := h.o.Metrics.Get(metrics.DropNoTarget); got != 1 {
		t.Fatalf("drop_no_target=%d, want 1", got)
	}
}

func TestChatExcludesSender(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	b := h.connect(t, "B")
	roomID := h.createRoom(t, "A")
	h.o.Handle("B", core.JoinRoom{RoomID: roomID})
	a.drain(t)
	b.drain(t)

	h.o.Handle("A", core.ChatMessage{RoomID: roomID, Text: "hi"})
	if msgs := a.drain(t); len(msgs) != 0 {
		t.Fatalf("sender got %v", types(msgs))
	}
	msgs := b.drain(t)
	expectTypes(t, "B", msgs, core.TypeNewMessage)
	if msgs[0]["text"] != "hi" || msgs[0]["sender"] != "A" || msgs[0]["senderName"] != "A" || msgs[0]["id"] == "" {
		t.Fatalf("new-message=%v", msgs[0])
	}

	h.o.Handle("A", core.ChatMessage{RoomID: "other", Text: "hi"})
	msgs = a.drain(t)
	expectTypes(t, "A", msgs, core.TypeError)
}

func TestOwnerOnlyChannelAndDelete(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	b := h.connect(t, "B")
	roomID := h.createRoom(t, "A")
	h.o.Handle("B", core.JoinRoom{RoomID: roomID})
	a.drain(t)
	b.drain(t)

	h.o.Handle("B", core.CreateChannel{Name: "music", Kind: domain.ChannelVoice})
	msgs := b.drain(t)
	expectTypes(t, "B", msgs, core.TypeError)
	if msgs[0]["code"] != core.CodeNotOwner {
		t.Fatalf("error=%v", msgs[0])
	}

	h.o.Handle("A", core.CreateChannel{Name: "music", Kind: domain.ChannelVoice})
	expectTypes(t, "A", a.drain(t), core.TypeChannelCreated)
	expectTypes(t, "B", b.drain(t), core.TypeChannelCreated)

	h.o.Handle("B", core.DeleteRoom{})
	expectTypes(t, "B", b.drain(t), core.TypeError)

	h.o.Handle("A", core.DeleteRoom{})
	expectTypes(t, "A", a.drain(t), core.TypeRoomDeleted)
	expectTypes(t, "B", b.drain(t), core.TypeRoomDeleted)
	for _, id := range []domain.ConnID{"A", "B"} {
		conn, _ := h.o.Registry.Lookup(id)
		if conn.RoomID != "" || conn.State != domain.StateConnected {
			t.Fatalf("%s still in room: %+v", id, conn)
		}
	}
	if h.o.Rooms.Count() != 0 {
		t.Fatalf("rooms=%d, want 0", h.o.Rooms.Count())
	}
}

func TestOwnerReconnectKeepsOwnership(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t, "A")
	b := h.connect(t, "B")
	roomID := h.createRoom(t, "A")
	h.o.Handle("B", core.JoinRoom{RoomID: roomID})
	msgs := b.drain(t)
	expectTypes(t, "B", msgs, core.TypeCurrentMembers)
	if msgs[0]["owner"] != "user-A" {
		t.Fatalf("owner=%v, want user-A", msgs[0]["owner"])
	}

	h.o.OnDisconnect("A")
	expectTypes(t, "B", b.drain(t), core.TypeUserLeft)

	a2 := h.connectAs(t, "A2", "user-A")
	h.o.Handle("A2", core.JoinRoom{RoomID: roomID})
	expectTypes(t, "A2", a2.drain(t), core.TypeCurrentMembers)
	expectTypes(t, "B", b.drain(t), core.TypePresenceJoined)

	h.o.Handle("A2", core.CreateChannel{Name: "music", Kind: domain.ChannelText})
	expectTypes(t, "A2", a2.drain(t), core.TypeChannelCreated)
	expectTypes(t, "B", b.drain(t), core.TypeChannelCreated)

	h.o.Handle("A2", core.DeleteRoom{})
	expectTypes(t, "A2", a2.drain(t), core.TypeRoomDeleted)
	expectTypes(t, "B", b.drain(t), core.TypeRoomDeleted)
	if h.o.Rooms.Count() != 0 {
		t.Fatalf("rooms=%d, want 0", h.o.Rooms.Count())
	}
}

func TestAdHocChannelRemovalAnnounced(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	b := h.connect(t, "B")
	roomID := h.createRoom(t, "A")
	h.o.Handle("B", core.JoinRoom{RoomID: roomID})
	a.drain(t)
	b.drain(t)

	h.o.Handle("A", core.JoinVoice{ChannelID: "gaming"})
	msgs := a.drain(t)
	expectTypes(t, "A", msgs, core.TypeVoiceMembers)
	gaming := msgs[0]["channelId"]
	expectTypes(t, "B", b.drain(t), core.TypeChannelCreated)

	h.o.Handle("A", core.LeaveVoice{})
	expectTypes(t, "A", a.drain(t), core.TypeChannelRemoved)
	msgs = b.drain(t)
	expectTypes(t, "B", msgs, core.TypeChannelRemoved)
	if msgs[0]["channelId"] != gaming || msgs[0]["roomId"] != string(roomID) {
		t.Fatalf("channel-removed=%v, want %v", msgs[0], gaming)
	}

	// Moving out of an ad-hoc channel removes it too.
	h.o.Handle("A", core.JoinVoice{ChannelID: "gaming"})
	a.drain(t)
	expectTypes(t, "B", b.drain(t), core.TypeChannelCreated)
	h.o.Handle("A", core.JoinVoice{ChannelID: "voice"})
	expectTypes(t, "A", a.drain(t), core.TypeChannelRemoved, core.TypeVoiceMembers)
	expectTypes(t, "B", b.drain(t), core.TypeChannelRemoved)

	// And so does disconnecting from one.
	h.o.Handle("A", core.JoinVoice{ChannelID: "gaming"})
	a.drain(t)
	expectTypes(t, "B", b.drain(t), core.TypeChannelCreated)
	h.o.OnDisconnect("A")
	expectTypes(t, "B", b.drain(t), core.TypeChannelRemoved, core.TypeUserLeft)

	info, ok := h.o.Rooms.Room(roomID)
	if !ok || len(info.Channels) != 2 {
		t.Fatalf("channels=%+v ok=%v, want the two defaults", info.Channels, ok)
	}
}

func TestJoinMissingRoomKeepsCurrentRoom(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	c := h.connect(t, "C")
	roomID := h.createRoom(t, "A")
	h.o.Handle("C", core.JoinRoom{RoomID: roomID})
	h.o.Handle("C", core.JoinVoice{ChannelID: "voice"})
	a.drain(t)
	c.drain(t)

	h.o.Handle("C", core.JoinRoom{RoomID: "typo"})
	msgs := c.drain(t)
	expectTypes(t, "C", msgs, core.TypeRoomNotFound)
	if msgs[0]["roomId"] != "typo" {
		t.Fatalf("room-not-found=%v", msgs[0])
	}
	if msgs := a.drain(t); len(msgs) != 0 {
		t.Fatalf("A saw %v", types(msgs))
	}
	conn, _ := h.o.Registry.Lookup("C")
	if conn.RoomID != roomID || conn.VoiceChannelID == "" || !h.o.Rooms.IsMember(roomID, "C") {
		t.Fatalf("C lost its room: %+v", conn)
	}
}

func TestLeaveVoiceAndScreenShare(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	b := h.connect(t, "B")
	roomID := h.createRoom(t, "A")
	h.o.Handle("B", core.JoinRoom{RoomID: roomID})
	h.o.Handle("A", core.JoinVoice{ChannelID: "voice"})
	h.o.Handle("B", core.JoinVoice{ChannelID: "voice"})
	a.drain(t)
	b.drain(t)

	h.o.Handle("A", core.ScreenShare{Active: true})
	msgs := b.drain(t)
	expectTypes(t, "B", msgs, core.TypeScreenShare)
	if msgs[0]["active"] != true || msgs[0]["sender"] != "A" {
		t.Fatalf("screen-share=%v", msgs[0])
	}

	h.o.Handle("A", core.LeaveVoice{})
	expectTypes(t, "B", b.drain(t), core.TypeVoiceLeft)
	conn, _ := h.o.Registry.Lookup("A")
	if conn.State != domain.StateInRoom || conn.VoiceChannelID != "" {
		t.Fatalf("A after leave-voice: %+v", conn)
	}

	h.o.Handle("A", core.LeaveVoice{})
	msgs = a.drain(t)
	expectTypes(t, "A", msgs, core.TypeError)
	if msgs[0]["code"] != core.CodeNotInVoice {
		t.Fatalf("error=%v", msgs[0])
	}
}

func TestSwitchingRoomsLeavesPrevious(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	b := h.connect(t, "B")
	c := h.connect(t, "C")
	r1 := h.createRoom(t, "A")
	r2 := h.createRoom(t, "B")
	h.o.Handle("C", core.JoinRoom{RoomID: r1})
	h.o.Handle("C", core.JoinVoice{ChannelID: "voice"})
	a.drain(t)
	c.drain(t)

	h.o.Handle("C", core.JoinRoom{RoomID: r2})
	expectTypes(t, "C", c.drain(t), core.TypeLeft, core.TypeCurrentMembers)
	expectTypes(t, "A", a.drain(t), core.TypePresenceLeft)
	expectTypes(t, "B", b.drain(t), core.TypePresenceJoined)

	if h.o.Rooms.IsMember(r1, "C") || !h.o.Rooms.IsMember(r2, "C") {
		t.Fatalf("C membership not moved")
	}
	conn, _ := h.o.Registry.Lookup("C")
	if conn.RoomID != r2 || conn.VoiceChannelID != "" {
		t.Fatalf("C=%+v", conn)
	}
}

func TestRenameBroadcasts(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	b := h.connect(t, "B")
	roomID := h.createRoom(t, "A")
	h.o.Handle("B", core.JoinRoom{RoomID: roomID})
	a.drain(t)
	b.drain(t)

	h.o.Handle("A", core.Rename{Name: "alice"})
	msgs := a.drain(t)
	expectTypes(t, "A", msgs, core.TypeWhoAmIReply)
	if msgs[0]["username"] != "alice" || msgs[0]["roomId"] != string(roomID) {
		t.Fatalf("whoami=%v", msgs[0])
	}
	msgs = b.drain(t)
	expectTypes(t, "B", msgs, core.TypeMemberUpdated)
	if msgs[0]["member"].(map[string]any)["username"] != "alice" {
		t.Fatalf("member-updated=%v", msgs[0])
	}

	h.o.Handle("A", core.Rename{Name: "this name is far too long to be accepted by the relay"})
	msgs = a.drain(t)
	expectTypes(t, "A", msgs, core.TypeError)
	if msgs[0]["code"] != core.CodeInvalidName {
		t.Fatalf("error=%v", msgs[0])
	}
}

func TestPingAndWhoAmI(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	h.o.Handle("A", core.Ping{})
	h.o.Handle("A", core.WhoAmI{})
	msgs := a.drain(t)
	expectTypes(t, "A", msgs, core.TypePong, core.TypeWhoAmIReply)
	if msgs[1]["connectionId"] != "A" || msgs[1]["userId"] != "user-A" {
		t.Fatalf("whoami=%v", msgs[1])
	}
}

func TestConcurrentDisconnectNotifiesOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t, "A")
	b := h.connect(t, "B")
	roomID := h.createRoom(t, "A")
	h.o.Handle("B", core.JoinRoom{RoomID: roomID})
	b.drain(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.o.OnDisconnect("A")
		}()
	}
	wg.Wait()

	expectTypes(t, "B", b.drain(t), core.TypeUserLeft)
	if got := h.o.Metrics.Get(metrics.ConnectionsClosed); got != 1 {
		t.Fatalf("connections_closed=%d, want 1", got)
	}
}

func TestDisconnectRacingJoinLeavesNoGhost(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t, "owner")
	roomID := h.createRoom(t, "owner")

	for i := 0; i < 100; i++ {
		id := domain.ConnID(fmt.Sprintf("c%03d", i))
		h.connect(t, id)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.o.Handle(id, core.JoinRoom{RoomID: roomID})
			h.o.Handle(id, core.JoinVoice{ChannelID: "voice"})
		}()
		go func() {
			defer wg.Done()
			h.o.OnDisconnect(id)
		}()
		wg.Wait()

		if h.o.Rooms.IsMember(roomID, id) {
			t.Fatalf("%s left behind in room", id)
		}
		if h.o.Registry.Contains(id) {
			t.Fatalf("%s left behind in registry", id)
		}
	}
	members, _ := h.o.Rooms.MembersOf(roomID)
	if len(members) != 1 || members[0] != "owner" {
		t.Fatalf("members=%v, want [owner]", members)
	}
}

func TestInconsistentStateDisconnects(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, "A")
	b := h.connect(t, "B")
	roomID := h.createRoom(t, "A")
	h.o.Handle("B", core.JoinRoom{RoomID: roomID})
	a.drain(t)
	b.drain(t)

	// Drop B from the directory behind the registry's back.
	if _, err := h.o.Rooms.LeaveRoom(roomID, "B", nil); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	h.o.Handle("B", core.JoinVoice{ChannelID: "voice"})

	if !b.isClosed() {
		t.Fatalf("inconsistent connection not closed")
	}
	if h.o.Registry.Contains("B") {
		t.Fatalf("inconsistent connection still registered")
	}
	// Later messages from B are ignored.
	h.o.Handle("B", core.Ping{})
	if msgs := b.drain(t); len(msgs) != 0 {
		t.Fatalf("B got %v after forced disconnect", types(msgs))
	}
}

func TestKickPolicyDisconnectsSlowReceiver(t *testing.T) {
	h := newHarness(t, app.KickPolicy{})
	a := h.connect(t, "A")
	slow := h.connect(t, "slow")
	roomID := h.createRoom(t, "A")
	h.o.Handle("slow", core.JoinRoom{RoomID: roomID})
	a.drain(t)
	slow.limit = 1

	for i := 0; i < 3; i++ {
		h.o.Handle("A", core.ChatMessage{RoomID: roomID, Text: "spam"})
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.o.Registry.Contains("slow") {
		if time.Now().After(deadline) {
			t.Fatalf("slow receiver was not disconnected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !slow.isClosed() {
		t.Fatalf("slow receiver transport not closed")
	}
	if h.o.Rooms.IsMember(roomID, "slow") {
		t.Fatalf("slow receiver still in room")
	}
}

func TestErrorReply(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("x: %w", core.ErrBadPayload), core.CodeBadPayload},
		{core.ErrUnknownType, core.CodeUnknownType},
		{domain.ErrNotInRoom, core.CodeNotInRoom},
		{domain.ErrNotInVoice, core.CodeNotInVoice},
		{domain.ErrNotOwner, core.CodeNotOwner},
		{domain.ErrNotVoiceChannel, core.CodeNotVoiceChannel},
		{domain.ErrUsernameTooLong, core.CodeInvalidName},
		{domain.ErrRoomNameTooLong, core.CodeInvalidName},
		{fmt.Errorf("boom"), core.CodeInternal},
	}
	for _, tc := range cases {
		if got := ErrorReply(tc.err); got.Code != tc.code || got.Type != core.TypeError {
			t.Fatalf("ErrorReply(%v)=%+v, want code %s", tc.err, got, tc.code)
		}
	}
}
