package support

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"StayDesk/entity"
)

type fakeRepo struct {
	conversations  map[string]*entity.Conversation
	memberships    map[string]map[string]entity.Membership // conv id → user id
	operators      []entity.Identity
	addMemberCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		conversations: make(map[string]*entity.Conversation),
		memberships:   make(map[string]map[string]entity.Membership),
	}
}

func (r *fakeRepo) OpenSupportRoomFor(userID string) (*entity.Conversation, error) {
	for _, conv := range r.conversations {
		if conv.IsSupport() && conv.IsOpen() && conv.HasMember(userID) {
			return conv, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) InsertConversation(conv *entity.Conversation) error {
	copied := *conv
	r.conversations[conv.ID] = &copied
	return nil
}

func (r *fakeRepo) GetConversation(id string) (*entity.Conversation, error) {
	conv, ok := r.conversations[id]
	if !ok {
		return nil, nil
	}
	copied := *conv
	return &copied, nil
}

func (r *fakeRepo) AddMember(member entity.Membership) error {
	r.addMemberCalls++
	if r.memberships[member.ConversationID] == nil {
		r.memberships[member.ConversationID] = make(map[string]entity.Membership)
	}
	if _, ok := r.memberships[member.ConversationID][member.UserID]; ok {
		return nil
	}
	r.memberships[member.ConversationID][member.UserID] = member
	if conv, ok := r.conversations[member.ConversationID]; ok && !conv.HasMember(member.UserID) {
		conv.MemberIDs = append(conv.MemberIDs, member.UserID)
	}
	return nil
}

func (r *fakeRepo) SetOperator(roomID, operatorID string) error {
	conv := r.conversations[roomID]
	conv.CurrentOperatorID = operatorID
	conv.Pending = false
	conv.AssignedOperatorIDs = appendUnique(conv.AssignedOperatorIDs, operatorID)
	return nil
}

func (r *fakeRepo) DemoteToPending(roomID string) error {
	conv := r.conversations[roomID]
	conv.CurrentOperatorID = ""
	conv.Pending = true
	return nil
}

func (r *fakeRepo) ListPendingSupportRooms() ([]entity.Conversation, error) {
	var out []entity.Conversation
	for _, conv := range r.conversations {
		if conv.IsSupport() && conv.IsOpen() && conv.Pending {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListAssignedSupportRooms() ([]entity.Conversation, error) {
	var out []entity.Conversation
	for _, conv := range r.conversations {
		if conv.IsSupport() && conv.IsOpen() && conv.CurrentOperatorID != "" {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (r *fakeRepo) OperatorLoads() (map[string]int, error) {
	loads := make(map[string]int)
	for _, conv := range r.conversations {
		if conv.IsSupport() && conv.IsOpen() && conv.CurrentOperatorID != "" {
			loads[conv.CurrentOperatorID]++
		}
	}
	return loads, nil
}

func (r *fakeRepo) ListOperators() ([]entity.Identity, error) {
	return r.operators, nil
}

func (r *fakeRepo) CloseConversation(conv *entity.Conversation) error {
	stored := r.conversations[conv.ID]
	stored.Active = false
	stored.Deleted = true
	return nil
}

type fakePresence struct {
	online map[string]bool
}

func (p *fakePresence) IsOnline(_ context.Context, id string) (bool, error) {
	return p.online[id], nil
}

func (p *fakePresence) ListOnline(_ context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = p.online[id]
	}
	return out, nil
}

type fakeTimers struct {
	active map[string]string // room id → operator id
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{active: make(map[string]string)}
}

func (t *fakeTimers) SetTimer(_ context.Context, roomID, operatorID string) error {
	t.active[roomID] = operatorID
	return nil
}

func (t *fakeTimers) TimerActive(_ context.Context, roomID string) (bool, error) {
	_, ok := t.active[roomID]
	return ok, nil
}

func (t *fakeTimers) ClearTimer(_ context.Context, roomID string) error {
	delete(t.active, roomID)
	return nil
}

// expire simulates the store dropping the key after the grace window.
func (t *fakeTimers) expire(roomID string) {
	delete(t.active, roomID)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func operator(id string) entity.Identity {
	return entity.Identity{ID: id, DisplayName: id, Role: entity.OperatorRole}
}

func newTestService(repo *fakeRepo, presence *fakePresence, timers *fakeTimers) *Service {
	return NewService(repo, presence, timers, discardLogger())
}

func TestRequestSupportNoOperatorOnline(t *testing.T) {
	repo := newFakeRepo()
	repo.operators = []entity.Identity{operator("op-1")}
	presence := &fakePresence{online: map[string]bool{}}
	timers := newFakeTimers()
	svc := newTestService(repo, presence, timers)

	conv, created, err := svc.RequestSupport(context.Background(), entity.Identity{ID: "user-1", DisplayName: "User One"})
	if err != nil {
		t.Fatalf("RequestSupport: %v", err)
	}
	if !created {
		t.Error("created: got false, want true")
	}
	if !conv.Pending {
		t.Error("room should stay pending with no operator online")
	}
	if conv.CurrentOperatorID != "" {
		t.Errorf("operator: got %q, want empty", conv.CurrentOperatorID)
	}
	if active, _ := timers.TimerActive(context.Background(), conv.ID); active {
		t.Error("pending room must not have an assignment timer")
	}
}

func TestRequestSupportAssignsLeastLoaded(t *testing.T) {
	repo := newFakeRepo()
	repo.operators = []entity.Identity{operator("op-a"), operator("op-b"), operator("op-c")}
	presence := &fakePresence{online: map[string]bool{"op-a": true, "op-b": true, "op-c": true}}
	timers := newFakeTimers()
	svc := newTestService(repo, presence, timers)

	// Pre-load op-a with two rooms and op-b with one.
	for _, op := range []string{"op-a", "op-a", "op-b"} {
		conv := entity.NewSupportConversation("seed-" + op)
		conv.Pending = false
		conv.CurrentOperatorID = op
		repo.InsertConversation(conv)
	}

	conv, _, err := svc.RequestSupport(context.Background(), entity.Identity{ID: "user-1"})
	if err != nil {
		t.Fatalf("RequestSupport: %v", err)
	}
	if conv.CurrentOperatorID != "op-c" {
		t.Errorf("operator: got %q, want op-c (zero load)", conv.CurrentOperatorID)
	}
	if conv.Pending {
		t.Error("assigned room must not be pending")
	}
	if op, ok := timers.active[conv.ID]; !ok || op != "op-c" {
		t.Errorf("timer: got (%q, %v), want armed for op-c", op, ok)
	}
	if !conv.HasMember("user-1") || !conv.HasMember("op-c") {
		t.Errorf("members: got %v, want requester and operator", conv.MemberIDs)
	}
}

func TestRequestSupportTieBreakIsStable(t *testing.T) {
	repo := newFakeRepo()
	repo.operators = []entity.Identity{operator("op-z"), operator("op-a"), operator("op-m")}
	presence := &fakePresence{online: map[string]bool{"op-z": true, "op-a": true, "op-m": true}}
	svc := newTestService(repo, presence, newFakeTimers())

	// All loads equal: repeated requests from different users must pick the
	// same operator until loads diverge.
	first, _, err := svc.RequestSupport(context.Background(), entity.Identity{ID: "u1"})
	if err != nil {
		t.Fatalf("RequestSupport: %v", err)
	}
	if first.CurrentOperatorID != "op-a" {
		t.Errorf("tie-break: got %q, want op-a (first in sorted order)", first.CurrentOperatorID)
	}
}

func TestRequestSupportIdempotentPerUser(t *testing.T) {
	repo := newFakeRepo()
	presence := &fakePresence{online: map[string]bool{}}
	svc := newTestService(repo, presence, newFakeTimers())

	user := entity.Identity{ID: "user-1"}
	first, created, err := svc.RequestSupport(context.Background(), user)
	if err != nil {
		t.Fatalf("first RequestSupport: %v", err)
	}
	if !created {
		t.Error("first request should create a room")
	}

	second, created, err := svc.RequestSupport(context.Background(), user)
	if err != nil {
		t.Fatalf("second RequestSupport: %v", err)
	}
	if created {
		t.Error("second request must not create a room")
	}
	if second.ID != first.ID {
		t.Errorf("room id: got %q, want %q", second.ID, first.ID)
	}

	open, _ := repo.ListPendingSupportRooms()
	if len(open) != 1 {
		t.Errorf("open support rooms: got %d, want 1", len(open))
	}
}

func TestOperatorJoinRequiresOnline(t *testing.T) {
	repo := newFakeRepo()
	presence := &fakePresence{online: map[string]bool{}}
	svc := newTestService(repo, presence, newFakeTimers())

	conv := entity.NewSupportConversation("user-1")
	repo.InsertConversation(conv)

	_, _, err := svc.OperatorJoin(context.Background(), conv.ID, "op-1")
	if err != ErrOperatorOffline {
		t.Fatalf("err: got %v, want ErrOperatorOffline", err)
	}

	// The offline check runs before any mutation.
	stored, _ := repo.GetConversation(conv.ID)
	if stored.CurrentOperatorID != "" || !stored.Pending {
		t.Errorf("room mutated by rejected join: %+v", stored)
	}
}

func TestOperatorJoinTakesOverAndReportsPrevious(t *testing.T) {
	repo := newFakeRepo()
	presence := &fakePresence{online: map[string]bool{"op-2": true}}
	timers := newFakeTimers()
	svc := newTestService(repo, presence, timers)

	conv := entity.NewSupportConversation("user-1")
	conv.Pending = false
	conv.CurrentOperatorID = "op-1"
	conv.AssignedOperatorIDs = []string{"op-1"}
	repo.InsertConversation(conv)

	got, previous, err := svc.OperatorJoin(context.Background(), conv.ID, "op-2")
	if err != nil {
		t.Fatalf("OperatorJoin: %v", err)
	}
	if previous != "op-1" {
		t.Errorf("previous: got %q, want op-1", previous)
	}
	if got.CurrentOperatorID != "op-2" {
		t.Errorf("operator: got %q, want op-2", got.CurrentOperatorID)
	}
	if len(got.AssignedOperatorIDs) != 2 {
		t.Errorf("assigned history: got %v, want both operators", got.AssignedOperatorIDs)
	}
	if timers.active[conv.ID] != "op-2" {
		t.Errorf("timer holder: got %q, want op-2", timers.active[conv.ID])
	}
}

func TestOperatorJoinSameOperatorRearmsTimer(t *testing.T) {
	repo := newFakeRepo()
	presence := &fakePresence{online: map[string]bool{"op-1": true}}
	timers := newFakeTimers()
	svc := newTestService(repo, presence, timers)

	conv := entity.NewSupportConversation("user-1")
	conv.Pending = false
	conv.CurrentOperatorID = "op-1"
	repo.InsertConversation(conv)
	timers.expire(conv.ID)

	before := repo.addMemberCalls
	_, previous, err := svc.OperatorJoin(context.Background(), conv.ID, "op-1")
	if err != nil {
		t.Fatalf("OperatorJoin: %v", err)
	}
	if previous != "op-1" {
		t.Errorf("previous: got %q, want op-1", previous)
	}
	if repo.addMemberCalls != before {
		t.Error("re-join by current operator must not touch memberships")
	}
	if timers.active[conv.ID] != "op-1" {
		t.Error("re-join must re-arm the timer")
	}
}

func TestOperatorJoinValidations(t *testing.T) {
	repo := newFakeRepo()
	presence := &fakePresence{online: map[string]bool{"op-1": true}}
	svc := newTestService(repo, presence, newFakeTimers())

	if _, _, err := svc.OperatorJoin(context.Background(), "missing", "op-1"); err != ErrNotFound {
		t.Errorf("missing room: got %v, want ErrNotFound", err)
	}

	group := entity.NewGroupConversation("user-1", "general", []string{"user-1"})
	repo.InsertConversation(group)
	if _, _, err := svc.OperatorJoin(context.Background(), group.ID, "op-1"); err != ErrNotSupportRoom {
		t.Errorf("group room: got %v, want ErrNotSupportRoom", err)
	}

	closed := entity.NewSupportConversation("user-2")
	closed.Deleted = true
	repo.InsertConversation(closed)
	if _, _, err := svc.OperatorJoin(context.Background(), closed.ID, "op-1"); err != ErrRoomClosed {
		t.Errorf("closed room: got %v, want ErrRoomClosed", err)
	}
}

func TestCloseRoomClearsTimer(t *testing.T) {
	repo := newFakeRepo()
	timers := newFakeTimers()
	svc := newTestService(repo, &fakePresence{online: map[string]bool{}}, timers)

	conv := entity.NewSupportConversation("user-1")
	conv.Pending = false
	conv.CurrentOperatorID = "op-1"
	repo.InsertConversation(conv)
	timers.SetTimer(context.Background(), conv.ID, "op-1")

	closed, err := svc.CloseRoom(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("CloseRoom: %v", err)
	}
	if closed.IsOpen() {
		t.Error("closed room still reports open")
	}
	if _, ok := timers.active[conv.ID]; ok {
		t.Error("timer must be cleared on close")
	}

	if _, err := svc.CloseRoom(context.Background(), conv.ID); err != ErrRoomClosed {
		t.Errorf("double close: got %v, want ErrRoomClosed", err)
	}
}

func TestReconcileRenewsForOnlineOperator(t *testing.T) {
	repo := newFakeRepo()
	repo.operators = []entity.Identity{operator("op-1"), operator("op-2")}
	presence := &fakePresence{online: map[string]bool{"op-1": true, "op-2": true}}
	timers := newFakeTimers()
	svc := newTestService(repo, presence, timers)

	conv := entity.NewSupportConversation("user-1")
	conv.Pending = false
	conv.CurrentOperatorID = "op-1"
	repo.InsertConversation(conv)
	timers.expire(conv.ID)

	changed, err := svc.ReconcileTimeouts(context.Background())
	if err != nil {
		t.Fatalf("ReconcileTimeouts: %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("changed: got %d rooms, want 0 (operator still online)", len(changed))
	}
	if timers.active[conv.ID] != "op-1" {
		t.Error("timer must be renewed for the still-online operator")
	}
	stored, _ := repo.GetConversation(conv.ID)
	if stored.CurrentOperatorID != "op-1" {
		t.Errorf("operator: got %q, want op-1 kept", stored.CurrentOperatorID)
	}
}

func TestReconcileReassignsWhenOperatorGone(t *testing.T) {
	repo := newFakeRepo()
	repo.operators = []entity.Identity{operator("op-1"), operator("op-2")}
	presence := &fakePresence{online: map[string]bool{"op-2": true}}
	timers := newFakeTimers()
	svc := newTestService(repo, presence, timers)

	conv := entity.NewSupportConversation("user-1")
	conv.Pending = false
	conv.CurrentOperatorID = "op-1"
	repo.InsertConversation(conv)
	timers.expire(conv.ID)

	changed, err := svc.ReconcileTimeouts(context.Background())
	if err != nil {
		t.Fatalf("ReconcileTimeouts: %v", err)
	}
	if len(changed) != 1 {
		t.Fatalf("changed: got %d rooms, want 1", len(changed))
	}
	a := changed[0]
	if a.OperatorID != "op-2" || a.PreviousID != "op-1" || a.Pending {
		t.Errorf("assignment: got %+v, want op-2 replacing op-1", a)
	}
	if timers.active[conv.ID] != "op-2" {
		t.Error("timer must be re-armed for the replacement")
	}
}

func TestReconcileDemotesWhenNobodyAvailable(t *testing.T) {
	repo := newFakeRepo()
	repo.operators = []entity.Identity{operator("op-1")}
	presence := &fakePresence{online: map[string]bool{}}
	timers := newFakeTimers()
	svc := newTestService(repo, presence, timers)

	conv := entity.NewSupportConversation("user-1")
	conv.Pending = false
	conv.CurrentOperatorID = "op-1"
	repo.InsertConversation(conv)
	timers.expire(conv.ID)

	changed, err := svc.ReconcileTimeouts(context.Background())
	if err != nil {
		t.Fatalf("ReconcileTimeouts: %v", err)
	}
	if len(changed) != 1 || !changed[0].Pending {
		t.Fatalf("changed: got %+v, want one pending demotion", changed)
	}

	stored, _ := repo.GetConversation(conv.ID)
	if !stored.Pending || stored.CurrentOperatorID != "" {
		t.Errorf("room: got %+v, want pending with no operator", stored)
	}
}

func TestReconcileSkipsRoomsWithLiveTimer(t *testing.T) {
	repo := newFakeRepo()
	repo.operators = []entity.Identity{operator("op-2")}
	presence := &fakePresence{online: map[string]bool{"op-2": true}}
	timers := newFakeTimers()
	svc := newTestService(repo, presence, timers)

	conv := entity.NewSupportConversation("user-1")
	conv.Pending = false
	conv.CurrentOperatorID = "op-1"
	repo.InsertConversation(conv)
	timers.SetTimer(context.Background(), conv.ID, "op-1")

	changed, err := svc.ReconcileTimeouts(context.Background())
	if err != nil {
		t.Fatalf("ReconcileTimeouts: %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("changed: got %d rooms, want 0 while the timer lives", len(changed))
	}
}

func TestDrainPendingSpreadsLoad(t *testing.T) {
	repo := newFakeRepo()
	repo.operators = []entity.Identity{operator("op-a"), operator("op-b")}
	presence := &fakePresence{online: map[string]bool{"op-a": true, "op-b": true}}
	timers := newFakeTimers()
	svc := newTestService(repo, presence, timers)

	for i := 0; i < 4; i++ {
		repo.InsertConversation(entity.NewSupportConversation("user-" + string(rune('a'+i))))
	}

	assigned, err := svc.DrainPending(context.Background())
	if err != nil {
		t.Fatalf("DrainPending: %v", err)
	}
	if len(assigned) != 4 {
		t.Fatalf("assigned: got %d rooms, want 4", len(assigned))
	}

	perOperator := make(map[string]int)
	for _, a := range assigned {
		perOperator[a.OperatorID]++
		if a.Pending {
			t.Errorf("room %s still pending after drain", a.Room.ID)
		}
		if timers.active[a.Room.ID] != a.OperatorID {
			t.Errorf("room %s timer holder: got %q, want %q", a.Room.ID, timers.active[a.Room.ID], a.OperatorID)
		}
	}
	if perOperator["op-a"] != 2 || perOperator["op-b"] != 2 {
		t.Errorf("load spread: got %v, want 2 each", perOperator)
	}

	remaining, _ := repo.ListPendingSupportRooms()
	if len(remaining) != 0 {
		t.Errorf("pending after drain: got %d, want 0", len(remaining))
	}
}

func TestDrainPendingNoOperators(t *testing.T) {
	repo := newFakeRepo()
	presence := &fakePresence{online: map[string]bool{}}
	svc := newTestService(repo, presence, newFakeTimers())

	repo.InsertConversation(entity.NewSupportConversation("user-1"))

	assigned, err := svc.DrainPending(context.Background())
	if err != nil {
		t.Fatalf("DrainPending: %v", err)
	}
	if len(assigned) != 0 {
		t.Errorf("assigned: got %d, want 0 with nobody online", len(assigned))
	}

	pending, _ := repo.ListPendingSupportRooms()
	if len(pending) != 1 {
		t.Errorf("pending: got %d, want room untouched", len(pending))
	}
}
