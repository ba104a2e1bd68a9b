package rooms

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"StayDesk/entity"
)

type fakeRepo struct {
	conversations map[string]*entity.Conversation
	memberships   map[string]map[string]entity.Membership // conv id → user id
	identities    map[string]*entity.Identity
	messages      map[string][]entity.Message // conv id → messages
	read          map[string]map[string]int   // conv id → user id → receipts
	memberErr     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		conversations: make(map[string]*entity.Conversation),
		memberships:   make(map[string]map[string]entity.Membership),
		identities:    make(map[string]*entity.Identity),
		messages:      make(map[string][]entity.Message),
		read:          make(map[string]map[string]int),
	}
}

func (r *fakeRepo) addConversation(conv *entity.Conversation) {
	r.conversations[conv.ID] = conv
	for _, id := range conv.MemberIDs {
		r.addMembership(entity.NewMembership(id, conv.ID, entity.MemberRole))
	}
}

func (r *fakeRepo) addMembership(m entity.Membership) {
	if r.memberships[m.ConversationID] == nil {
		r.memberships[m.ConversationID] = make(map[string]entity.Membership)
	}
	r.memberships[m.ConversationID][m.UserID] = m
}

func (r *fakeRepo) ListMembershipRoomIDs(userID string) ([]string, error) {
	var ids []string
	for convID, members := range r.memberships {
		if _, ok := members[userID]; ok {
			ids = append(ids, convID)
		}
	}
	return ids, nil
}

func (r *fakeRepo) ListConversations(ids []string) ([]entity.Conversation, error) {
	var out []entity.Conversation
	for _, id := range ids {
		if conv, ok := r.conversations[id]; ok && conv.IsOpen() {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetConversation(id string) (*entity.Conversation, error) {
	return r.conversations[id], nil
}

func (r *fakeRepo) IsMember(userID, conversationID string) (bool, error) {
	if r.memberErr != nil {
		return false, r.memberErr
	}
	_, ok := r.memberships[conversationID][userID]
	return ok, nil
}

func (r *fakeRepo) AddMember(member entity.Membership) error {
	// Keyed upsert: a second join keeps the original row.
	if _, ok := r.memberships[member.ConversationID][member.UserID]; ok {
		return nil
	}
	r.addMembership(member)
	return nil
}

func (r *fakeRepo) RemoveMember(userID, conversationID string) error {
	delete(r.memberships[conversationID], userID)
	return nil
}

func (r *fakeRepo) GetIdentity(id string) (*entity.Identity, error) {
	return r.identities[id], nil
}

func (r *fakeRepo) LastMessage(conversationID string) (*entity.Message, error) {
	msgs := r.messages[conversationID]
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[len(msgs)-1], nil
}

func (r *fakeRepo) ListMessages(conversationID string, limit, offset int) ([]entity.Message, error) {
	msgs := r.messages[conversationID]
	var out []entity.Message
	for i := len(msgs) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (r *fakeRepo) CountMessages(conversationID string) (int64, error) {
	return int64(len(r.messages[conversationID])), nil
}

func (r *fakeRepo) CountReadReceipts(conversationID, userID string) (int64, error) {
	return int64(r.read[conversationID][userID]), nil
}

func (r *fakeRepo) MarkAllRead(conversationID, userID string) error {
	if r.read[conversationID] == nil {
		r.read[conversationID] = make(map[string]int)
	}
	r.read[conversationID][userID] = len(r.messages[conversationID])
	return nil
}

type fakePresence struct {
	online map[string]bool
}

func (p *fakePresence) ListOnline(_ context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = p.online[id]
	}
	return out, nil
}

func newTestService(repo *fakeRepo, presence *fakePresence) *Service {
	return NewService(repo, presence, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAddMemberIdempotent(t *testing.T) {
	repo := newFakeRepo()
	conv := entity.NewGroupConversation("u1", "general", []string{"u1"})
	repo.addConversation(conv)
	svc := newTestService(repo, &fakePresence{})

	if err := svc.AddMember("u2", conv.ID, entity.MemberRole); err != nil {
		t.Fatalf("first AddMember: %v", err)
	}
	if err := svc.AddMember("u2", conv.ID, entity.MemberRole); err != nil {
		t.Fatalf("second AddMember: %v", err)
	}

	if got := len(repo.memberships[conv.ID]); got != 2 {
		t.Errorf("membership rows: got %d, want 2", got)
	}
	if !svc.IsMember("u2", conv.ID) {
		t.Error("u2 should be a member after join")
	}
}

func TestIsMemberFailsClosed(t *testing.T) {
	repo := newFakeRepo()
	conv := entity.NewGroupConversation("u1", "general", []string{"u1"})
	repo.addConversation(conv)
	repo.memberErr = errors.New("store down")
	svc := newTestService(repo, &fakePresence{})

	if svc.IsMember("u1", conv.ID) {
		t.Error("membership lookup error must read as non-member")
	}
}

func TestHistoryRequiresMembership(t *testing.T) {
	repo := newFakeRepo()
	conv := entity.NewGroupConversation("u1", "general", []string{"u1"})
	repo.addConversation(conv)
	repo.messages[conv.ID] = []entity.Message{{Text: "hello"}}
	svc := newTestService(repo, &fakePresence{})

	if _, err := svc.History("stranger", conv.ID, 50, 0); !errors.Is(err, ErrNotMember) {
		t.Errorf("stranger history: got %v, want ErrNotMember", err)
	}

	msgs, err := svc.History("u1", conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("member history: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hello" {
		t.Errorf("history: got %v, want the one message", msgs)
	}
}

func TestUnreadCount(t *testing.T) {
	repo := newFakeRepo()
	conv := entity.NewPrivateConversation("u1", "u2")
	repo.addConversation(conv)
	repo.messages[conv.ID] = []entity.Message{{Text: "a"}, {Text: "b"}, {Text: "c"}}
	svc := newTestService(repo, &fakePresence{})

	count, err := svc.UnreadCount(conv.ID, "u2")
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if count != 3 {
		t.Errorf("unread: got %d, want 3", count)
	}

	if err := svc.MarkAllRead(conv.ID, "u2"); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	count, err = svc.UnreadCount(conv.ID, "u2")
	if err != nil {
		t.Fatalf("UnreadCount after read: %v", err)
	}
	if count != 0 {
		t.Errorf("unread after mark-all-read: got %d, want 0", count)
	}

	// Repeating the bulk read changes nothing.
	if err := svc.MarkAllRead(conv.ID, "u2"); err != nil {
		t.Fatalf("repeat MarkAllRead: %v", err)
	}
	count, _ = svc.UnreadCount(conv.ID, "u2")
	if count != 0 {
		t.Errorf("unread after repeat: got %d, want 0", count)
	}
}

func TestUnreadCountClampsNegative(t *testing.T) {
	repo := newFakeRepo()
	conv := entity.NewPrivateConversation("u1", "u2")
	repo.addConversation(conv)
	repo.messages[conv.ID] = []entity.Message{{Text: "a"}}
	// More receipts than messages, as happens when a counted message is
	// deleted between the two queries.
	repo.read[conv.ID] = map[string]int{"u2": 2}
	svc := newTestService(repo, &fakePresence{})

	count, err := svc.UnreadCount(conv.ID, "u2")
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if count != 0 {
		t.Errorf("unread: got %d, want 0 (clamped)", count)
	}
}

func TestDisplayNameForPrivateRoom(t *testing.T) {
	repo := newFakeRepo()
	repo.identities["u2"] = &entity.Identity{ID: "u2", DisplayName: "Bob"}
	conv := entity.NewPrivateConversation("u1", "u2")
	repo.addConversation(conv)
	svc := newTestService(repo, &fakePresence{})

	infos, err := svc.ListRoomsFor("u1")
	if err != nil {
		t.Fatalf("ListRoomsFor: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("rooms: got %d, want 1", len(infos))
	}
	if infos[0].Name != "Bob" {
		t.Errorf("private room name for u1: got %q, want the peer's name", infos[0].Name)
	}

	// The same room reads differently from the other side; u1 has no
	// stored identity so the raw id is the fallback.
	infos, err = svc.ListRoomsFor("u2")
	if err != nil {
		t.Fatalf("ListRoomsFor: %v", err)
	}
	if infos[0].Name != "u1" {
		t.Errorf("private room name for u2: got %q, want u1", infos[0].Name)
	}
}

func TestDisplayNameForGroupRoom(t *testing.T) {
	repo := newFakeRepo()
	conv := entity.NewGroupConversation("u1", "Standup", []string{"u1", "u2"})
	repo.addConversation(conv)
	svc := newTestService(repo, &fakePresence{})

	infos, err := svc.ListRoomsFor("u1")
	if err != nil {
		t.Fatalf("ListRoomsFor: %v", err)
	}
	want := entity.GroupNamePrefix + "Standup"
	if infos[0].Name != want {
		t.Errorf("group room name: got %q, want %q", infos[0].Name, want)
	}
}

func TestListRoomsForSkipsClosed(t *testing.T) {
	repo := newFakeRepo()
	open := entity.NewGroupConversation("u1", "open", []string{"u1"})
	closed := entity.NewGroupConversation("u1", "closed", []string{"u1"})
	closed.Deleted = true
	repo.addConversation(open)
	repo.addConversation(closed)
	svc := newTestService(repo, &fakePresence{})

	infos, err := svc.ListRoomsFor("u1")
	if err != nil {
		t.Fatalf("ListRoomsFor: %v", err)
	}
	if len(infos) != 1 || infos[0].RoomID != open.ID {
		t.Errorf("rooms: got %v, want only the open one", infos)
	}
}

func TestSidebarSummaries(t *testing.T) {
	repo := newFakeRepo()
	repo.identities["u2"] = &entity.Identity{ID: "u2", DisplayName: "Bob"}
	conv := entity.NewPrivateConversation("u1", "u2")
	repo.addConversation(conv)
	repo.messages[conv.ID] = []entity.Message{{Text: "first"}, {Text: "latest"}}
	presence := &fakePresence{online: map[string]bool{"u2": true}}
	svc := newTestService(repo, presence)

	summaries, err := svc.Sidebar(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Sidebar: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("summaries: got %d, want 1", len(summaries))
	}

	s := summaries[0]
	if s.DisplayName != "Bob" {
		t.Errorf("display name: got %q, want Bob", s.DisplayName)
	}
	if s.LastMessage == nil || s.LastMessage.Text != "latest" {
		t.Errorf("last message: got %+v, want the latest", s.LastMessage)
	}
	if s.UnreadCount != 2 {
		t.Errorf("unread: got %d, want 2", s.UnreadCount)
	}
	if len(s.OnlineMemberIDs) != 1 || s.OnlineMemberIDs[0] != "u2" {
		t.Errorf("online members: got %v, want [u2]", s.OnlineMemberIDs)
	}
}

func TestOnlineMembers(t *testing.T) {
	repo := newFakeRepo()
	conv := entity.NewGroupConversation("u1", "general", []string{"u1", "u2", "u3"})
	repo.addConversation(conv)
	presence := &fakePresence{online: map[string]bool{"u1": true, "u3": true}}
	svc := newTestService(repo, presence)

	online, err := svc.OnlineMembers(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("OnlineMembers: %v", err)
	}
	if len(online) != 2 || online[0] != "u1" || online[1] != "u3" {
		t.Errorf("online: got %v, want [u1 u3] in member order", online)
	}
}

func TestIsOperator(t *testing.T) {
	repo := newFakeRepo()
	conv := entity.NewSupportConversation("u1")
	conv.CurrentOperatorID = "op-1"
	conv.AssignedOperatorIDs = []string{"op-0", "op-1"}
	repo.addConversation(conv)
	svc := newTestService(repo, &fakePresence{})

	if !svc.IsOperator("op-1", conv.ID) {
		t.Error("current operator must qualify")
	}
	if !svc.IsOperator("op-0", conv.ID) {
		t.Error("previously assigned operator must qualify")
	}
	if svc.IsOperator("u1", conv.ID) {
		t.Error("requester is not an operator")
	}
	if svc.IsOperator("op-1", "missing") {
		t.Error("unknown room must fail closed")
	}
}
