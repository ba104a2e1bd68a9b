package rooms

// UnreadCount is the number of non-deleted messages in the room the user
// has not marked read. The two counts are independent queries, so a racing
// insert can make the raw difference negative; the result is clamped to
// zero instead of reporting it.
func (s *Service) UnreadCount(roomID, userID string) (int, error) {
	total, err := s.repo.CountMessages(roomID)
	if err != nil {
		return 0, err
	}
	read, err := s.repo.CountReadReceipts(roomID, userID)
	if err != nil {
		return 0, err
	}

	unread := total - read
	if unread < 0 {
		unread = 0
	}
	return int(unread), nil
}

// MarkAllRead upserts a receipt for every non-deleted message in the room.
// Bulk and idempotent; repeating it is a no-op.
func (s *Service) MarkAllRead(roomID, userID string) error {
	return s.repo.MarkAllRead(roomID, userID)
}
