package support

import (
	"context"
	"log/slog"
	"time"

	"StayDesk/entity"
	"StayDesk/internal/lib/sl"
)

// ReconcileTimeouts re-evaluates every assigned support room whose timer
// lapsed. An operator who is slow but still online keeps the room and gets
// a fresh grace window; an operator who went away is replaced by the
// least-loaded online alternative, or the room drops back to pending when
// nobody else is available. Returns the rooms whose operator changed.
func (s *Service) ReconcileTimeouts(ctx context.Context) ([]Assignment, error) {
	rooms, err := s.repo.ListAssignedSupportRooms()
	if err != nil {
		return nil, err
	}

	var changed []Assignment
	for i := range rooms {
		room := &rooms[i]

		active, err := s.timers.TimerActive(ctx, room.ID)
		if err != nil {
			s.log.Warn("timer lookup failed", slog.String("room", room.ID), sl.Err(err))
			continue
		}
		if active {
			continue
		}

		previous := room.CurrentOperatorID

		online, err := s.presence.IsOnline(ctx, previous)
		if err != nil {
			s.log.Warn("presence lookup failed", slog.String("operator", previous), sl.Err(err))
			continue
		}
		if online {
			// Grace: the operator is merely slow, not gone.
			if err := s.timers.SetTimer(ctx, room.ID, previous); err != nil {
				s.log.Warn("timer renewal failed", slog.String("room", room.ID), sl.Err(err))
			}
			continue
		}

		replacement, err := s.leastLoaded(ctx, previous)
		if err != nil {
			s.log.Warn("replacement lookup failed", slog.String("room", room.ID), sl.Err(err))
			continue
		}

		if replacement == "" {
			if err := s.repo.DemoteToPending(room.ID); err != nil {
				s.log.Warn("demote to pending failed", slog.String("room", room.ID), sl.Err(err))
				continue
			}
			room.Pending = true
			room.CurrentOperatorID = ""
			changed = append(changed, Assignment{Room: room, PreviousID: previous, Pending: true})
			s.log.Info("support room demoted to pending",
				slog.String("room", room.ID),
				slog.String("previous", previous),
			)
			continue
		}

		if err := s.assign(ctx, room, replacement); err != nil {
			s.log.Warn("reassignment failed", slog.String("room", room.ID), sl.Err(err))
			continue
		}
		changed = append(changed, Assignment{Room: room, OperatorID: replacement, PreviousID: previous})
		s.log.Info("support room reassigned",
			slog.String("room", room.ID),
			slog.String("previous", previous),
			slog.String("operator", replacement),
		)
	}

	return changed, nil
}

// DrainPending assigns every pending support room while any operator is
// online, spreading them across operators by current load. Runs on a timer
// and opportunistically whenever an operator connects. Returns the rooms
// that got an operator.
func (s *Service) DrainPending(ctx context.Context) ([]Assignment, error) {
	pending, err := s.repo.ListPendingSupportRooms()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	candidates, loads, err := s.onlineOperators(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if loads == nil {
		loads = make(map[string]int)
	}

	var assigned []Assignment
	for i := range pending {
		room := &pending[i]

		operatorID := pickLeastLoaded(candidates, loads)
		if err := s.assign(ctx, room, operatorID); err != nil {
			s.log.Warn("pending assignment failed", slog.String("room", room.ID), sl.Err(err))
			continue
		}
		loads[operatorID]++

		assigned = append(assigned, Assignment{Room: room, OperatorID: operatorID})
		s.log.Info("pending support room assigned",
			slog.String("room", room.ID),
			slog.String("operator", operatorID),
		)
	}

	return assigned, nil
}

// assign applies one assignment: membership, operator fields, timer.
func (s *Service) assign(ctx context.Context, room *entity.Conversation, operatorID string) error {
	if err := s.repo.AddMember(entity.NewMembership(operatorID, room.ID, entity.RoomAdminRole)); err != nil {
		return err
	}
	if err := s.repo.SetOperator(room.ID, operatorID); err != nil {
		return err
	}
	if err := s.timers.SetTimer(ctx, room.ID, operatorID); err != nil {
		return err
	}

	room.CurrentOperatorID = operatorID
	room.Pending = false
	room.AssignedOperatorIDs = appendUnique(room.AssignedOperatorIDs, operatorID)
	if !room.HasMember(operatorID) {
		room.MemberIDs = append(room.MemberIDs, operatorID)
	}
	return nil
}

// Run drives the two reconciliation loops until the context ends. Changed
// rooms are handed to notify, which the chat layer uses to alert affected
// parties.
func (s *Service) Run(ctx context.Context, reconcileEvery, drainEvery time.Duration, notify func([]Assignment)) {
	reconcile := time.NewTicker(reconcileEvery)
	drain := time.NewTicker(drainEvery)
	defer reconcile.Stop()
	defer drain.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcile.C:
			changed, err := s.ReconcileTimeouts(ctx)
			if err != nil {
				s.log.Error("reconcile tick", sl.Err(err))
				continue
			}
			if len(changed) > 0 && notify != nil {
				notify(changed)
			}
		case <-drain.C:
			assigned, err := s.DrainPending(ctx)
			if err != nil {
				s.log.Error("drain tick", sl.Err(err))
				continue
			}
			if len(assigned) > 0 && notify != nil {
				notify(assigned)
			}
		}
	}
}
