package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"corpchat-backend/internal/calendar"
	"corpchat-backend/internal/model"
	"corpchat-backend/internal/store"
)

// maxAttempts bounds how often a transition is replanned after losing a
// create or update race for the same record.
const maxAttempts = 5

var (
	ErrMissingUser        = errors.New("user id is required")
	ErrStorageUnavailable = errors.New("workday storage unavailable")
	ErrConflict           = errors.New("workday update kept conflicting")
)

// WorkdayStore persists one record per (user, day).
type WorkdayStore interface {
	Get(ctx context.Context, userID, date string) (*model.WorkdayRecord, error)
	GetMany(ctx context.Context, date string, userIDs []string) ([]*model.WorkdayRecord, error)
	Insert(ctx context.Context, record *model.WorkdayRecord) error
	Update(ctx context.Context, record *model.WorkdayRecord, prevRevision int) error
}

type WorkdayService struct {
	store WorkdayStore
	days  *calendar.DayKeyer
	log   *zap.SugaredLogger
}

func NewWorkdayService(store WorkdayStore, days *calendar.DayKeyer, log *zap.SugaredLogger) *WorkdayService {
	return &WorkdayService{store: store, days: days, log: log}
}

// GetToday returns today's projection. A missing record yields a transient
// NOT_STARTED view and nothing is written.
func (s *WorkdayService) GetToday(ctx context.Context, userID string) (*model.WorkdayDTO, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	date := s.days.Today()
	record, err := s.store.Get(ctx, userID, date)
	if err != nil {
		return nil, unavailable(err)
	}
	if record == nil {
		return model.NotStartedDTO(userID, date), nil
	}
	return record.DTO(), nil
}

// GetManyToday returns today's projection for every id with a single store query.
func (s *WorkdayService) GetManyToday(ctx context.Context, userIDs []string) (map[string]*model.WorkdayDTO, error) {
	ids := uniqueIDs(userIDs)
	result := make(map[string]*model.WorkdayDTO, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	date := s.days.Today()
	records, err := s.store.GetMany(ctx, date, ids)
	if err != nil {
		return nil, unavailable(err)
	}
	for _, r := range records {
		result[r.UserID] = r.DTO()
	}
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			result[id] = model.NotStartedDTO(id, date)
		}
	}
	return result, nil
}

func (s *WorkdayService) Start(ctx context.Context, userID string) (*model.WorkdayDTO, error) {
	return s.Apply(ctx, userID, model.ActionStart)
}

func (s *WorkdayService) SetActive(ctx context.Context, userID string) (*model.WorkdayDTO, error) {
	return s.Apply(ctx, userID, model.ActionSetActive)
}

func (s *WorkdayService) Pause(ctx context.Context, userID string) (*model.WorkdayDTO, error) {
	return s.Apply(ctx, userID, model.ActionPause)
}

func (s *WorkdayService) Lunch(ctx context.Context, userID string) (*model.WorkdayDTO, error) {
	return s.Apply(ctx, userID, model.ActionLunch)
}

func (s *WorkdayService) End(ctx context.Context, userID string) (*model.WorkdayDTO, error) {
	return s.Apply(ctx, userID, model.ActionEnd)
}

// Reset forces the day back to ACTIVE, closing any open interval.
func (s *WorkdayService) Reset(ctx context.Context, userID string) (*model.WorkdayDTO, error) {
	return s.Apply(ctx, userID, model.ActionReset)
}

// Apply performs action for userID on today's record. The record is read,
// transitioned and written back conditionally; a lost race reloads and
// replans so the action is judged against the winning state.
func (s *WorkdayService) Apply(ctx context.Context, userID string, action model.Action) (*model.WorkdayDTO, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		now := s.days.Now()
		date := s.days.KeyAt(now)

		record, err := s.store.Get(ctx, userID, date)
		if err != nil {
			return nil, unavailable(err)
		}
		exists := record != nil
		if !exists {
			record = model.NewWorkdayRecord(userID, date)
		}
		prevRevision := record.Revision

		changed, err := record.Apply(action, now)
		if err != nil {
			return nil, err
		}
		if !changed {
			return record.DTO(), nil
		}

		if exists {
			err = s.store.Update(ctx, record, prevRevision)
		} else {
			err = s.store.Insert(ctx, record)
		}
		switch {
		case err == nil:
			last := record.Events[len(record.Events)-1]
			s.log.Infow("workday transition",
				"user_id", userID,
				"date", date,
				"action", action,
				"event", last.Type,
				"status", record.Status,
			)
			return record.DTO(), nil
		case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrStale):
			s.log.Debugw("workday write raced, retrying",
				"user_id", userID,
				"date", date,
				"action", action,
				"attempt", attempt,
				"error", err,
			)
		default:
			return nil, unavailable(err)
		}
	}
	return nil, fmt.Errorf("%s workday for %s: %w", action, userID, ErrConflict)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
