package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/studioordo/backoffice/internal/clock"
	jobdomain "github.com/studioordo/backoffice/internal/job/domain"
	"github.com/studioordo/backoffice/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultMaxRetries = 3
	backoffBase       = 30 * time.Second
)

var claimableStatuses = []jobdomain.Status{jobdomain.StatusPending, jobdomain.StatusFailed}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	KnownTypes KnownTypes
}

// KnownTypes is the enqueue-time allow-list. An empty set disables the
// check (tests enqueue ad-hoc types).
type KnownTypes map[string]struct{}

func NewKnownTypes(types ...string) KnownTypes {
	known := make(KnownTypes, len(types))
	for _, t := range types {
		known[t] = struct{}{}
	}
	return known
}

// Store owns the job_queue table and its state machine.
type Store struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	knownTypes KnownTypes
}

func NewStore(p Params) *Store {
	return &Store{
		db:         p.DB,
		log:        p.Log.Named("job.store"),
		genID:      p.GenID,
		clock:      p.Clock,
		knownTypes: p.KnownTypes,
	}
}

type EnqueueOptions struct {
	RunAt      *time.Time
	MaxRetries *int
}

// Enqueue validates and persists a new pending job. The type allow-list
// check happens before any row is written so wiring mistakes surface at
// enqueue time, not during processing.
func (s *Store) Enqueue(ctx context.Context, jobType string, data any, opts EnqueueOptions) (snowflake.ID, error) {
	if len(s.knownTypes) > 0 {
		if _, ok := s.knownTypes[jobType]; !ok {
			return 0, jobdomain.ErrUnknownJobType
		}
	}

	maxRetries := defaultMaxRetries
	if opts.MaxRetries != nil {
		if *opts.MaxRetries < 0 {
			return 0, jobdomain.ErrInvalidMaxRetries
		}
		maxRetries = *opts.MaxRetries
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	runAt := now
	if opts.RunAt != nil {
		runAt = opts.RunAt.UTC()
	}

	record := jobdomain.JobRecord{
		ID:         s.genID.Generate(),
		Type:       jobType,
		Data:       payload,
		Status:     jobdomain.StatusPending,
		RunAt:      runAt,
		Attempts:   0,
		MaxRetries: maxRetries,
		CreatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return 0, err
	}

	s.log.Debug("job enqueued",
		zap.String("job_id", record.ID.String()),
		zap.String("type", jobType),
		zap.Time("run_at", runAt),
	)
	return record.ID, nil
}

// ProcessNext claims at most one eligible job and runs the handler against
// it. Returns true when a job was claimed and attempted, whatever the
// handler outcome.
//
// The claim is a conditional update guarded by the row's current status and
// run_at. Only the caller whose UPDATE reports one affected row owns the
// job; a racing worker's UPDATE matches zero rows and moves on to the next
// candidate.
func (s *Store) ProcessNext(ctx context.Context, handler jobdomain.Handler) (bool, error) {
	claimed, err := s.claimNext(ctx)
	if err != nil {
		return false, err
	}
	if claimed == nil {
		return false, nil
	}

	started := s.clock.Now()
	result := handler(ctx, jobdomain.Payload{Type: claimed.Type, Data: json.RawMessage(claimed.Data)})
	metrics.Default().ObserveJobDuration(claimed.Type, s.clock.Now().Sub(started))

	if err := s.settle(ctx, claimed, result); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store) claimNext(ctx context.Context) (*jobdomain.JobRecord, error) {
	for {
		now := s.clock.Now()

		var candidate jobdomain.JobRecord
		err := s.db.WithContext(ctx).
			Where("status IN ? AND run_at <= ?", claimableStatuses, now).
			Order("run_at ASC").
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		res := s.db.WithContext(ctx).
			Model(&jobdomain.JobRecord{}).
			Where("id = ? AND status IN ? AND run_at <= ?", candidate.ID, claimableStatuses, now).
			Updates(map[string]any{
				"status":     jobdomain.StatusRunning,
				"started_at": now,
				"attempts":   gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			// Another worker won the race for this row.
			continue
		}

		var claimed jobdomain.JobRecord
		if err := s.db.WithContext(ctx).First(&claimed, candidate.ID).Error; err != nil {
			return nil, err
		}
		return &claimed, nil
	}
}

func (s *Store) settle(ctx context.Context, job *jobdomain.JobRecord, result jobdomain.Result) error {
	now := s.clock.Now()

	switch result.Disposition {
	case jobdomain.DispositionSucceeded:
		metrics.Default().IncJobRun(job.Type, metrics.JobOutcomeCompleted)
		return s.db.WithContext(ctx).
			Model(&jobdomain.JobRecord{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{
				"status":       jobdomain.StatusCompleted,
				"completed_at": now,
			}).Error

	case jobdomain.DispositionTerminal:
		s.log.Warn("job dead-lettered",
			zap.String("job_id", job.ID.String()),
			zap.String("type", job.Type),
			zap.String("reason", result.Reason),
		)
		metrics.Default().IncJobRun(job.Type, metrics.JobOutcomeDead)
		return s.markDead(ctx, job.ID, result.Reason, now)

	default:
		if job.Attempts >= job.MaxRetries {
			s.log.Warn("job retries exhausted",
				zap.String("job_id", job.ID.String()),
				zap.String("type", job.Type),
				zap.Int("attempts", job.Attempts),
			)
			metrics.Default().IncJobRun(job.Type, metrics.JobOutcomeDead)
			return s.markDead(ctx, job.ID, result.Reason, now)
		}

		metrics.Default().IncJobRun(job.Type, metrics.JobOutcomeRetried)
		// Exponential backoff: 30s * 2^(attempts-1).
		delay := backoffBase << (job.Attempts - 1)
		return s.db.WithContext(ctx).
			Model(&jobdomain.JobRecord{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{
				"status":     jobdomain.StatusFailed,
				"last_error": result.Reason,
				"failed_at":  now,
				"run_at":     now.Add(delay),
			}).Error
	}
}

func (s *Store) markDead(ctx context.Context, id snowflake.ID, reason string, now time.Time) error {
	return s.db.WithContext(ctx).
		Model(&jobdomain.JobRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     jobdomain.StatusDead,
			"last_error": reason,
			"failed_at":  now,
		}).Error
}

// Stats returns row counts per status.
func (s *Store) Stats(ctx context.Context) (jobdomain.Stats, error) {
	var rows []struct {
		Status jobdomain.Status
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&jobdomain.JobRecord{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return jobdomain.Stats{}, err
	}

	var stats jobdomain.Stats
	for _, row := range rows {
		switch row.Status {
		case jobdomain.StatusPending:
			stats.Pending = row.Count
		case jobdomain.StatusRunning:
			stats.Running = row.Count
		case jobdomain.StatusCompleted:
			stats.Completed = row.Count
		case jobdomain.StatusFailed:
			stats.Failed = row.Count
		case jobdomain.StatusDead:
			stats.Dead = row.Count
		}
	}
	return stats, nil
}

// RecentFailed returns failed and dead jobs, newest failure first.
func (s *Store) RecentFailed(ctx context.Context, limit int) ([]jobdomain.JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []jobdomain.JobRecord
	err := s.db.WithContext(ctx).
		Where("status IN ?", []jobdomain.Status{jobdomain.StatusFailed, jobdomain.StatusDead}).
		Order("failed_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// RetryDead resets every dead job to pending with a zeroed attempt counter,
// making them immediately eligible. Returns the number of jobs revived.
func (s *Store) RetryDead(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&jobdomain.JobRecord{}).
		Where("status = ?", jobdomain.StatusDead).
		Updates(map[string]any{
			"status":     jobdomain.StatusPending,
			"attempts":   0,
			"last_error": nil,
			"failed_at":  nil,
			"run_at":     s.clock.Now(),
		})
	return res.RowsAffected, res.Error
}

// PurgeCompleted deletes completed jobs older than the cutoff. Other
// statuses are never touched.
func (s *Store) PurgeCompleted(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status = ? AND completed_at < ?", jobdomain.StatusCompleted, before).
		Delete(&jobdomain.JobRecord{})
	return res.RowsAffected, res.Error
}

// RecoverStale resets running jobs whose worker died mid-handler. Any row
// still running past the timeout goes back to pending for a fresh claim.
func (s *Store) RecoverStale(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-timeout)
	res := s.db.WithContext(ctx).
		Model(&jobdomain.JobRecord{}).
		Where("status = ? AND started_at < ?", jobdomain.StatusRunning, cutoff).
		Updates(map[string]any{
			"status":     jobdomain.StatusPending,
			"started_at": nil,
		})
	return res.RowsAffected, res.Error
}

// Get looks up a single job by id.
func (s *Store) Get(ctx context.Context, id snowflake.ID) (*jobdomain.JobRecord, error) {
	var record jobdomain.JobRecord
	err := s.db.WithContext(ctx).First(&record, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, jobdomain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
