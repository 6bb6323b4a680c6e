package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mediarelay/genqueue/pkg/core"
	"github.com/mediarelay/genqueue/pkg/security"
)

// rotationCursorID is the primary key of the single cursor row.
const rotationCursorID = 1

// GormStore implements Store using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the necessary tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{}, &core.Token{}, &core.RotationCursor{})
}

// CreateJobs persists a batch of jobs. Missing ids and statuses are filled
// with defaults.
func (s *GormStore) CreateJobs(ctx context.Context, jobs []*core.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	for _, job := range jobs {
		if job.ID == "" {
			job.ID = uuid.New().String()
		}
		if job.Status == "" {
			job.Status = core.StatusPending
		}
	}
	return s.db.WithContext(ctx).Create(jobs).Error
}

// GetJob retrieves a job by ID. Returns nil when not found.
func (s *GormStore) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobStatus advances a job's status under the terminal-state and
// durable-URL guards. Error messages are sanitized before storage.
func (s *GormStore) UpdateJobStatus(ctx context.Context, jobID, tenantID string, status core.JobStatus, url, errMsg string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job core.Job
		result := tx.Where("id = ?", jobID).First(&job)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return core.ErrJobNotFound
			}
			return result.Error
		}
		if job.TenantID != tenantID {
			return core.ErrJobNotOwned
		}

		// Stale observation against a terminal record: drop it. Terminal
		// outcomes are written exactly once.
		if job.Status.Terminal() {
			return nil
		}

		now := time.Now()
		job.Status = status
		if errMsg != "" {
			job.LastError = security.SanitizeErrorMessage(errMsg)
		}
		if url != "" && !job.HasDurableArtifact() {
			job.ArtifactURL = url
		}
		switch status {
		case core.StatusProcessing:
			if job.StartedAt == nil {
				job.StartedAt = &now
			}
		case core.StatusCompleted, core.StatusFailed:
			job.CompletedAt = &now
		}

		return tx.Save(&job).Error
	})
}

// UpdateJobFields applies a partial update to a job record.
func (s *GormStore) UpdateJobFields(ctx context.Context, jobID string, fields map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", jobID).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotFound
	}
	return nil
}

// RequeueJob moves a terminally failed job back to pending and returns the
// refreshed record.
func (s *GormStore) RequeueJob(ctx context.Context, jobID, tenantID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", jobID).First(&job)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return core.ErrJobNotFound
			}
			return result.Error
		}
		if job.TenantID != tenantID {
			return core.ErrJobNotOwned
		}
		if job.Status != core.StatusFailed {
			return core.ErrJobNotTerminal
		}

		job.Status = core.StatusPending
		job.LastError = ""
		job.Operation = ""
		job.TokenID = ""
		job.InstantRetries = 0
		job.PollRetries = 0
		job.StartedAt = nil
		job.CompletedAt = nil
		return tx.Save(&job).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// JobsByStatus retrieves jobs by status, oldest first.
func (s *GormStore) JobsByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	var jobs []*core.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// StaleProcessingJobs returns non-terminal in-flight jobs whose last update
// is older than the cutoff. The reconciliation sweep uses this to fail
// records orphaned by a crash.
func (s *GormStore) StaleProcessingJobs(ctx context.Context, olderThan time.Duration, limit int) ([]*core.Job, error) {
	cutoff := time.Now().Add(-olderThan)
	var jobs []*core.Job
	err := s.db.WithContext(ctx).
		Where("status IN ?", []core.JobStatus{core.StatusProcessing, core.StatusRetrying}).
		Where("updated_at < ?", cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// CreateToken persists a new token.
func (s *GormStore) CreateToken(ctx context.Context, token *core.Token) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(token).Error
}

// GetToken retrieves a token by ID. Returns nil when not found.
func (s *GormStore) GetToken(ctx context.Context, tokenID string) (*core.Token, error) {
	var token core.Token
	err := s.db.WithContext(ctx).First(&token, "id = ?", tokenID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// ActiveTokens returns all active tokens in stable pool order. Round-robin
// offsets index into this ordering.
func (s *GormStore) ActiveTokens(ctx context.Context) ([]*core.Token, error) {
	var tokens []*core.Token
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC, id ASC").
		Find(&tokens).Error
	return tokens, err
}

// RecordTokenUse bumps the usage counter and last-used timestamp.
func (s *GormStore) RecordTokenUse(ctx context.Context, tokenID string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&core.Token{}).
		Where("id = ?", tokenID).
		Updates(map[string]any{
			"last_used_at":  at,
			"request_count": gorm.Expr("request_count + 1"),
		}).Error
}

// RecordTokenError bumps the cumulative error counter.
func (s *GormStore) RecordTokenError(ctx context.Context, tokenID string) error {
	return s.db.WithContext(ctx).
		Model(&core.Token{}).
		Where("id = ?", tokenID).
		Update("error_count", gorm.Expr("error_count + 1")).Error
}

// DisableToken removes a token from rotation.
func (s *GormStore) DisableToken(ctx context.Context, tokenID, reason string) error {
	return s.db.WithContext(ctx).
		Model(&core.Token{}).
		Where("id = ?", tokenID).
		Updates(map[string]any{
			"active":          false,
			"disabled_reason": security.SanitizeErrorMessage(reason),
		}).Error
}

// AdvanceCursor atomically advances the rotation cursor by count (modulo
// poolSize) and returns the pre-advance offset. The advance is one guarded
// UPDATE, never a read-then-write, so concurrent callers on any isolation
// level receive non-overlapping slices. Each caller derives its pre-advance
// offset from the position its own statement wrote.
func (s *GormStore) AdvanceCursor(ctx context.Context, count, poolSize int) (int, error) {
	if poolSize <= 0 {
		return 0, core.ErrInvalidPoolSize
	}
	if count <= 0 {
		return 0, core.ErrInvalidSlice
	}

	db := s.db.WithContext(ctx)
	if err := db.Exec(
		"INSERT INTO rotation_cursors (id, position, updated_at) VALUES (?, 0, ?) ON CONFLICT (id) DO NOTHING",
		rotationCursorID, time.Now(),
	).Error; err != nil {
		return 0, err
	}

	// Position is reduced modulo the current pool size inside the update so
	// the cursor stays valid when the active set shrinks.
	var newPos int64
	err := db.Raw(
		"UPDATE rotation_cursors SET position = ((position % ?) + ?) % ?, updated_at = ? WHERE id = ? RETURNING position",
		poolSize, count, poolSize, time.Now(), rotationCursorID,
	).Scan(&newPos).Error
	if err != nil {
		return 0, err
	}

	start := int((newPos - int64(count)) % int64(poolSize))
	if start < 0 {
		start += poolSize
	}
	return start, nil
}
