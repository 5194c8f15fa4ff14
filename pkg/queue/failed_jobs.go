package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/kashvi-shop/pkg/logger"
)

// FailedJobRecord is a job that exhausted its retries.
// The table is created by the failed_jobs migration.
type FailedJobRecord struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	JobType  string    `gorm:"size:255;not null;index" json:"job_type"`
	Payload  string    `gorm:"type:text;not null" json:"payload"`
	Error    string    `gorm:"type:text" json:"error"`
	Attempts int       `gorm:"not null;default:0" json:"attempts"`
	FailedAt time.Time `gorm:"autoCreateTime" json:"failed_at"`
}

func (FailedJobRecord) TableName() string { return "failed_jobs" }

var failedJobDB *gorm.DB

// UseDB persists exhausted jobs to db in addition to the in-memory list.
func UseDB(db *gorm.DB) {
	defaultManager.mu.Lock()
	defer defaultManager.mu.Unlock()
	failedJobDB = db
}

// Retry re-dispatches a stored failed job and removes its record.
func Retry(ctx context.Context, id uint) error {
	defaultManager.mu.RLock()
	db := failedJobDB
	defaultManager.mu.RUnlock()
	if db == nil {
		return fmt.Errorf("queue: failed job store not configured")
	}

	var rec FailedJobRecord
	if err := db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return fmt.Errorf("queue: load failed job %d: %w", id, err)
	}

	env, err := json.Marshal(envelope{Type: rec.JobType, Payload: json.RawMessage(rec.Payload)})
	if err != nil {
		return err
	}
	if err := defaultManager.currentDriver().Push(ctx, env); err != nil {
		return err
	}
	return db.WithContext(ctx).Delete(&FailedJobRecord{}, rec.ID).Error
}

func (m *Manager) persistFailed(ctx context.Context, job Job, name string, lastErr error, attempts int) {
	m.mu.Lock()
	m.failed = append(m.failed, FailedJob{
		Type: name, Job: job, Err: lastErr, FailedAt: time.Now(), Attempts: attempts,
	})
	db := failedJobDB
	m.mu.Unlock()

	if db == nil {
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"error": "could not marshal: %v"}`, err))
	}

	record := FailedJobRecord{
		JobType:  name,
		Payload:  string(payload),
		Error:    lastErr.Error(),
		Attempts: attempts,
		FailedAt: time.Now(),
	}

	if err := db.WithContext(context.WithoutCancel(ctx)).Create(&record).Error; err != nil {
		logger.Error("queue: persist failed job", "type", name, "error", err)
	}
}
