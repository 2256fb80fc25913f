// Package audit persists command verdicts and session lifecycle events
// to a local sqlite database. Verdicts themselves are request-scoped
// values; the audit trail is the only place they outlive the request.
package audit

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/GGPrompts/PortfolioHub-sub010/internal/logutil"
	"github.com/GGPrompts/PortfolioHub-sub010/internal/security"
)

// DefaultRetentionDays is how long audit rows are kept by default.
const DefaultRetentionDays = 90

// CommandRecord is one validated (or rejected) command.
type CommandRecord struct {
	ID         uint   `gorm:"primarykey"`
	SessionID  string `gorm:"index"`
	Workbranch string `gorm:"index"`
	Shell      string
	Command    string
	Allowed    bool
	Reason     string
	CreatedAt  time.Time `gorm:"index"`
}

// SessionEvent is one lifecycle transition of a session.
type SessionEvent struct {
	ID         uint   `gorm:"primarykey"`
	SessionID  string `gorm:"index"`
	Workbranch string
	Shell      string
	Event      string
	Detail     string
	CreatedAt  time.Time `gorm:"index"`
}

// Open opens (creating if needed) the audit database at path.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create audit db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := db.AutoMigrate(&CommandRecord{}, &SessionEvent{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return db, nil
}

// Recorder writes audit rows and emits matching log lines. It satisfies
// the session manager's AuditLog interface.
type Recorder struct {
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time // injectable clock for testing
}

// NewRecorder creates a Recorder on db. retentionDays <= 0 selects
// DefaultRetentionDays.
func NewRecorder(db *gorm.DB, retentionDays int) *Recorder {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Recorder{
		db:            db,
		retentionDays: retentionDays,
		nowFn:         time.Now,
	}
}

// Command records one validation verdict. The command text is sanitized
// before it is stored or logged.
func (r *Recorder) Command(sessionID, workbranch, shell, command string, verdict security.Verdict) {
	clean := logutil.Sanitize(command)
	rec := CommandRecord{
		SessionID:  sessionID,
		Workbranch: workbranch,
		Shell:      shell,
		Command:    clean,
		Allowed:    verdict.Allowed,
		Reason:     string(verdict.Reason),
		CreatedAt:  r.nowFn(),
	}
	if err := r.db.Create(&rec).Error; err != nil {
		log.Printf("[audit] failed to write command record: %v", err)
		return
	}
	if !verdict.Allowed {
		log.Printf("[audit] blocked session=%s workbranch=%s reason=%s command=%s",
			sessionID, workbranch, verdict.Reason, logutil.Truncate(clean, 120))
	}
}

// Lifecycle records one session lifecycle event.
func (r *Recorder) Lifecycle(sessionID, workbranch, shell, event, detail string) {
	rec := SessionEvent{
		SessionID:  sessionID,
		Workbranch: workbranch,
		Shell:      shell,
		Event:      event,
		Detail:     logutil.Sanitize(detail),
		CreatedAt:  r.nowFn(),
	}
	if err := r.db.Create(&rec).Error; err != nil {
		log.Printf("[audit] failed to write session event: %v", err)
	}
}

// Prune deletes rows older than the retention window and returns how
// many were removed. Scheduled by the nightly cron job.
func (r *Recorder) Prune() (int64, error) {
	cutoff := r.nowFn().AddDate(0, 0, -r.retentionDays)

	var total int64
	res := r.db.Where("created_at < ?", cutoff).Delete(&CommandRecord{})
	if res.Error != nil {
		return total, fmt.Errorf("prune command records: %w", res.Error)
	}
	total += res.RowsAffected

	res = r.db.Where("created_at < ?", cutoff).Delete(&SessionEvent{})
	if res.Error != nil {
		return total, fmt.Errorf("prune session events: %w", res.Error)
	}
	total += res.RowsAffected

	if total > 0 {
		log.Printf("[audit] pruned %d rows older than %d days", total, r.retentionDays)
	}
	return total, nil
}

// RecentCommands returns the newest limit command records, newest first.
func (r *Recorder) RecentCommands(limit int) ([]CommandRecord, error) {
	var records []CommandRecord
	if err := r.db.Order("created_at DESC, id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query command records: %w", err)
	}
	return records, nil
}
