package audit

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/GGPrompts/PortfolioHub-sub010/internal/security"
)

func setupTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test DB: %v", err)
	}
	if err := db.AutoMigrate(&CommandRecord{}, &SessionEvent{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	return NewRecorder(db, 0)
}

func TestRecorder_CommandStoresSanitizedText(t *testing.T) {
	r := setupTestRecorder(t)

	r.Command("sess-1", "main", "bash", "git status\nFAKE ENTRY", security.Verdict{
		Allowed: true,
		Reason:  security.ReasonWhitelisted,
	})

	records, err := r.RecentCommands(10)
	if err != nil {
		t.Fatalf("RecentCommands: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Command != "git status FAKE ENTRY" {
		t.Errorf("stored command = %q, want sanitized text", rec.Command)
	}
	if !rec.Allowed || rec.Reason != string(security.ReasonWhitelisted) {
		t.Errorf("verdict fields = allowed=%v reason=%s", rec.Allowed, rec.Reason)
	}
	if rec.SessionID != "sess-1" || rec.Workbranch != "main" {
		t.Errorf("identity fields = %s/%s", rec.SessionID, rec.Workbranch)
	}
}

func TestRecorder_BlockedCommandRecorded(t *testing.T) {
	r := setupTestRecorder(t)

	r.Command("sess-1", "main", "bash", "rm -rf /", security.Verdict{
		Allowed:  false,
		Reason:   security.ReasonDangerousPattern,
		Guidance: "review command for destructive operations",
	})

	records, err := r.RecentCommands(10)
	if err != nil {
		t.Fatalf("RecentCommands: %v", err)
	}
	if len(records) != 1 || records[0].Allowed {
		t.Fatalf("blocked command not recorded as blocked: %+v", records)
	}
}

func TestRecorder_PruneByRetention(t *testing.T) {
	r := setupTestRecorder(t)

	// Old rows: pretend they were written 100 days ago.
	past := time.Now().AddDate(0, 0, -100)
	r.nowFn = func() time.Time { return past }
	r.Command("old", "main", "bash", "npm test", security.Verdict{Allowed: true, Reason: security.ReasonWhitelisted})
	r.Lifecycle("old", "main", "bash", "created", "")

	// Fresh rows.
	r.nowFn = time.Now
	r.Command("new", "main", "bash", "npm test", security.Verdict{Allowed: true, Reason: security.ReasonWhitelisted})

	pruned, err := r.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned = %d, want 2", pruned)
	}

	records, err := r.RecentCommands(10)
	if err != nil {
		t.Fatalf("RecentCommands: %v", err)
	}
	if len(records) != 1 || records[0].SessionID != "new" {
		t.Errorf("surviving records = %+v, want only the fresh one", records)
	}
}

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	path := t.TempDir() + "/audit.db"
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		t.Errorf("ping: %v", err)
	}
}
