package audit

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/taskhub-dev/taskhub/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestLogAction(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "audit.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	userID := uuid.New()
	if err := LogAction(db, userID, ActionCreateTask, Resource("task", 12), map[string]string{"title": "Write report"}); err != nil {
		t.Fatalf("LogAction: %v", err)
	}

	var entry models.AuditLog
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if entry.UserID != userID || entry.Action != ActionCreateTask || entry.Resource != "task:12" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.DetailsJSON != `{"title":"Write report"}` {
		t.Errorf("DetailsJSON = %s", entry.DetailsJSON)
	}

	// Unserializable details fall back to an empty object
	Record(db, userID, ActionDeleteTask, Resource("task", 13), make(chan int))
	var fallback models.AuditLog
	db.Where("action = ?", ActionDeleteTask).First(&fallback)
	if fallback.DetailsJSON != "{}" {
		t.Errorf("fallback DetailsJSON = %s", fallback.DetailsJSON)
	}
}
