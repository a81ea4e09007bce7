package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// sessionRow is the gorm model behind SQLiteSessionStore.
type sessionRow struct {
	ID           string    `gorm:"primaryKey;size:64"`
	OlderSummary string    `gorm:"type:text"`
	Messages     string    `gorm:"type:text"`
	UpdatedAt    time.Time `gorm:"index;autoUpdateTime:false"`
}

func (sessionRow) TableName() string { return "ragchat_sessions" }

// SQLiteSessionStore is a durable single-node store backed by gorm + sqlite.
type SQLiteSessionStore struct {
	db *gorm.DB
}

// NewSQLiteSessionStore opens (and migrates) the database at dsn, e.g. a file
// path or "file::memory:?cache=shared".
func NewSQLiteSessionStore(dsn string) (*SQLiteSessionStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite %s: %w", dsn, err)
	}
	return &SQLiteSessionStore{db: db}, nil
}

func (s *SQLiteSessionStore) Load(ctx context.Context, sessionID string) (schema.ChatHistoryRecord, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return schema.ChatHistoryRecord{}, nil
	}
	if err != nil {
		return schema.ChatHistoryRecord{}, err
	}
	return row.record()
}

func (s *SQLiteSessionStore) Save(ctx context.Context, sessionID string, rec schema.ChatHistoryRecord) error {
	msgs, err := json.Marshal(rec.RecentMessages)
	if err != nil {
		return err
	}
	row := sessionRow{ID: sessionID, OlderSummary: rec.OlderSummary, Messages: string(msgs), UpdatedAt: rec.UpdatedAt}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *SQLiteSessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Delete(&sessionRow{}, "id = ?", sessionID).Error
}

func (s *SQLiteSessionStore) List(ctx context.Context, offset, limit int) ([]SessionInfo, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return []SessionInfo{}, nil
	}
	var rows []sessionRow
	err := s.db.WithContext(ctx).Order("updated_at desc").Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			continue
		}
		out = append(out, infoOf(r.ID, rec))
	}
	return out, nil
}

func (s *SQLiteSessionStore) Clean(ctx context.Context, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	var pruned []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&sessionRow{}).Order("updated_at desc").Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) <= keep {
			return nil
		}
		pruned = ids[keep:]
		return tx.Where("id IN ?", pruned).Delete(&sessionRow{}).Error
	})
	if err != nil {
		return nil, err
	}
	return pruned, nil
}

// Update runs load-modify-save in one transaction; sqlite's write lock
// serialises it against other connections to the same file.
func (s *SQLiteSessionStore) Update(ctx context.Context, sessionID string, fn UpdateFunc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec schema.ChatHistoryRecord
		var row sessionRow
		err := tx.First(&row, "id = ?", sessionID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			if rec, err = row.record(); err != nil {
				return err
			}
		}
		next, err := fn(rec)
		if err != nil {
			return err
		}
		msgs, err := json.Marshal(next.RecentMessages)
		if err != nil {
			return err
		}
		return tx.Save(&sessionRow{ID: sessionID, OlderSummary: next.OlderSummary, Messages: string(msgs), UpdatedAt: next.UpdatedAt}).Error
	})
}

func (s *SQLiteSessionStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r sessionRow) record() (schema.ChatHistoryRecord, error) {
	rec := schema.ChatHistoryRecord{OlderSummary: r.OlderSummary, UpdatedAt: r.UpdatedAt}
	if r.Messages != "" {
		if err := json.Unmarshal([]byte(r.Messages), &rec.RecentMessages); err != nil {
			return schema.ChatHistoryRecord{}, fmt.Errorf("decode history %s: %w", r.ID, err)
		}
	}
	return rec, nil
}
