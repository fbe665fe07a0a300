package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// HistorySnapshot 历史记录在 Postgres 中的镜像，便于做 SQL 分析；JSON 文件仍是唯一的事实来源
type HistorySnapshot struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	RunID      string         `gorm:"size:36;index" json:"runId"`
	Date       string         `gorm:"size:10;index" json:"date"`
	Categories datatypes.JSON `gorm:"type:jsonb" json:"categories"`

	CreatedAt time.Time `json:"createdAt"`
}

// Mirror 把每次追加的历史记录同步写入 Postgres
type Mirror struct {
	DB *gorm.DB
}

func NewMirror(dsn string) (*Mirror, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&HistorySnapshot{}); err != nil {
		return nil, err
	}

	return &Mirror{DB: db}, nil
}

func newHistorySnapshot(runID string, entry HistoryEntry) (*HistorySnapshot, error) {
	cats := entry.Categories
	if cats == nil {
		cats = []HistoryCategory{}
	}
	bs, err := json.Marshal(cats)
	if err != nil {
		return nil, err
	}
	return &HistorySnapshot{
		ID:         uuid.NewString(),
		RunID:      runID,
		Date:       entry.Date,
		Categories: datatypes.JSON(bs),
	}, nil
}

// SaveEntry 写入一条历史镜像
func (m *Mirror) SaveEntry(ctx context.Context, runID string, entry HistoryEntry) error {
	rec, err := newHistorySnapshot(runID, entry)
	if err != nil {
		return err
	}
	return m.DB.WithContext(ctx).Create(rec).Error
}

// ListSnapshots 按日期倒序返回最近的镜像记录
func (m *Mirror) ListSnapshots(ctx context.Context, limit int) ([]HistorySnapshot, error) {
	if limit <= 0 || limit > 365 {
		limit = 31
	}
	var list []HistorySnapshot
	err := m.DB.WithContext(ctx).
		Order("date DESC").Order("created_at DESC").
		Limit(limit).Find(&list).Error
	return list, err
}
