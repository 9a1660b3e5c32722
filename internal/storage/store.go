// Package storage 记录会话中的等待结果与下载完成事件。
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"cdprpa/internal/logger"
)

// DownloadRecord 一次已完成的下载
type DownloadRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	SessionID string `gorm:"index;size:64"`
	Path      string
	Size      int64
	Readings  int
	StartedAt time.Time
	ElapsedMs int64
	CreatedAt time.Time `gorm:"index"`
}

// WaitRecord 一次显式等待的结果
type WaitRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	SessionID string `gorm:"index;size:64"`
	Kind      string `gorm:"index;size:64"`
	Locator   string
	Value     string
	Attribute string
	Satisfied bool
	TimedOut  bool
	Polls     int
	ElapsedMs int64
	TimeoutMs int64
	Error     string
	CreatedAt time.Time `gorm:"index"`
}

func (r *DownloadRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *WaitRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Config 日志库配置
type Config struct {
	Dsn    string
	Prefix string
	Logger logger.Logger
}

// Store 基于 SQLite 的会话日志库
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open 打开数据库并迁移表结构
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(cfg.Dsn), &gorm.Config{
		Logger:         NewGormLogger(cfg.Logger),
		NamingStrategy: schema.NamingStrategy{TablePrefix: cfg.Prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", cfg.Dsn, err)
	}
	if err := db.AutoMigrate(&DownloadRecord{}, &WaitRecord{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	cfg.Logger.Info("日志库已打开", "dsn", cfg.Dsn, "prefix", cfg.Prefix)
	return &Store{db: db, log: cfg.Logger}, nil
}

// SaveDownload 保存下载记录
func (s *Store) SaveDownload(ctx context.Context, r *DownloadRecord) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("save download: %w", err)
	}
	return nil
}

// ListDownloads 按时间倒序列出下载记录，sessionID 为空时列出全部
func (s *Store) ListDownloads(ctx context.Context, sessionID string, limit int) ([]DownloadRecord, error) {
	var out []DownloadRecord
	if err := s.query(ctx, sessionID, limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	return out, nil
}

// SaveWait 保存等待记录
func (s *Store) SaveWait(ctx context.Context, r *WaitRecord) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("save wait: %w", err)
	}
	return nil
}

// ListWaits 按时间倒序列出等待记录
func (s *Store) ListWaits(ctx context.Context, sessionID string, limit int) ([]WaitRecord, error) {
	var out []WaitRecord
	if err := s.query(ctx, sessionID, limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list waits: %w", err)
	}
	return out, nil
}

func (s *Store) query(ctx context.Context, sessionID string, limit int) *gorm.DB {
	q := s.db.WithContext(ctx).Order("created_at desc")
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
