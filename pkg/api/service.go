package api

import (
	"context"
	"errors"

	"cdprpa/internal/config"
	"cdprpa/internal/logger"
	"cdprpa/internal/service"
	"cdprpa/internal/session"
	"cdprpa/internal/storage"
	"cdprpa/pkg/domain"
)

// Service 服务接口
type Service interface {
	// StartSession 启动或连接浏览器，返回会话ID
	StartSession(ctx context.Context, cfg domain.SessionConfig) (domain.SessionID, error)

	// Session 获取会话，用于执行等待与页面操作
	Session(id domain.SessionID) (*session.Session, error)

	// StopSession 关闭浏览器并结束会话
	StopSession(ctx context.Context, id domain.SessionID) error

	// ReleaseSession 断开会话，浏览器保持运行
	ReleaseSession(id domain.SessionID) error

	// ListSessions 列出活动会话
	ListSessions() []domain.SessionInfo

	// Shutdown 结束全部会话并关闭日志库
	Shutdown(ctx context.Context) error
}

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = service.ErrSessionNotFound

type journaled struct {
	*service.Service
	store *storage.Store
}

func (j *journaled) Shutdown(ctx context.Context) error {
	return errors.Join(j.Service.Shutdown(ctx), j.store.Close())
}

// NewService 创建并返回服务接口实现，配置了 sqlite.dsn 时启用日志库
func NewService(cfg *config.Config, l logger.Logger) (Service, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if l == nil {
		l = logger.NewNop()
	}
	if cfg.Sqlite.Dsn == "" {
		return service.New(service.Config{App: cfg, Logger: l}), nil
	}
	store, err := storage.Open(storage.Config{Dsn: cfg.Sqlite.Dsn, Prefix: cfg.Sqlite.Prefix, Logger: l})
	if err != nil {
		return nil, err
	}
	svc := service.New(service.Config{App: cfg, Logger: l, Journal: store})
	return &journaled{Service: svc, store: store}, nil
}
