package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"cdprpa/internal/cdp"
	"cdprpa/internal/config"
	"cdprpa/internal/launcher"
	"cdprpa/internal/logger"
	"cdprpa/internal/poll"
	"cdprpa/internal/session"
	"cdprpa/pkg/domain"
)

var ErrSessionNotFound = errors.New("session not found")

// Connection 建立好的浏览器连接，Stop 非空时在会话结束时调用
type Connection struct {
	Browser     domain.Automation
	DevToolsURL string
	Launched    bool
	Stop        func() error
}

// Connector 按会话配置启动或连接浏览器
type Connector func(ctx context.Context, cfg domain.SessionConfig) (*Connection, error)

// Config 服务配置
type Config struct {
	App     *config.Config
	Fs      afero.Fs
	Clock   poll.Clock
	Logger  logger.Logger
	Journal session.Journal
	// Connect 为空时使用 DevTools 协议连接（必要时启动浏览器）
	Connect Connector
}

// Service 自动化会话服务
type Service struct {
	app      *config.Config
	fs       afero.Fs
	clock    poll.Clock
	journal  session.Journal
	connect  Connector
	sessions *session.Manager
	log      logger.Logger
}

// New 创建服务
func New(cfg Config) *Service {
	if cfg.App == nil {
		cfg.App = config.NewConfig()
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	s := &Service{
		app:      cfg.App,
		fs:       cfg.Fs,
		clock:    cfg.Clock,
		journal:  cfg.Journal,
		connect:  cfg.Connect,
		sessions: session.NewManager(cfg.Logger),
		log:      cfg.Logger,
	}
	if s.connect == nil {
		s.connect = s.dial
	}
	return s
}

// withDefaults 用配置文件补全会话配置
func (s *Service) withDefaults(cfg domain.SessionConfig) domain.SessionConfig {
	if cfg.DevToolsURL == "" {
		cfg.DevToolsURL = s.app.Browser.DevToolsURL
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = s.app.Browser.DownloadDir
	}
	return cfg
}

// dial 启动浏览器（Launch 为 true 时）并连接第一个页面
func (s *Service) dial(ctx context.Context, cfg domain.SessionConfig) (*Connection, error) {
	conn := &Connection{DevToolsURL: cfg.DevToolsURL}
	if cfg.Launch {
		opts := launcher.FromConfig(s.app.Browser, s.fs, s.log)
		opts.DownloadDir = cfg.DownloadDir
		b, err := launcher.Launch(ctx, opts)
		if err != nil {
			return nil, err
		}
		conn.DevToolsURL = b.DevToolsURL
		conn.Launched = true
		conn.Stop = b.Stop
	}
	m := cdp.New(cdp.Config{
		DevToolsURL: conn.DevToolsURL,
		DownloadDir: cfg.DownloadDir,
		Fs:          s.fs,
		Logger:      s.log,
	})
	if err := m.Attach(ctx); err != nil {
		m.Detach()
		if conn.Stop != nil {
			_ = conn.Stop()
		}
		return nil, fmt.Errorf("attach %s: %w", conn.DevToolsURL, err)
	}
	conn.Browser = m
	return conn, nil
}

// StartSession 启动或连接浏览器并注册新会话
func (s *Service) StartSession(ctx context.Context, cfg domain.SessionConfig) (domain.SessionID, error) {
	cfg = s.withDefaults(cfg)
	conn, err := s.connect(ctx, cfg)
	if err != nil {
		s.log.Err(err, "启动会话失败", "devtools", cfg.DevToolsURL, "launch", cfg.Launch)
		return "", err
	}
	id := domain.SessionID(uuid.New().String())
	sess := session.New(session.Options{
		ID:          id,
		Browser:     conn.Browser,
		DevToolsURL: conn.DevToolsURL,
		Launched:    conn.Launched,
		Fs:          s.fs,
		Clock:       s.clock,
		Wait:        s.app.Wait,
		Download:    s.app.Download,
		Journal:     s.journal,
		Stop:        conn.Stop,
		Logger:      s.log,
	})
	s.sessions.Add(sess)
	return id, nil
}

// Session 获取会话
func (s *Service) Session(id domain.SessionID) (*session.Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// StopSession 关闭浏览器并注销会话
func (s *Service) StopSession(ctx context.Context, id domain.SessionID) error {
	sess, ok := s.sessions.Delete(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.Quit(ctx)
}

// ReleaseSession 断开连接并注销会话，浏览器保持运行
func (s *Service) ReleaseSession(id domain.SessionID) error {
	sess, ok := s.sessions.Delete(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.Release()
	return nil
}

// ListSessions 列出活动会话
func (s *Service) ListSessions() []domain.SessionInfo {
	list := s.sessions.List()
	out := make([]domain.SessionInfo, 0, len(list))
	for _, sess := range list {
		out = append(out, sess.Info())
	}
	return out
}

// Shutdown 结束全部会话，返回遇到的错误
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	for _, sess := range s.sessions.List() {
		if err := s.StopSession(ctx, sess.ID()); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", sess.ID(), err))
		}
	}
	s.log.Info("服务已关闭")
	return errors.Join(errs...)
}
