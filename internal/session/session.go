package session

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	"cdprpa/internal/config"
	"cdprpa/internal/ctxkeys"
	"cdprpa/internal/download"
	"cdprpa/internal/handler"
	"cdprpa/internal/logger"
	"cdprpa/internal/poll"
	"cdprpa/internal/storage"
	"cdprpa/internal/wait"
	"cdprpa/pkg/domain"
)

// Journal 会话事件的持久化（可选）
type Journal interface {
	SaveWait(ctx context.Context, r *storage.WaitRecord) error
	SaveDownload(ctx context.Context, r *storage.DownloadRecord) error
}

// Options 会话构造参数
type Options struct {
	ID          domain.SessionID
	Browser     domain.Automation
	DevToolsURL string
	Launched    bool
	Fs          afero.Fs
	Clock       poll.Clock
	Wait        config.WaitConfig
	Download    config.DownloadConfig
	Journal     Journal
	// Stop 结束会话时调用，用于停止本会话启动的浏览器
	Stop   func() error
	Logger logger.Logger
}

// Session 一个自动化会话及其上的等待、交互与下载监视
type Session struct {
	id          domain.SessionID
	browser     domain.Automation
	devtoolsURL string
	launched    bool
	createdAt   time.Time

	clock   poll.Clock
	waits   *wait.Dispatcher
	handler *handler.Handler
	watcher *download.Watcher
	journal Journal
	stop    func() error
	log     logger.Logger
}

// New 创建会话
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = poll.System()
	}
	log := opts.Logger.With("sessionID", string(opts.ID))
	s := &Session{
		id:          opts.ID,
		browser:     opts.Browser,
		devtoolsURL: opts.DevToolsURL,
		launched:    opts.Launched,
		createdAt:   opts.Clock.Now(),
		clock:       opts.Clock,
		journal:     opts.Journal,
		stop:        opts.Stop,
		log:         log,
	}
	s.waits = wait.New(wait.Config{
		Browser:  opts.Browser,
		Clock:    opts.Clock,
		Interval: opts.Wait.PollInterval,
		Timeout:  opts.Wait.Timeout,
		Observer: s.recordWait,
		Logger:   log,
	})
	s.handler = handler.New(handler.Config{Waiter: s.waits, Browser: opts.Browser, Logger: log})
	s.watcher = download.New(download.Config{
		Fs:           opts.Fs,
		Clock:        opts.Clock,
		Interval:     opts.Download.Interval,
		Threshold:    opts.Download.Threshold,
		MissingRetry: opts.Download.MissingRetry,
		Logger:       log,
		Recorder:     s,
	})
	return s
}

func (s *Session) ID() domain.SessionID        { return s.id }
func (s *Session) Browser() domain.Automation { return s.browser }

// Info 会话概要
func (s *Session) Info() domain.SessionInfo {
	return domain.SessionInfo{ID: s.id, DevToolsURL: s.devtoolsURL, Launched: s.launched, CreatedAt: s.createdAt}
}

// recordWait 记录等待结果，记录失败只写日志
func (s *Session) recordWait(ctx context.Context, req wait.Request, out *wait.Outcome, err error) {
	if s.journal == nil {
		return
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.waits.Timeout()
	}
	r := &storage.WaitRecord{
		SessionID: string(s.id),
		Kind:      string(req.Kind),
		Locator:   string(req.Locator),
		Value:     req.Value,
		Attribute: req.Attribute,
		TimeoutMs: timeout.Milliseconds(),
	}
	if out != nil {
		r.Satisfied = out.Satisfied
		r.Polls = out.Polls
		r.ElapsedMs = out.Elapsed.Milliseconds()
	}
	var ct *wait.ConditionTimeout
	if errors.As(err, &ct) {
		r.TimedOut = true
		r.ElapsedMs = ct.Elapsed.Milliseconds()
	}
	if err != nil {
		r.Error = err.Error()
	}
	// 调用方取消后仍然记录
	jctx := ctxkeys.WithTraceID(context.WithoutCancel(ctx), string(s.id))
	if jerr := s.journal.SaveWait(jctx, r); jerr != nil {
		s.log.Err(jerr, "记录等待结果失败", "kind", req.Kind)
	}
}

// RecordDownload 记录下载完成事件
func (s *Session) RecordDownload(ctx context.Context, res *download.Result) error {
	if s.journal == nil {
		return nil
	}
	return s.journal.SaveDownload(ctxkeys.WithTraceID(ctx, string(s.id)), &storage.DownloadRecord{
		SessionID: string(s.id),
		Path:      res.Path,
		Size:      res.Size,
		Readings:  res.Readings,
		StartedAt: res.StartedAt,
		ElapsedMs: res.Elapsed.Milliseconds(),
	})
}

// Get 打开页面
func (s *Session) Get(ctx context.Context, url string) error {
	return s.browser.Navigate(ctx, url)
}

// Find 等待元素可见并返回
func (s *Session) Find(ctx context.Context, loc domain.Locator, timeout time.Duration) (domain.Element, error) {
	return s.WaitVisible(ctx, loc, timeout)
}

// FindAll 等待全部匹配元素可见并返回
func (s *Session) FindAll(ctx context.Context, loc domain.Locator, timeout time.Duration) ([]domain.Element, error) {
	return s.WaitAllVisible(ctx, loc, timeout)
}

func (s *Session) Click(ctx context.Context, loc domain.Locator, timeout time.Duration) error {
	return s.handler.Click(ctx, loc, timeout)
}

func (s *Session) Send(ctx context.Context, loc domain.Locator, text string, timeout time.Duration) error {
	return s.handler.Send(ctx, loc, text, timeout)
}

func (s *Session) SelectByValue(ctx context.Context, loc domain.Locator, value string, timeout time.Duration) error {
	return s.handler.SelectByValue(ctx, loc, value, timeout)
}

func (s *Session) SelectByVisibleText(ctx context.Context, loc domain.Locator, text string, timeout time.Duration) error {
	return s.handler.SelectByVisibleText(ctx, loc, text, timeout)
}

func (s *Session) IsSelected(ctx context.Context, loc domain.Locator, timeout time.Duration) (bool, error) {
	return s.handler.IsSelected(ctx, loc, timeout)
}

func (s *Session) IsNotSelected(ctx context.Context, loc domain.Locator, timeout time.Duration) (bool, error) {
	return s.handler.IsNotSelected(ctx, loc, timeout)
}

func (s *Session) IsDisplayed(ctx context.Context, loc domain.Locator, timeout time.Duration) (bool, error) {
	return s.handler.IsDisplayed(ctx, loc, timeout)
}

func (s *Session) SelectJS(ctx context.Context, optionValue string) error {
	return s.handler.SelectJS(ctx, optionValue)
}

func (s *Session) SetValueJS(ctx context.Context, css, value string) error {
	return s.handler.SetValueJS(ctx, css, value)
}

func (s *Session) ClickJS(ctx context.Context, css string) error {
	return s.handler.ClickJS(ctx, css)
}

func (s *Session) RunScript(ctx context.Context, script string) (gjson.Result, error) {
	return s.handler.RunScript(ctx, script)
}

func (s *Session) ScrollStart(ctx context.Context) error { return s.handler.ScrollStart(ctx) }
func (s *Session) ScrollEnd(ctx context.Context) error   { return s.handler.ScrollEnd(ctx) }

// ExitIframe 回到顶层文档
func (s *Session) ExitIframe(ctx context.Context) error {
	return s.browser.SwitchToDefaultContent(ctx)
}

// SwitchWindow 切换到第 n 个窗口
func (s *Session) SwitchWindow(ctx context.Context, n int) error {
	return s.browser.SwitchToWindow(ctx, n)
}

// HandleAlert 接受或关闭弹窗
func (s *Session) HandleAlert(ctx context.Context, accept bool) error {
	return s.browser.HandleAlert(ctx, accept)
}

// Close 关闭当前窗口
func (s *Session) Close(ctx context.Context) error {
	return s.browser.Close(ctx)
}

// Screenshot 保存当前窗口截图
func (s *Session) Screenshot(ctx context.Context, file string) error {
	return s.browser.SaveScreenshot(ctx, file)
}

// Sleep 暂停 d，ctx 取消时提前返回
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	return s.clock.Sleep(ctx, d)
}

// Quit 关闭浏览器并停止本会话启动的进程
func (s *Session) Quit(ctx context.Context) error {
	err := s.browser.Quit(ctx)
	if s.stop != nil {
		if serr := s.stop(); serr != nil && err == nil {
			err = serr
		}
	}
	s.log.Info("会话结束", "launched", s.launched)
	return err
}

// Release 断开连接但保留浏览器运行
func (s *Session) Release() {
	if d, ok := s.browser.(interface{ Detach() }); ok {
		d.Detach()
	}
	s.log.Info("会话已断开")
}

// Wait 按请求执行任意条件的等待
func (s *Session) Wait(ctx context.Context, req wait.Request) (*wait.Outcome, error) {
	return s.waits.Await(ctx, req)
}

func (s *Session) WaitAlert(ctx context.Context, timeout time.Duration) error {
	return s.waits.AlertPresent(ctx, timeout)
}

func (s *Session) WaitClickable(ctx context.Context, loc domain.Locator, timeout time.Duration) (domain.Element, error) {
	return s.waits.Clickable(ctx, loc, timeout)
}

// WaitFrame 等待 frame 可用并切换进去
func (s *Session) WaitFrame(ctx context.Context, loc domain.Locator, timeout time.Duration) error {
	return s.waits.Frame(ctx, loc, timeout)
}

func (s *Session) WaitInvisible(ctx context.Context, loc domain.Locator, timeout time.Duration) error {
	return s.waits.Invisible(ctx, loc, timeout)
}

func (s *Session) WaitSelected(ctx context.Context, loc domain.Locator, timeout time.Duration) (bool, error) {
	return s.waits.Selected(ctx, loc, timeout)
}

func (s *Session) WaitAttributeContains(ctx context.Context, loc domain.Locator, attribute, text string, timeout time.Duration) error {
	return s.waits.AttributeContains(ctx, loc, attribute, text, timeout)
}

func (s *Session) WaitURLContains(ctx context.Context, fragment string, timeout time.Duration) error {
	return s.waits.URLContains(ctx, fragment, timeout)
}

func (s *Session) WaitVisible(ctx context.Context, loc domain.Locator, timeout time.Duration) (domain.Element, error) {
	return s.waits.Visible(ctx, loc, timeout)
}

func (s *Session) WaitAllVisible(ctx context.Context, loc domain.Locator, timeout time.Duration) ([]domain.Element, error) {
	return s.waits.AllVisible(ctx, loc, timeout)
}

func (s *Session) WaitNewWindow(ctx context.Context, timeout time.Duration) error {
	return s.waits.NewWindow(ctx, timeout)
}

// WaitDownload 使用配置的间隔与阈值等待下载完成
func (s *Session) WaitDownload(ctx context.Context, path string) (*download.Result, error) {
	return s.watcher.Wait(ctx, path)
}

// WaitDownloadWith 使用指定的间隔与阈值等待下载完成
func (s *Session) WaitDownloadWith(ctx context.Context, path string, interval time.Duration, threshold int) (*download.Result, error) {
	return s.watcher.Await(ctx, path, interval, threshold)
}
