package cdp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/browser"
	"github.com/mafredri/cdp/protocol/dom"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	convert "cdprpa/internal/adapter/cdp"
	"cdprpa/internal/logger"
	"cdprpa/pkg/domain"
)

const (
	isolatedWorldName = "cdprpa"
	// DefaultLoadTimeout Navigate 等待 load 事件的默认上限
	DefaultLoadTimeout = 30 * time.Second
)

var (
	_ domain.Automation = (*Manager)(nil)
	_ domain.Element    = (*element)(nil)
)

// Config 自动化会话配置
type Config struct {
	DevToolsURL string
	// DownloadDir 非空时允许下载并保存到该目录
	DownloadDir string
	// LoadTimeout 为 0 时使用 DefaultLoadTimeout
	LoadTimeout time.Duration
	Fs          afero.Fs
	Logger      logger.Logger
}

// Manager 基于 DevTools 协议的自动化会话，每个页面目标对应一个窗口
type Manager struct {
	devtoolsURL string
	downloadDir string
	loadTimeout time.Duration
	dt          *devtool.DevTools
	fs          afero.Fs
	log         logger.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	order    []domain.WindowHandle
	targets  map[domain.WindowHandle]*devtool.Target
	sessions map[domain.WindowHandle]*targetSession
	active   *targetSession
}

// targetSession 单个页面目标的连接
type targetSession struct {
	id     domain.WindowHandle
	conn   *rpcc.Conn
	client *cdp.Client
	ctx    context.Context
	cancel context.CancelFunc

	frameCtx   atomic.Int64
	dialogOpen atomic.Bool
}

func (ts *targetSession) close() error {
	ts.cancel()
	return ts.conn.Close()
}

// ready 弹窗打开期间浏览器挂起页面命令，直接失败
func (ts *targetSession) ready() error {
	if ts.dialogOpen.Load() {
		return fmt.Errorf("window %s: %w", ts.id, domain.ErrUnexpectedAlert)
	}
	return nil
}

// contextID 当前所在框架的执行上下文，0 表示顶层文档
func (ts *targetSession) contextID() runtime.ExecutionContextID {
	return runtime.ExecutionContextID(ts.frameCtx.Load())
}

// New 创建会话，需调用 Attach 连接到页面
func New(cfg Config) *Manager {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		devtoolsURL: cfg.DevToolsURL,
		downloadDir: cfg.DownloadDir,
		loadTimeout: cfg.LoadTimeout,
		dt:          devtool.New(cfg.DevToolsURL),
		fs:          cfg.Fs,
		log:         cfg.Logger,
		ctx:         ctx,
		cancel:      cancel,
		targets:     make(map[domain.WindowHandle]*devtool.Target),
		sessions:    make(map[domain.WindowHandle]*targetSession),
	}
}

// Attach 连接到第一个页面目标，没有页面时新建一个
func (m *Manager) Attach(ctx context.Context) error {
	handles, err := m.WindowHandles(ctx)
	if err != nil {
		return err
	}
	if len(handles) == 0 {
		t, err := m.dt.Create(ctx)
		if err != nil {
			return fmt.Errorf("create page target: %w", err)
		}
		m.log.Info("新建页面目标", "devtools", m.devtoolsURL, "target", t.ID)
		if _, err := m.WindowHandles(ctx); err != nil {
			return err
		}
	}
	return m.SwitchToWindow(ctx, 0)
}

// refresh 重新读取页面目标列表并维护窗口的首见顺序
func (m *Manager) refresh(ctx context.Context) error {
	list, err := m.dt.List(ctx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var listed []domain.WindowHandle
	targets := make(map[domain.WindowHandle]*devtool.Target)
	for _, t := range list {
		if t.Type != devtool.Page {
			continue
		}
		h := domain.WindowHandle(t.ID)
		listed = append(listed, h)
		targets[h] = t
	}
	m.order = mergeHandles(m.order, listed)
	m.targets = targets
	for h, ts := range m.sessions {
		if _, ok := targets[h]; ok {
			continue
		}
		_ = ts.close()
		delete(m.sessions, h)
		if m.active == ts {
			m.active = nil
		}
	}
	return nil
}

// mergeHandles 保留仍存在窗口的既有顺序，新窗口追加到末尾
func mergeHandles(order, listed []domain.WindowHandle) []domain.WindowHandle {
	alive := make(map[domain.WindowHandle]bool, len(listed))
	for _, h := range listed {
		alive[h] = true
	}
	out := make([]domain.WindowHandle, 0, len(listed))
	seen := make(map[domain.WindowHandle]bool, len(listed))
	for _, h := range order {
		if alive[h] {
			out = append(out, h)
			seen[h] = true
		}
	}
	for _, h := range listed {
		if !seen[h] {
			out = append(out, h)
			seen[h] = true
		}
	}
	return out
}

func (m *Manager) WindowHandles(ctx context.Context) ([]domain.WindowHandle, error) {
	if err := m.refresh(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.WindowHandle(nil), m.order...), nil
}

// SwitchToWindow 切换到第 index 个窗口（按首次出现顺序）
func (m *Manager) SwitchToWindow(ctx context.Context, index int) error {
	if err := m.refresh(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	if index < 0 || index >= len(m.order) {
		m.mu.Unlock()
		return fmt.Errorf("window %d: %w", index, domain.ErrNoSuchWindow)
	}
	h := m.order[index]
	t := m.targets[h]
	ts, ok := m.sessions[h]
	m.mu.Unlock()

	if !ok {
		var err error
		ts, err = m.attachTarget(ctx, t)
		if err != nil {
			return err
		}
	}
	if err := m.dt.Activate(ctx, t); err != nil {
		m.log.Warn("激活窗口失败", "target", h, "error", err)
	}
	ts.frameCtx.Store(0)

	m.mu.Lock()
	m.active = ts
	m.mu.Unlock()
	m.log.Debug("切换窗口", "index", index, "target", h)
	return nil
}

// attachTarget 连接页面目标并启用所需的域
func (m *Manager) attachTarget(ctx context.Context, t *devtool.Target) (*targetSession, error) {
	conn, err := rpcc.DialContext(ctx, t.WebSocketDebuggerURL)
	if err != nil {
		return nil, fmt.Errorf("dial target %s: %w", t.ID, err)
	}
	tctx, cancel := context.WithCancel(m.ctx)
	ts := &targetSession{
		id:     domain.WindowHandle(t.ID),
		conn:   conn,
		client: cdp.NewClient(conn),
		ctx:    tctx,
		cancel: cancel,
	}
	if err := ts.client.Page.Enable(ctx); err != nil {
		_ = ts.close()
		return nil, fmt.Errorf("enable page domain: %w", err)
	}
	if err := m.subscribeDialogs(ts); err != nil {
		_ = ts.close()
		return nil, err
	}
	if m.downloadDir != "" {
		args := browser.NewSetDownloadBehaviorArgs("allow").SetDownloadPath(m.downloadDir)
		if err := ts.client.Browser.SetDownloadBehavior(ctx, args); err != nil {
			m.log.Warn("设置下载目录失败", "dir", m.downloadDir, "error", err)
		}
	}

	m.mu.Lock()
	m.sessions[ts.id] = ts
	m.mu.Unlock()
	m.log.Info("连接页面目标", "target", ts.id, "url", t.URL)
	return ts, nil
}

func (m *Manager) current() (*targetSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, domain.ErrNotAttached
	}
	return m.active, nil
}

// evaluate 在当前框架中求值表达式
func (m *Manager) evaluate(ctx context.Context, ts *targetSession, expr string, byValue bool, top bool) (*runtime.RemoteObject, error) {
	if err := ts.ready(); err != nil {
		return nil, err
	}
	args := runtime.NewEvaluateArgs(expr).SetReturnByValue(byValue).SetAwaitPromise(true)
	if id := ts.contextID(); id != 0 && !top {
		args = args.SetContextID(id)
	}
	reply, err := ts.client.Runtime.Evaluate(ctx, args)
	if err != nil {
		return nil, convert.Stale(err)
	}
	if reply.ExceptionDetails != nil {
		return nil, convert.ExceptionError(reply.ExceptionDetails)
	}
	return &reply.Result, nil
}

// Navigate 打开地址并等待页面 load 事件，同文档跳转不等待
func (m *Manager) Navigate(ctx context.Context, url string) error {
	ts, err := m.current()
	if err != nil {
		return err
	}
	if err := ts.ready(); err != nil {
		return err
	}
	lctx, cancel := context.WithTimeout(ctx, m.loadTimeout)
	defer cancel()
	load, err := ts.client.Page.LoadEventFired(lctx)
	if err != nil {
		return fmt.Errorf("subscribe load event: %w", err)
	}
	defer load.Close()

	reply, err := ts.client.Page.Navigate(ctx, page.NewNavigateArgs(url))
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if reply.ErrorText != nil {
		return fmt.Errorf("navigate %s: %s", url, *reply.ErrorText)
	}
	ts.frameCtx.Store(0)
	if reply.LoaderID == nil {
		m.log.Debug("同文档跳转", "target", ts.id, "url", url)
		return nil
	}
	if _, err := load.Recv(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	m.log.Info("页面加载完成", "target", ts.id, "url", url)
	return nil
}

// FindElements 按 XPath 在当前框架中查找全部元素
func (m *Manager) FindElements(ctx context.Context, loc domain.Locator) ([]domain.Element, error) {
	ts, err := m.current()
	if err != nil {
		return nil, err
	}
	arr, err := m.evaluate(ctx, ts, xpathSnapshotExpr(string(loc)), false, false)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", loc, err)
	}
	if arr.ObjectID == nil {
		return nil, nil
	}
	defer func() {
		_ = ts.client.Runtime.ReleaseObject(ctx, runtime.NewReleaseObjectArgs(*arr.ObjectID))
	}()
	props, err := ts.client.Runtime.GetProperties(ctx, runtime.NewGetPropertiesArgs(*arr.ObjectID).SetOwnProperties(true))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", loc, convert.Stale(err))
	}
	ids := convert.IndexedObjectIDs(props.Result)
	out := make([]domain.Element, 0, len(ids))
	for _, id := range ids {
		out = append(out, &element{ts: ts, objectID: id, loc: loc})
	}
	return out, nil
}

// ExecuteScript 将脚本作为函数体在当前框架执行，返回 return 的值
func (m *Manager) ExecuteScript(ctx context.Context, script string) (gjson.Result, error) {
	ts, err := m.current()
	if err != nil {
		return gjson.Result{}, err
	}
	obj, err := m.evaluate(ctx, ts, scriptBodyExpr(script), true, false)
	if err != nil {
		return gjson.Result{}, err
	}
	return convert.Result(obj), nil
}

// CurrentURL 顶层文档地址，不受框架切换影响
func (m *Manager) CurrentURL(ctx context.Context) (string, error) {
	ts, err := m.current()
	if err != nil {
		return "", err
	}
	obj, err := m.evaluate(ctx, ts, exprLocation, true, true)
	if err != nil {
		return "", err
	}
	v, _ := convert.String(obj)
	return v, nil
}

// SwitchToFrame 进入 iframe，之后的查找与脚本在该框架中执行
func (m *Manager) SwitchToFrame(ctx context.Context, frame domain.Element) error {
	ts, err := m.current()
	if err != nil {
		return err
	}
	el, ok := frame.(*element)
	if !ok || el.ts != ts {
		return domain.ErrNoSuchFrame
	}
	if err := ts.ready(); err != nil {
		return err
	}
	desc, err := ts.client.DOM.DescribeNode(ctx, dom.NewDescribeNodeArgs().SetObjectID(el.objectID))
	if err != nil {
		return fmt.Errorf("describe frame %s: %w", el.loc, convert.Stale(err))
	}
	if desc.Node.FrameID == nil {
		return fmt.Errorf("%s: %w", el.loc, domain.ErrNoSuchFrame)
	}
	world, err := ts.client.Page.CreateIsolatedWorld(ctx,
		page.NewCreateIsolatedWorldArgs(page.FrameID(*desc.Node.FrameID)).SetWorldName(isolatedWorldName))
	if err != nil {
		return fmt.Errorf("enter frame %s: %w", el.loc, err)
	}
	ts.frameCtx.Store(int64(world.ExecutionContextID))
	m.log.Debug("进入框架", "target", ts.id, "locator", el.loc)
	return nil
}

func (m *Manager) SwitchToDefaultContent(ctx context.Context) error {
	ts, err := m.current()
	if err != nil {
		return err
	}
	ts.frameCtx.Store(0)
	return nil
}

// Close 关闭当前窗口，之后需切换到其他窗口
func (m *Manager) Close(ctx context.Context) error {
	ts, err := m.current()
	if err != nil {
		return err
	}
	m.mu.Lock()
	t := m.targets[ts.id]
	m.mu.Unlock()
	if t != nil {
		if err := m.dt.Close(ctx, t); err != nil {
			return fmt.Errorf("close window %s: %w", ts.id, err)
		}
	}
	_ = ts.close()

	m.mu.Lock()
	delete(m.sessions, ts.id)
	delete(m.targets, ts.id)
	m.order = mergeHandles(m.order, keysOf(m.targets))
	m.active = nil
	m.mu.Unlock()
	m.log.Info("关闭窗口", "target", ts.id)
	return nil
}

func keysOf(targets map[domain.WindowHandle]*devtool.Target) []domain.WindowHandle {
	out := make([]domain.WindowHandle, 0, len(targets))
	for h := range targets {
		out = append(out, h)
	}
	return out
}

// Quit 关闭浏览器并断开全部连接
func (m *Manager) Quit(ctx context.Context) error {
	m.mu.Lock()
	conn := m.active
	for _, ts := range m.sessions {
		if conn == nil {
			conn = ts
		}
	}
	m.mu.Unlock()

	if conn != nil {
		if err := conn.client.Browser.Close(ctx); err != nil {
			m.log.Warn("关闭浏览器失败", "error", err)
		}
	}
	m.detachAll()
	m.log.Info("自动化会话结束")
	return nil
}

// Detach 断开全部连接但不关闭浏览器
func (m *Manager) Detach() {
	m.detachAll()
}

func (m *Manager) detachAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, ts := range m.sessions {
		_ = ts.close()
		delete(m.sessions, h)
	}
	m.active = nil
	m.cancel()
}

// SaveScreenshot 截取当前窗口并写入 PNG 文件
func (m *Manager) SaveScreenshot(ctx context.Context, path string) error {
	ts, err := m.current()
	if err != nil {
		return err
	}
	if err := ts.ready(); err != nil {
		return err
	}
	shot, err := ts.client.Page.CaptureScreenshot(ctx, page.NewCaptureScreenshotArgs())
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if err := afero.WriteFile(m.fs, path, shot.Data, 0o644); err != nil {
		return fmt.Errorf("write screenshot %s: %w", path, err)
	}
	m.log.Info("保存截图", "target", ts.id, "path", path, "bytes", len(shot.Data))
	return nil
}
