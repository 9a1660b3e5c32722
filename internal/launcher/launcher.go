package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mafredri/cdp/devtool"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"cdprpa/internal/config"
	"cdprpa/internal/logger"
)

// DefaultReadyTimeout 等待调试端口可用的最长时间
const DefaultReadyTimeout = 20 * time.Second

var ErrNoBrowser = errors.New("chrome binary not found")

// binaryCandidates 未指定浏览器路径时依次查找的可执行文件
var binaryCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
}

// Options 浏览器启动参数
type Options struct {
	Binary       string
	Headless     bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	UserDataDir  string
	DownloadDir  string
	DebugPort    int
	ReadyTimeout time.Duration
	Fs           afero.Fs
	Logger       logger.Logger
}

// FromConfig 由配置生成启动参数
func FromConfig(cfg config.BrowserConfig, fs afero.Fs, log logger.Logger) Options {
	return Options{
		Binary:       cfg.Binary,
		Headless:     cfg.Headless,
		UserAgent:    cfg.UserAgent,
		WindowWidth:  cfg.WindowWidth,
		WindowHeight: cfg.WindowHeight,
		UserDataDir:  cfg.UserDataDir,
		DownloadDir:  cfg.DownloadDir,
		DebugPort:    cfg.DebugPort,
		Fs:           fs,
		Logger:       log,
	}
}

// DevToolsURL 调试端点地址
func (o Options) DevToolsURL() string {
	return "http://127.0.0.1:" + strconv.Itoa(o.DebugPort)
}

// Args 生成 Chrome 命令行参数
func Args(o Options) []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(o.DebugPort),
		"--user-data-dir=" + o.UserDataDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-notifications",
		"--disable-popup-blocking",
		"--disable-infobars",
		"--disable-features=Translate",
		"--disable-blink-features=AutomationControlled",
	}
	if o.UserAgent != "" {
		args = append(args, "--user-agent="+o.UserAgent)
	}
	if o.WindowWidth > 0 && o.WindowHeight > 0 {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", o.WindowWidth, o.WindowHeight))
	}
	if o.Headless {
		args = append(args, "--headless=new")
	} else {
		args = append(args, "--start-maximized")
	}
	return append(args, "about:blank")
}

// Preferences 在现有的 Preferences 内容上写入下载相关设置
func Preferences(existing []byte, downloadDir string) ([]byte, error) {
	doc := existing
	if len(doc) == 0 || !gjson.ValidBytes(doc) {
		doc = []byte(`{}`)
	}
	sets := []struct {
		path  string
		value any
	}{
		{"download.default_directory", downloadDir},
		{"download.prompt_for_download", false},
		{"download.directory_upgrade", true},
		{"plugins.always_open_pdf_externally", true},
		{"plugins.plugins_list", []map[string]any{{"enabled": false, "name": "Chrome PDF Viewer"}}},
		{"profile.default_content_setting_values.notifications", 2},
		{"profile.default_content_setting_values.automatic_downloads", 1},
	}
	var err error
	for _, s := range sets {
		doc, err = sjson.SetBytes(doc, s.path, s.value)
		if err != nil {
			return nil, fmt.Errorf("set preference %s: %w", s.path, err)
		}
	}
	return doc, nil
}

// WritePreferences 写入用户目录下 Default/Preferences
func WritePreferences(fs afero.Fs, userDataDir, downloadDir string) error {
	if err := fs.MkdirAll(downloadDir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	profile := filepath.Join(userDataDir, "Default")
	if err := fs.MkdirAll(profile, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	path := filepath.Join(profile, "Preferences")
	existing, err := afero.ReadFile(fs, path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read preferences: %w", err)
	}
	prefs, err := Preferences(existing, downloadDir)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, prefs, 0o644)
}

// findBinary 在候选列表中查找浏览器
func findBinary(lookPath func(string) (string, error)) (string, error) {
	for _, c := range binaryCandidates {
		if p, err := lookPath(c); err == nil {
			return p, nil
		}
	}
	return "", ErrNoBrowser
}

// Browser 已启动的浏览器进程
type Browser struct {
	DevToolsURL string
	Version     *devtool.Version

	cmd     *exec.Cmd
	fs      afero.Fs
	tempDir string
	log     logger.Logger
	once    sync.Once
	done    chan struct{}
}

// Launch 启动浏览器并等待调试端口就绪
func Launch(ctx context.Context, o Options) (*Browser, error) {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = DefaultReadyTimeout
	}
	bin := o.Binary
	if bin == "" {
		var err error
		if bin, err = findBinary(exec.LookPath); err != nil {
			return nil, err
		}
	}
	var tempDir string
	if o.UserDataDir == "" {
		dir, err := afero.TempDir(o.Fs, "", "cdprpa-profile-")
		if err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
		o.UserDataDir, tempDir = dir, dir
	}
	if o.DownloadDir != "" {
		if err := WritePreferences(o.Fs, o.UserDataDir, o.DownloadDir); err != nil {
			removeDir(o.Fs, tempDir)
			return nil, err
		}
	}

	cmd := exec.Command(bin, Args(o)...)
	if err := cmd.Start(); err != nil {
		removeDir(o.Fs, tempDir)
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	b := &Browser{
		DevToolsURL: o.DevToolsURL(),
		cmd:         cmd,
		fs:          o.Fs,
		tempDir:     tempDir,
		log:         o.Logger,
		done:        make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(b.done)
	}()
	o.Logger.Info("启动浏览器", "binary", bin, "pid", cmd.Process.Pid, "port", o.DebugPort, "headless", o.Headless)

	rctx, cancel := context.WithTimeout(ctx, o.ReadyTimeout)
	defer cancel()
	v, err := WaitReady(rctx, b.DevToolsURL, b.done)
	if err != nil {
		_ = b.Stop()
		return nil, err
	}
	b.Version = v
	o.Logger.Info("浏览器就绪", "browser", v.Browser, "protocol", v.Protocol)
	return b, nil
}

// WaitReady 以指数退避轮询 /json/version，直到端点可用、进程退出或 ctx 结束
func WaitReady(ctx context.Context, devtoolsURL string, exited <-chan struct{}) (*devtool.Version, error) {
	dt := devtool.New(devtoolsURL)
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	eb.MaxInterval = time.Second
	eb.MaxElapsedTime = 0

	var v *devtool.Version
	op := func() error {
		select {
		case <-exited:
			return backoff.Permanent(errors.New("browser exited before devtools was ready"))
		default:
		}
		var err error
		v, err = dt.Version(ctx)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(eb, ctx)); err != nil {
		return nil, fmt.Errorf("wait devtools %s: %w", devtoolsURL, err)
	}
	return v, nil
}

// Stop 结束浏览器进程并清理临时用户目录
func (b *Browser) Stop() error {
	var err error
	b.once.Do(func() {
		select {
		case <-b.done:
		default:
			if kerr := b.cmd.Process.Kill(); kerr != nil {
				err = fmt.Errorf("kill browser: %w", kerr)
				return
			}
			<-b.done
		}
		removeDir(b.fs, b.tempDir)
		b.log.Info("浏览器进程已退出", "pid", b.cmd.Process.Pid)
	})
	return err
}

// removeDir 删除启动时创建的临时用户目录，dir 为空时不处理
func removeDir(fs afero.Fs, dir string) {
	if dir != "" {
		_ = fs.RemoveAll(dir)
	}
}
