// Package download 通过轮询文件大小判断下载是否完成。
//
// 文件未出现或大小一直变化时监视器会无限等待，调用方通过 ctx 自行控制截止时间。
package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"cdprpa/internal/logger"
	"cdprpa/internal/poll"
)

const (
	DefaultInterval     = time.Second
	DefaultThreshold    = 3
	DefaultMissingRetry = time.Second
)

// ErrInvalidProbe 轮询参数不合法
var ErrInvalidProbe = errors.New("invalid download probe")

// Result 下载完成时的观测结果
type Result struct {
	Path      string
	Size      int64
	Readings  int
	StartedAt time.Time
	Elapsed   time.Duration
}

// Recorder 下载完成后的记录器（可选）
type Recorder interface {
	RecordDownload(ctx context.Context, res *Result) error
}

// Config 配置选项
type Config struct {
	Fs           afero.Fs
	Clock        poll.Clock
	Interval     time.Duration
	Threshold    int
	MissingRetry time.Duration
	Logger       logger.Logger
	Recorder     Recorder
}

// Watcher 下载完成监视器
type Watcher struct {
	fs           afero.Fs
	clock        poll.Clock
	interval     time.Duration
	threshold    int
	missingRetry time.Duration
	log          logger.Logger
	recorder     Recorder
}

// New 创建监视器，未设置的字段使用默认值
func New(cfg Config) *Watcher {
	w := &Watcher{
		fs:           cfg.Fs,
		clock:        cfg.Clock,
		interval:     cfg.Interval,
		threshold:    cfg.Threshold,
		missingRetry: cfg.MissingRetry,
		log:          cfg.Logger,
		recorder:     cfg.Recorder,
	}
	if w.fs == nil {
		w.fs = afero.NewOsFs()
	}
	if w.clock == nil {
		w.clock = poll.System()
	}
	if w.interval <= 0 {
		w.interval = DefaultInterval
	}
	if w.threshold <= 0 {
		w.threshold = DefaultThreshold
	}
	if w.missingRetry <= 0 {
		w.missingRetry = DefaultMissingRetry
	}
	if w.log == nil {
		w.log = logger.NewNop()
	}
	return w
}

// Wait 使用默认间隔与阈值等待下载完成
func (w *Watcher) Wait(ctx context.Context, path string) (*Result, error) {
	return w.Await(ctx, path, w.interval, w.threshold)
}

// Await 等待文件出现，然后每个间隔读取一次大小，连续 threshold 次读数相同即视为完成
func (w *Watcher) Await(ctx context.Context, path string, interval time.Duration, threshold int) (*Result, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("%w: threshold %d must be at least 1", ErrInvalidProbe, threshold)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval %s must be positive", ErrInvalidProbe, interval)
	}
	start := w.clock.Now()

	if err := w.waitForFile(ctx, path); err != nil {
		return nil, err
	}

	p := newProbe(path, interval, threshold)
	for {
		info, err := w.fs.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		done := p.observe(info.Size())
		w.log.Info("文件大小", "path", path, "bytes", p.last, "stable", p.stable)
		if done {
			break
		}
		if err := w.clock.Sleep(ctx, p.interval); err != nil {
			return nil, err
		}
	}

	res := &Result{
		Path:      path,
		Size:      p.last,
		Readings:  p.readings,
		StartedAt: start,
		Elapsed:   w.clock.Now().Sub(start),
	}
	w.log.Info("下载完成，监视结束", "path", path, "bytes", res.Size, "readings", res.Readings)
	if w.recorder != nil {
		if err := w.recorder.RecordDownload(ctx, res); err != nil {
			w.log.Err(err, "记录下载结果失败", "path", path)
		}
	}
	return res, nil
}

// waitForFile 文件不存在（或不是普通文件）时按固定间隔重试，没有超时
func (w *Watcher) waitForFile(ctx context.Context, path string) error {
	for {
		info, err := w.fs.Stat(path)
		if err == nil && !info.IsDir() {
			return nil
		}
		w.log.Error("文件不存在", "path", path)
		if err := w.clock.Sleep(ctx, w.missingRetry); err != nil {
			return err
		}
	}
}

// probe 一次监视的可变状态，每次读数更新一次
type probe struct {
	path      string
	last      int64
	stable    int
	interval  time.Duration
	threshold int
	readings  int
}

func newProbe(path string, interval time.Duration, threshold int) *probe {
	// -1 保证首次读数不会被计为稳定
	return &probe{path: path, last: -1, interval: interval, threshold: threshold}
}

// observe 记录一次读数，返回是否已达到稳定阈值
func (p *probe) observe(size int64) bool {
	if size == p.last {
		p.stable++
	} else {
		p.stable = 0
	}
	p.last = size
	p.readings++
	return p.stable >= p.threshold
}
