// Package wait 实现显式等待：按条件类型轮询自动化会话，直到条件满足或超时。
package wait

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cdprpa/internal/logger"
	"cdprpa/internal/poll"
	"cdprpa/pkg/domain"
)

const (
	// DefaultTimeout 未指定超时时的默认等待时长
	DefaultTimeout = 12 * time.Second
	// DefaultInterval 默认轮询间隔
	DefaultInterval = time.Second

	minInterval = time.Millisecond
)

// Observer 每次等待结束（满足、超时或取消）后被调用，参数校验失败时不调用
type Observer func(ctx context.Context, req Request, out *Outcome, err error)

// Dispatcher 显式等待分发器，同一时刻只应被一个调用流使用
type Dispatcher struct {
	browser  domain.Automation
	clock    poll.Clock
	interval time.Duration
	timeout  time.Duration
	observe  Observer
	log      logger.Logger
}

// Config 配置选项
type Config struct {
	Browser  domain.Automation
	Clock    poll.Clock
	Interval time.Duration
	Timeout  time.Duration
	Observer Observer
	Logger   logger.Logger
}

// New 创建等待分发器
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		browser:  cfg.Browser,
		clock:    cfg.Clock,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		observe:  cfg.Observer,
		log:      cfg.Logger,
	}
	if d.clock == nil {
		d.clock = poll.System()
	}
	if d.interval <= 0 {
		d.interval = DefaultInterval
	}
	if d.interval < minInterval {
		d.interval = minInterval
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.log == nil {
		d.log = logger.NewNop()
	}
	return d
}

// Await 阻塞直到请求的条件满足，超时返回 *ConditionTimeout
func (d *Dispatcher) Await(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	check, err := d.condition(ctx, req)
	if err != nil {
		d.notify(ctx, req, nil, err)
		return nil, err
	}
	out, err := d.poll(ctx, req.Kind, d.timeoutFor(req.Timeout), check)
	d.notify(ctx, req, out, err)
	return out, err
}

// SelectionState 等待已定位元素的选中状态变为 want
func (d *Dispatcher) SelectionState(ctx context.Context, el domain.Element, want bool, timeout time.Duration) (bool, error) {
	req := Request{Kind: KindSelectionState, Locator: el.Locator(), Value: strconv.FormatBool(want), Timeout: timeout}
	out, err := d.poll(ctx, KindSelectionState, d.timeoutFor(timeout), selectionState(el, want))
	d.notify(ctx, req, out, err)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Timeout 未指定超时时使用的默认值
func (d *Dispatcher) Timeout() time.Duration { return d.timeout }

func (d *Dispatcher) notify(ctx context.Context, req Request, out *Outcome, err error) {
	if d.observe != nil {
		d.observe(ctx, req, out, err)
	}
}

func (d *Dispatcher) timeoutFor(t time.Duration) time.Duration {
	if t <= 0 {
		return d.timeout
	}
	return t
}

// tick 在截止时间内求值一次，驱动调用阻塞到截止时间时视为未满足
func (d *Dispatcher) tick(ctx context.Context, deadline time.Time, check predicate) (*Outcome, bool, error) {
	tctx, cancel := d.clock.WithDeadline(ctx, deadline)
	defer cancel()
	out, ok, err := check(tctx)
	if tctx.Err() != nil && ctx.Err() == nil {
		if ok && err == nil {
			return out, true, nil
		}
		if err == nil {
			err = tctx.Err()
		}
		// 只保留驱动错误文本，错误链不含 context.DeadlineExceeded
		return nil, false, fmt.Errorf("%w: %v", ErrCheckDeadline, err)
	}
	return out, ok, err
}

// poll 立即求值一次，此后每个间隔求值一次；最后一次休眠截断到剩余时间
func (d *Dispatcher) poll(ctx context.Context, kind Kind, timeout time.Duration, check predicate) (*Outcome, error) {
	start := d.clock.Now()
	deadline := start.Add(timeout)
	var last error

	for polls := 1; ; polls++ {
		out, ok, err := d.tick(ctx, deadline, check)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		now := d.clock.Now()
		if err != nil {
			last = err
		} else if ok {
			out.Kind = kind
			out.Elapsed = now.Sub(start)
			out.Polls = polls
			d.log.Debug("等待条件满足", "kind", kind, "elapsed", out.Elapsed, "polls", polls)
			return out, nil
		}

		remaining := deadline.Sub(now)
		if remaining <= 0 {
			e := &ConditionTimeout{Kind: kind, Elapsed: now.Sub(start), Timeout: timeout, Last: last}
			d.log.Warn("等待条件超时", "kind", kind, "elapsed", e.Elapsed, "polls", polls, "lastError", last)
			return nil, e
		}
		step := d.interval
		if remaining < step {
			step = remaining
		}
		if err := d.clock.Sleep(ctx, step); err != nil {
			return nil, err
		}
	}
}
