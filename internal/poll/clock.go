// Package poll 提供轮询循环使用的时间源。
package poll

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Clock 轮询所需的时间能力：读取当前时间、可取消的休眠
type Clock interface {
	Now() time.Time
	// Sleep 休眠 d，ctx 取消时提前返回 ctx.Err()
	Sleep(ctx context.Context, d time.Duration) error
	// WithDeadline 按本时钟计时的截止上下文
	WithDeadline(parent context.Context, d time.Time) (context.Context, context.CancelFunc)
}

type timerClock struct {
	c clock.Clock
}

// System 使用真实时间
func System() Clock {
	return FromClock(clock.New())
}

// FromClock 将 benbjohnson/clock 适配为 Clock
func FromClock(c clock.Clock) Clock {
	return &timerClock{c: c}
}

func (t *timerClock) Now() time.Time { return t.c.Now() }

func (t *timerClock) WithDeadline(parent context.Context, d time.Time) (context.Context, context.CancelFunc) {
	return t.c.WithDeadline(parent, d)
}

func (t *timerClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := t.c.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
