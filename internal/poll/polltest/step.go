// Package polltest 提供按步推进的测试时钟。
package polltest

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// StepClock 每次 Sleep 立即把 mock 时间推进 d，并记录休眠次数
type StepClock struct {
	*clock.Mock

	mu     sync.Mutex
	sleeps []time.Duration
}

// New 创建从 Unix 零点开始的步进时钟
func New() *StepClock {
	return &StepClock{Mock: clock.NewMock()}
}

func (s *StepClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	s.Mock.Add(d)
	return nil
}

// Sleeps 返回已发生的休眠时长
func (s *StepClock) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

// Elapsed 自创建以来推进的总时长
func (s *StepClock) Elapsed() time.Duration {
	return s.Mock.Now().Sub(time.Unix(0, 0))
}
