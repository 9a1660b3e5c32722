package download

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"cdprpa/internal/poll/polltest"
)

const target = "/downloads/report.pdf"

// scriptedFs 在第 missing 次 Stat 之后创建文件，并按读数序号改写文件大小。
// 存在性检查与第一次读数看到同一个大小。
type scriptedFs struct {
	afero.Fs
	missing int
	size    func(reading int) int64
	onStat  func(calls int)
	calls   int
}

func (s *scriptedFs) Stat(name string) (os.FileInfo, error) {
	s.calls++
	if s.calls > s.missing {
		reading := s.calls - s.missing - 1
		if reading < 1 {
			reading = 1
		}
		if err := afero.WriteFile(s.Fs, name, make([]byte, s.size(reading)), 0o644); err != nil {
			return nil, err
		}
	}
	if s.onStat != nil {
		s.onStat(s.calls)
	}
	return s.Fs.Stat(name)
}

func sequence(sizes ...int64) func(int) int64 {
	return func(reading int) int64 {
		if reading > len(sizes) {
			return sizes[len(sizes)-1]
		}
		return sizes[reading-1]
	}
}

func newWatcher(fs afero.Fs, clk *polltest.StepClock) *Watcher {
	return New(Config{Fs: fs, Clock: clk, Interval: 500 * time.Millisecond, Threshold: 3})
}

func TestAwaitExample(t *testing.T) {
	fs := &scriptedFs{Fs: afero.NewMemMapFs(), missing: 2, size: sequence(100, 150, 150, 150, 150)}
	clk := polltest.New()

	res, err := newWatcher(fs, clk).Await(context.Background(), target, 500*time.Millisecond, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(150), res.Size)
	assert.Equal(t, 5, res.Readings)
	assert.Equal(t, target, res.Path)
	half := 500 * time.Millisecond
	assert.Equal(t, []time.Duration{time.Second, time.Second, half, half, half, half}, clk.Sleeps())
	assert.Equal(t, 2*time.Second+4*half, res.Elapsed)
}

func TestWaitUsesDefaults(t *testing.T) {
	fs := &scriptedFs{Fs: afero.NewMemMapFs(), size: sequence(7)}
	clk := polltest.New()

	res, err := New(Config{Fs: fs, Clock: clk}).Wait(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Size)
	assert.Equal(t, DefaultThreshold+1, res.Readings)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, clk.Sleeps())
}

func TestStableAfterConstantTail(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		threshold := rapid.IntRange(1, 6).Draw(rt, "threshold")
		deltas := rapid.SliceOfN(rapid.Int64Range(1, 4096), 0, 10).Draw(rt, "deltas")
		step := rapid.Int64Range(1, 4096).Draw(rt, "step")

		var sizes []int64
		var cur int64
		for _, d := range deltas {
			cur += d
			sizes = append(sizes, cur)
		}
		final := cur + step
		firstFinal := len(sizes) + 1
		for i := 0; i <= threshold; i++ {
			sizes = append(sizes, final)
		}

		fs := &scriptedFs{Fs: afero.NewMemMapFs(), size: sequence(sizes...)}
		res, err := newWatcher(fs, polltest.New()).Await(context.Background(), target, time.Second, threshold)
		if err != nil {
			rt.Fatalf("await: %v", err)
		}
		if res.Size != final {
			rt.Fatalf("size %d, want %d", res.Size, final)
		}
		if res.Readings != firstFinal+threshold {
			rt.Fatalf("readings %d, want %d", res.Readings, firstFinal+threshold)
		}
	})
}

func TestNeverStabilizesUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fs := &scriptedFs{
		Fs:     afero.NewMemMapFs(),
		size:   func(reading int) int64 { return int64(reading) * 10 },
		onStat: func(calls int) {
			if calls == 50 {
				cancel()
			}
		},
	}

	res, err := newWatcher(fs, polltest.New()).Await(ctx, target, time.Second, 2)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 50, fs.calls)
}

func TestMissingFileWaitsUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fs := &scriptedFs{
		Fs:      afero.NewMemMapFs(),
		missing: 1 << 30,
		size:    sequence(1),
		onStat: func(calls int) {
			if calls == 20 {
				cancel()
			}
		},
	}
	clk := polltest.New()

	_, err := newWatcher(fs, clk).Await(ctx, target, time.Second, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, clk.Sleeps(), 19)
}

func TestDirectoryIsNotAFile(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll(target, 0o755))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fs := &scriptedFs{Fs: mem, missing: 1 << 30, onStat: func(calls int) {
		if calls == 3 {
			cancel()
		}
	}}

	_, err := newWatcher(fs, polltest.New()).Await(ctx, target, time.Second, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvalidProbe(t *testing.T) {
	w := newWatcher(afero.NewMemMapFs(), polltest.New())

	_, err := w.Await(context.Background(), target, time.Second, 0)
	assert.ErrorIs(t, err, ErrInvalidProbe)

	_, err = w.Await(context.Background(), target, 0, 3)
	assert.ErrorIs(t, err, ErrInvalidProbe)
}

type recorder struct {
	got []*Result
	err error
}

func (r *recorder) RecordDownload(ctx context.Context, res *Result) error {
	r.got = append(r.got, res)
	return r.err
}

func TestRecorderReceivesResult(t *testing.T) {
	rec := &recorder{err: errors.New("disk full")}
	fs := &scriptedFs{Fs: afero.NewMemMapFs(), size: sequence(42)}
	w := New(Config{Fs: fs, Clock: polltest.New(), Threshold: 1, Recorder: rec})

	res, err := w.Wait(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, rec.got, 1)
	assert.Same(t, res, rec.got[0])
	assert.Equal(t, 2, res.Readings)
}

func TestProbeObserve(t *testing.T) {
	p := newProbe(target, time.Second, 2)

	assert.False(t, p.observe(0))
	assert.Equal(t, 0, p.stable)
	assert.False(t, p.observe(0))
	assert.Equal(t, 1, p.stable)
	assert.False(t, p.observe(5))
	assert.Equal(t, 0, p.stable)
	assert.False(t, p.observe(5))
	assert.True(t, p.observe(5))
	assert.Equal(t, 5, p.readings)
}
