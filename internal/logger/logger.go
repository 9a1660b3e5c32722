package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 项目统一日志接口，参数以 key/value 形式追加
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger
}

// Options 日志输出配置
type Options struct {
	Level  string
	Writer []string
	File   string
}

type zeroLogger struct {
	zl zerolog.Logger
}

// New 基于 zerolog 创建日志实例，writer 支持 console 与 file
func New(opts Options) Logger {
	var writers []io.Writer
	for _, w := range opts.Writer {
		switch strings.ToLower(w) {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
		case "file":
			name := opts.File
			if name == "" {
				name = "logs/cdprpa.log"
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   name,
				MaxSize:    20,
				MaxBackups: 5,
				MaxAge:     14,
			})
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

// NewWithWriter 输出到指定 writer，主要用于测试
func NewWithWriter(w io.Writer, level string) Logger {
	lv, err := zerolog.ParseLevel(level)
	if err != nil {
		lv = zerolog.DebugLevel
	}
	return &zeroLogger{zl: zerolog.New(w).Level(lv)}
}

// NewNop 不输出任何内容的日志实例
func NewNop() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}

func (l *zeroLogger) Debug(msg string, kv ...any) { l.zl.Debug().Fields(kv).Msg(msg) }
func (l *zeroLogger) Info(msg string, kv ...any)  { l.zl.Info().Fields(kv).Msg(msg) }
func (l *zeroLogger) Warn(msg string, kv ...any)  { l.zl.Warn().Fields(kv).Msg(msg) }
func (l *zeroLogger) Error(msg string, kv ...any) { l.zl.Error().Fields(kv).Msg(msg) }

func (l *zeroLogger) Err(err error, msg string, kv ...any) {
	l.zl.Error().Err(err).Fields(kv).Msg(msg)
}

func (l *zeroLogger) With(kv ...any) Logger {
	return &zeroLogger{zl: l.zl.With().Fields(kv).Logger()}
}
