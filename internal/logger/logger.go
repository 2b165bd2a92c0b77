package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 统一日志接口，键值对形式携带上下文字段
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger
}

// Options 日志初始化参数
type Options struct {
	Level    string
	Writers  []string // console / file
	FilePath string
	Output   io.Writer // 指定后忽略 Writers，直接写入（测试用）
}

// New 创建 zerolog 实现的日志器。
// console 输出人类可读格式，file 输出 JSON 并按大小滚动。
func New(opts Options) Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var sinks []io.Writer
	if opts.Output != nil {
		sinks = append(sinks, opts.Output)
	} else {
		for _, w := range opts.Writers {
			switch w {
			case "console":
				sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
			case "file":
				path := opts.FilePath
				if path == "" {
					path = "aepaudit.log"
				}
				sinks = append(sinks, &lumberjack.Logger{
					Filename:   path,
					MaxSize:    50, // MB
					MaxBackups: 5,
					MaxAge:     28,
					Compress:   true,
				})
			}
		}
		if len(sinks) == 0 {
			sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		}
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).Level(level).With().Timestamp().Logger()
	return &zlLogger{zl: zl}
}

// NewNop 创建丢弃一切输出的日志器
func NewNop() Logger {
	return &zlLogger{zl: zerolog.Nop()}
}

type zlLogger struct {
	zl zerolog.Logger
}

func (l *zlLogger) Debug(msg string, kv ...any) { emit(l.zl.Debug(), msg, kv) }
func (l *zlLogger) Info(msg string, kv ...any)  { emit(l.zl.Info(), msg, kv) }
func (l *zlLogger) Warn(msg string, kv ...any)  { emit(l.zl.Warn(), msg, kv) }
func (l *zlLogger) Error(msg string, kv ...any) { emit(l.zl.Error(), msg, kv) }

func (l *zlLogger) Err(err error, msg string, kv ...any) {
	emit(l.zl.Error().Err(err), msg, kv)
}

func (l *zlLogger) With(kv ...any) Logger {
	c := l.zl.With()
	for i := 0; i+1 < len(kv); i += 2 {
		c = c.Interface(fieldKey(kv[i]), kv[i+1])
	}
	return &zlLogger{zl: c.Logger()}
}

func emit(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		e = e.Interface(fieldKey(kv[i]), kv[i+1])
	}
	e.Msg(msg)
}

func fieldKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
