package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options 控制全局 logger 的输出位置与级别。
type Options struct {
	Level string
	// File 非空时额外写入滚动日志文件。
	File string
	// Console 是人类可读输出的目标（通常是 stderr）；为 nil 时不输出到终端。
	Console io.Writer
}

// Init 配置全局 zerolog logger。
//
// 约束：
// - 日志只写 stderr / 文件，stdout 留给报告输出
// - Console 是 TTY 时使用 ConsoleWriter，否则输出 JSON 行
func Init(opts Options) error {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	writers := make([]io.Writer, 0, 2)
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o750); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    5,
			MaxBackups: 3,
		})
	}
	if opts.Console != nil {
		if IsTerminal(opts.Console) {
			writers = append(writers, zerolog.ConsoleWriter{Out: opts.Console, TimeFormat: "15:04:05"})
		} else {
			writers = append(writers, opts.Console)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(io.MultiWriter(writers...)).
		With().Timestamp().Logger()
	return nil
}

// ParseLevel 解析日志级别；空串返回 info。
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(s)
}

// IsTerminal 判断 w 是否是交互终端。
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
