package logs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// JSONPath, when set, appends JSON records to that file.
	JSONPath string
	// Journal also sends records to the systemd journal when reachable.
	Journal bool
	// Writer receives text records. Defaults to stderr.
	Writer io.Writer
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// New builds a logger fanning out to every configured sink. The returned
// close function releases the JSON file, if any.
func New(opts Options) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	terminal := slog.NewTextHandler(writer, handlerOpts)
	handlers := []slog.Handler{terminal}
	closeFn := func() error { return nil }

	if opts.JSONPath != "" {
		f, err := os.OpenFile(opts.JSONPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, handlerOpts))
		closeFn = f.Close
	}

	if opts.Journal {
		journal, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: level,
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "systemd journal unavailable", 0)
			record.Add("error", err)
			_ = terminal.Handle(context.Background(), record)
		} else {
			handlers = append(handlers, journal)
		}
	}

	return slog.New(slogmulti.Fanout(handlers...)), closeFn, nil
}

func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}
