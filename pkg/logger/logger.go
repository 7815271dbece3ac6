package logger

import (
	"context"
	"io"
	"maps"
	"os"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	// DeviceID tags every entry with the terminal that wrote it.
	DeviceID  string
	Level     zerolog.Level
	WarnStack bool
	// Format is "json" (default) or "console".
	Format string
	Output io.Writer
}

// Logger writes zerolog entries enriched with the fields carried on the
// context passed to each call.
type Logger struct {
	zl        zerolog.Logger
	warnStack bool
}

type fieldsKey struct{}

// field is one key/value carried on a context. Each derived context points at
// its parent's fields, so adding one never copies the rest.
type field struct {
	key    string
	value  any
	parent *field
}

func New(opts Options) *Logger {
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	zctx := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", opts.ServiceName)
	if opts.DeviceID != "" {
		zctx = zctx.Str("device_id", opts.DeviceID)
	}
	return &Logger{zl: zctx.Logger(), warnStack: opts.WarnStack}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// ParseLevel maps a level name to a zerolog level, falling back to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithField returns a context whose entries also carry key. A later value for
// the same key wins.
func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, _ := ctx.Value(fieldsKey{}).(*field)
	return context.WithValue(ctx, fieldsKey{}, &field{key: key, value: value, parent: parent})
}

// WithFields adds every entry of fields, in key order.
func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		ctx = l.WithField(ctx, key, fields[key])
	}
	return ctx
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithOrderID(ctx context.Context, orderID string) context.Context {
	return l.WithField(ctx, "order_id", orderID)
}

func (l *Logger) WithTable(ctx context.Context, table int) context.Context {
	return l.WithField(ctx, "table", table)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.event(ctx, zerolog.DebugLevel).Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.event(ctx, zerolog.InfoLevel).Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	ev := l.event(ctx, zerolog.WarnLevel)
	if ev != nil && l.warnStack {
		ev = ev.Str("stack", stackTrace())
	}
	ev.Msg(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	ev := l.event(ctx, zerolog.ErrorLevel)
	if ev == nil {
		return
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Str("stack", stackTrace()).Msg(msg)
}

// event starts an entry at lvl with the context's fields, nearest first. It
// is nil when lvl is disabled; zerolog treats a nil event as a no-op.
func (l *Logger) event(ctx context.Context, lvl zerolog.Level) *zerolog.Event {
	ev := l.zl.WithLevel(lvl)
	if ev == nil || ctx == nil {
		return ev
	}
	seen := map[string]struct{}{}
	for f, _ := ctx.Value(fieldsKey{}).(*field); f != nil; f = f.parent {
		if _, dup := seen[f.key]; dup {
			continue
		}
		seen[f.key] = struct{}{}
		ev = ev.Interface(f.key, f.value)
	}
	return ev
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
