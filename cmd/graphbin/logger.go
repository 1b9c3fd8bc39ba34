package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// NewLogger creates the command logger. The text format is a compact
// coloured line per record; json is slog's JSON handler. cfg must have
// been validated.
func NewLogger(w io.Writer, cfg LogConfig) *slog.Logger {
	level, _ := cfg.SlogLevel()
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&textHandler{out: w, level: level, mu: &sync.Mutex{}})
}

// textHandler writes "15:04:05 LEVEL message key=value ..." lines.
type textHandler struct {
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
	group string
	mu    *sync.Mutex
}

var _ slog.Handler = (*textHandler)(nil)

// Enabled implements slog.Handler
func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler
func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+r.NumAttrs())
	copy(attrs, h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		attrs = append(attrs, a)
		return true
	})

	line := fmt.Sprintf("%s %s %s%s\n",
		color.New(color.FgHiBlack).Sprint(r.Time.Format("15:04:05")),
		levelColor(r.Level),
		r.Message,
		formatAttributes(attrs),
	)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line)
	return err
}

// WithAttrs implements slog.Handler
func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

// WithGroup implements slog.Handler
func (h *textHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

func levelColor(level slog.Level) string {
	var bg, fg color.Attribute
	switch {
	case level >= slog.LevelError:
		bg, fg = color.BgRed, color.FgWhite
	case level >= slog.LevelWarn:
		bg, fg = color.BgYellow, color.FgBlack
	case level >= slog.LevelInfo:
		bg, fg = color.BgBlue, color.FgWhite
	default:
		bg, fg = color.BgMagenta, color.FgWhite
	}
	return color.New(bg, fg, color.Bold).Sprint(" " + strings.ToUpper(level.String()) + " ")
}

func formatAttributes(attrs []slog.Attr) string {
	if len(attrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		parts = append(parts, a.Key+"="+formatAttrValue(a.Value))
	}
	return " " + strings.Join(parts, " ")
}

func formatAttrValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return fmt.Sprintf("%q", v.String())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return v.String()
	}
}
