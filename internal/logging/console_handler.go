package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders one header line per record followed by indented
// fields:
//
//	2026-01-02 15:04:05.000 INFO [cache-worker] Worker 2 · Item #7 – job finished
//	    - Frames: 12
//
// Debug records list every field as key: value; info and above show the
// highlighted fields with readable labels.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     *slog.LevelVar
	addSource bool
	attrs     []slog.Attr
	prefix    string
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = slices.Clone(h.attrs)
	for _, attr := range attrs {
		if h.prefix != "" {
			attr.Key = h.prefix + attr.Key
		}
		clone.attrs = append(clone.attrs, attr)
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// subject is the header context pulled out of a record's fields.
type subject struct {
	component string
	worker    string
	itemID    string
}

func (s subject) String() string {
	parts := make([]string, 0, 2)
	if s.worker != "" {
		parts = append(parts, "Worker "+s.worker)
	}
	if s.itemID != "" {
		parts = append(parts, "Item #"+s.itemID)
	}
	return strings.Join(parts, " · ")
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := make([]kv, 0, len(h.attrs)+record.NumAttrs())
	for _, attr := range h.attrs {
		fields = flatten(fields, "", attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		fields = flatten(fields, h.prefix, attr)
		return true
	})
	fields = lastWins(fields)

	var subj subject
	body := fields[:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			subj.component = strings.TrimSpace(attrString(f.value))
			continue
		case FieldWorker:
			subj.worker = strings.TrimSpace(attrString(f.value))
		case FieldItemID:
			subj.itemID = strings.TrimSpace(attrString(f.value))
		}
		body = append(body, f)
	}

	var buf bytes.Buffer
	buf.Grow(256 + 32*len(body))
	buf.WriteString(formatTimestamp(ts))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if subj.component != "" {
		buf.WriteString(" [" + subj.component + "]")
	}
	if s := subj.String(); s != "" {
		buf.WriteString(" " + s)
	}
	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}
	buf.WriteString(" – " + message)
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			buf.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
		}
	}
	buf.WriteByte('\n')

	if record.Level < slog.LevelInfo {
		for _, f := range body {
			buf.WriteString("    " + f.key + ": " + formatValue(f.value) + "\n")
		}
	} else {
		for _, field := range selectInfoFields(body) {
			buf.WriteString("    - " + field.label + ": " + field.value + "\n")
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

type kv struct {
	key   string
	value slog.Value
}

// flatten appends attr to dst, expanding groups into dotted keys.
func flatten(dst []kv, prefix string, attr slog.Attr) []kv {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner = prefix + attr.Key + "."
		}
		for _, child := range value.Group() {
			dst = flatten(dst, inner, child)
		}
		return dst
	}
	key := prefix + attr.Key
	if key == "" {
		return dst
	}
	return append(dst, kv{key: strings.TrimSuffix(key, "."), value: value})
}

// lastWins drops earlier duplicates of a key, keeping the first position and
// the last value.
func lastWins(fields []kv) []kv {
	if len(fields) < 2 {
		return fields
	}
	index := make(map[string]int, len(fields))
	out := make([]kv, 0, len(fields))
	for _, f := range fields {
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
