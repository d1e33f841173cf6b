package journal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultQueueSize = 256

var (
	ErrQueueFull     = errors.New("journal: log queue full")
	ErrHandlerClosed = errors.New("journal: log handler closed")
)

type logEntry struct {
	tsMillis  int64
	level     string
	scope     string
	message   string
	attrsJSON string
}

// HandlerOption configures a Handler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	minLevel  slog.Level
	queueSize int
}

// WithMinLevel sets the lowest level the handler persists.
func WithMinLevel(level slog.Level) HandlerOption {
	return func(cfg *handlerConfig) {
		cfg.minLevel = level
	}
}

// WithQueueSize sets the size of the asynchronous insert queue.
func WithQueueSize(size int) HandlerOption {
	return func(cfg *handlerConfig) {
		if size > 0 {
			cfg.queueSize = size
		}
	}
}

// Handler is a slog.Handler that writes records into the journal's
// app_log table. Inserts happen on a background goroutine so logging
// never blocks the trading loop; when the queue is full the record is
// dropped rather than stalling the caller.
type Handler struct {
	core   *handlerCore
	attrs  []slog.Attr
	groups []string
}

type handlerCore struct {
	journal  *Journal
	minLevel slog.Level

	queue  chan logEntry
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewHandler builds a Handler on top of an open Journal.
func NewHandler(j *Journal, opts ...HandlerOption) *Handler {
	cfg := handlerConfig{
		minLevel:  slog.LevelInfo,
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	core := &handlerCore{
		journal:  j,
		minLevel: cfg.minLevel,
		queue:    make(chan logEntry, cfg.queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	core.wg.Add(1)
	go core.run()

	return &Handler{core: core}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	if h == nil || h.core == nil {
		return false
	}
	return level >= h.core.minLevel
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if !h.Enabled(ctx, record.Level) {
		return nil
	}
	if h.core.closed.Load() {
		return ErrHandlerClosed
	}

	entry := h.buildEntry(record)
	select {
	case h.core.queue <- entry:
		return nil
	default:
		return ErrQueueFull
	}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := &Handler{
		core:   h.core,
		attrs:  append([]slog.Attr{}, h.attrs...),
		groups: append([]string{}, h.groups...),
	}
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := &Handler{
		core:   h.core,
		attrs:  append([]slog.Attr{}, h.attrs...),
		groups: append([]string{}, h.groups...),
	}
	clone.groups = append(clone.groups, name)
	return clone
}

// Close drains the queue and stops the background inserter.
func (h *Handler) Close(ctx context.Context) error {
	if h == nil || h.core == nil {
		return nil
	}
	return h.core.close(ctx)
}

func (c *handlerCore) run() {
	defer c.wg.Done()
	for {
		select {
		case entry := <-c.queue:
			_ = c.journal.insertLog(context.Background(), entry)
		case <-c.ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *handlerCore) drain() {
	for {
		select {
		case entry := <-c.queue:
			_ = c.journal.insertLog(context.Background(), entry)
		default:
			return
		}
	}
}

func (c *handlerCore) close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) buildEntry(record slog.Record) logEntry {
	ts := record.Time.UTC().UnixMilli()
	if record.Time.IsZero() {
		ts = time.Now().UTC().UnixMilli()
	}

	attrs := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	attrs = append(attrs, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		attrs = append(attrs, attr)
		return true
	})

	return logEntry{
		tsMillis:  ts,
		level:     record.Level.String(),
		scope:     strings.Join(h.groups, "."),
		message:   record.Message,
		attrsJSON: encodeAttrs(attrs),
	}
}

func encodeAttrs(attrs []slog.Attr) string {
	root := map[string]any{}
	for _, attr := range attrs {
		insertAttr(root, attr)
	}
	if len(root) == 0 {
		return "{}"
	}
	data, err := json.Marshal(root)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func insertAttr(dst map[string]any, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Key == "" && attr.Value.Kind() != slog.KindGroup {
		return
	}

	switch attr.Value.Kind() {
	case slog.KindGroup:
		target := dst
		if attr.Key != "" {
			child := make(map[string]any)
			dst[attr.Key] = child
			target = child
		}
		for _, nested := range attr.Value.Group() {
			insertAttr(target, nested)
		}
	case slog.KindString:
		dst[attr.Key] = attr.Value.String()
	case slog.KindInt64:
		dst[attr.Key] = attr.Value.Int64()
	case slog.KindUint64:
		dst[attr.Key] = attr.Value.Uint64()
	case slog.KindFloat64:
		dst[attr.Key] = attr.Value.Float64()
	case slog.KindBool:
		dst[attr.Key] = attr.Value.Bool()
	case slog.KindDuration:
		dst[attr.Key] = attr.Value.Duration().String()
	case slog.KindTime:
		dst[attr.Key] = attr.Value.Time().UTC().Format(time.RFC3339Nano)
	default:
		dst[attr.Key] = attr.Value.Any()
	}
}
