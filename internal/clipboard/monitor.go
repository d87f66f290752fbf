package clipboard

import (
	"clipboard-history/internal/logging"
	"clipboard-history/internal/metrics"
	"clipboard-history/pkg/types"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is how often the change count is checked
const DefaultPollInterval = 500 * time.Millisecond

// Store is the part of the storage engine the monitor writes to
type Store interface {
	AddItem(ctx context.Context, item *types.Item) error
}

// ItemHandler is called after an item has been persisted
type ItemHandler func(item *types.Item)

// Result is the outcome of one clipboard change
type Result int

const (
	ResultSuppressed Result = iota // ignore flag consumed
	ResultSkipped                  // no capturer recognised the content
	ResultRejected                 // content present but invalid
	ResultDuplicate                // same fingerprint as the previous capture
	ResultStored                   // item(s) persisted
	ResultFailed                   // building or persisting failed
)

func (r Result) String() string {
	switch r {
	case ResultSuppressed:
		return metrics.OutcomeSuppressed
	case ResultSkipped:
		return "skipped"
	case ResultRejected:
		return metrics.OutcomeRejected
	case ResultDuplicate:
		return metrics.OutcomeDuplicate
	case ResultStored:
		return metrics.OutcomeStored
	case ResultFailed:
		return metrics.OutcomeFailed
	}
	return "unknown"
}

// Monitor observes the clipboard, classifies and deduplicates changes and
// hands new items to the store.
type Monitor struct {
	source    Source
	store     Store
	capturers []Capturer
	interval  time.Duration
	log       *zap.Logger

	handling sync.Mutex // serializes HandleChange

	mu              sync.Mutex
	ignoreNext      bool
	lastFingerprint Fingerprint
	hasFingerprint  bool
	lastCount       int
	onItemAdded     []ItemHandler
	onRefresh       []func()
	running         bool
	stopChan        chan struct{}
	done            chan struct{}
}

// Option customises NewMonitor
type Option func(*Monitor)

// WithCapturers replaces the text-only capture pipeline.
func WithCapturers(c ...Capturer) Option {
	return func(m *Monitor) { m.capturers = c }
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// NewMonitor creates a monitor reading from source and writing to store.
// source may be nil when changes are fed through HandleChange directly.
func NewMonitor(source Source, store Store, opts ...Option) *Monitor {
	m := &Monitor{
		source:    source,
		store:     store,
		capturers: DefaultCapturers(),
		interval:  DefaultPollInterval,
		log:       logging.Named("monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnItemAdded registers a handler fired after each successful persist.
func (m *Monitor) OnItemAdded(handler ItemHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onItemAdded = append(m.onItemAdded, handler)
}

// OnRefresh registers a handler fired after every handled change except
// suppressed ones.
func (m *Monitor) OnRefresh(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRefresh = append(m.onRefresh, handler)
}

// IgnoreNextChange swallows exactly one upcoming change. Call it right
// before writing to the clipboard programmatically.
func (m *Monitor) IgnoreNextChange() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignoreNext = true
}

// HandleChange runs one clipboard change through the pipeline. Errors are
// logged and reflected in the result, never returned; the monitor stays armed.
func (m *Monitor) HandleChange(ctx context.Context, snap Snapshot) Result {
	m.handling.Lock()
	defer m.handling.Unlock()

	m.mu.Lock()
	if m.ignoreNext {
		m.ignoreNext = false
		m.mu.Unlock()
		metrics.RecordChange(metrics.OutcomeSuppressed)
		m.log.Debug("ignored self-triggered clipboard change")
		return ResultSuppressed
	}
	m.mu.Unlock()

	result := m.capture(ctx, snap)
	if result != ResultSkipped {
		metrics.RecordChange(result.String())
	}
	m.notifyRefresh()
	return result
}

func (m *Monitor) capture(ctx context.Context, snap Snapshot) Result {
	for _, c := range m.capturers {
		fp, err := c.Detect(snap)
		if errors.Is(err, ErrNoContent) {
			continue
		}
		if err != nil {
			m.log.Debug("rejected clipboard content", zap.Stringer("kind", c.Kind()), zap.Error(err))
			return ResultRejected
		}

		m.mu.Lock()
		if m.hasFingerprint && fp == m.lastFingerprint {
			m.mu.Unlock()
			return ResultDuplicate
		}
		m.lastFingerprint = fp
		m.hasFingerprint = true
		m.mu.Unlock()

		items, err := c.Items(snap)
		if err != nil {
			m.log.Error("failed to build clipboard item", zap.Stringer("kind", c.Kind()), zap.Error(err))
			return ResultFailed
		}
		if len(items) == 0 {
			return ResultSkipped
		}

		for _, item := range items {
			if err := m.store.AddItem(ctx, item); err != nil {
				m.log.Error("failed to store clipboard item",
					zap.Stringer("kind", item.ContentType),
					zap.Int64("id", item.ID),
					zap.Error(err))
				return ResultFailed
			}
			metrics.RecordStored(item.ContentType.String())
			m.log.Debug("stored clipboard item",
				zap.Stringer("kind", item.ContentType),
				zap.Int64("id", item.ID))
			m.notifyItemAdded(item)
		}
		return ResultStored
	}
	return ResultSkipped
}

func (m *Monitor) notifyItemAdded(item *types.Item) {
	m.mu.Lock()
	handlers := m.onItemAdded
	m.mu.Unlock()
	for _, h := range handlers {
		h(item)
	}
}

func (m *Monitor) notifyRefresh() {
	m.mu.Lock()
	handlers := m.onRefresh
	m.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

// WriteText puts text on the clipboard without recording it again.
func (m *Monitor) WriteText(text string) error {
	if m.source == nil {
		return ErrUnsupportedPlatform
	}
	m.IgnoreNextChange()
	if err := m.source.WriteText(text); err != nil {
		// Nothing changed, so the flag must not eat the next real copy
		m.mu.Lock()
		m.ignoreNext = false
		m.mu.Unlock()
		return err
	}
	return nil
}

// Start begins polling the source for changes.
func (m *Monitor) Start(ctx context.Context) error {
	if m.source == nil {
		return ErrUnsupportedPlatform
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.lastCount = m.source.ChangeCount()
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	stop, done := m.stopChan, m.done
	m.mu.Unlock()

	go m.run(ctx, stop, done)
	m.log.Info("clipboard monitor started", zap.Duration("interval", m.interval))
	return nil
}

// Stop stops polling and waits for an in-flight change to finish.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stopChan)
	done := m.done
	m.mu.Unlock()

	<-done
	m.log.Info("clipboard monitor stopped")
	return nil
}

// IsRunning returns true if the monitor is polling
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkForChanges(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) checkForChanges(ctx context.Context) {
	currentCount := m.source.ChangeCount()

	m.mu.Lock()
	if currentCount == m.lastCount {
		m.mu.Unlock()
		return
	}
	m.lastCount = currentCount
	m.mu.Unlock()

	snap, err := m.source.Read()
	if err != nil {
		m.log.Warn("failed to read clipboard", zap.Error(err))
		return
	}
	m.HandleChange(ctx, snap)
}
