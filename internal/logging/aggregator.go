package logging

import (
	"log/slog"
	"sync"
	"time"
)

// counter accumulates one component/event pair inside a flush window. The
// attached fields come from the latest Record call; for high-frequency
// events the freshest context is the useful one.
type counter struct {
	component string
	event     string
	n         int64
	fields    []slog.Attr
}

// Aggregator batches high-frequency events (cache hits, watcher wakeups)
// and emits count summaries periodically instead of one line each.
type Aggregator struct {
	logger *slog.Logger
	window time.Duration

	mu      sync.Mutex
	counts  map[[2]string]*counter
	started bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewAggregator creates an aggregator that flushes every intervalSecs seconds.
// If logger is nil, recorded events are silently dropped.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger: logger,
		window: time.Duration(intervalSecs) * time.Second,
		counts: make(map[[2]string]*counter),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins the background flush goroutine.
func (a *Aggregator) Start() {
	a.mu.Lock()
	running := a.started
	a.started = true
	a.mu.Unlock()
	if !running {
		go a.run()
	}
}

// Stop halts the background goroutine and flushes whatever accumulated since
// the last window. Safe on an aggregator that was never started.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.mu.Lock()
	running := a.started
	a.mu.Unlock()
	if running {
		<-a.done
	}
	a.flush()
}

// Record increments the counter for an event type.
// fields are kept from the most recent call (last-writer-wins for context).
func (a *Aggregator) Record(component, event string, fields ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := [2]string{component, event}
	c := a.counts[key]
	if c == nil {
		c = &counter{component: component, event: event}
		a.counts[key] = c
	}
	c.n++
	if len(fields) > 0 {
		c.fields = fields
	}
}

func (a *Aggregator) run() {
	defer close(a.done)
	ticker := time.NewTicker(a.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-a.stop:
			return
		}
	}
}

// flush swaps the accumulated counters out under lock and emits one summary
// line per component/event pair.
func (a *Aggregator) flush() {
	a.mu.Lock()
	counts := a.counts
	a.counts = make(map[[2]string]*counter)
	a.mu.Unlock()

	if a.logger == nil || len(counts) == 0 {
		return
	}

	for _, c := range counts {
		attrs := make([]any, 0, 4+len(c.fields))
		attrs = append(attrs,
			slog.String("component", c.component),
			slog.String("event", c.event),
			slog.Int64("count", c.n),
			slog.Int("window_seconds", int(a.window.Seconds())))
		for _, f := range c.fields {
			attrs = append(attrs, f)
		}
		a.logger.Info("event_summary", attrs...)
	}
}
