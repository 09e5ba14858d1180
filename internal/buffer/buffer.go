// Package buffer windows conversation messages per thread before they are
// indexed. A thread's buffer moves EMPTY → BUFFERING → FLUSHING → EMPTY and
// is flushed when it reaches the message threshold, after a period of
// inactivity, or when its hard expiry is close. A failed flush keeps every
// message queued in arrival order.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/metrics"
	"github.com/persistorai/recall/internal/models"
)

// State is a thread buffer's lifecycle state.
type State int

// Buffer states.
const (
	StateEmpty State = iota
	StateBuffering
	StateFlushing
)

func (s State) String() string {
	switch s {
	case StateBuffering:
		return "buffering"
	case StateFlushing:
		return "flushing"
	default:
		return "empty"
	}
}

// Flush triggers.
const (
	TriggerCount      = "count"
	TriggerInactivity = "inactivity"
	TriggerExpiry     = "expiry"
	TriggerManual     = "manual"
	TriggerShutdown   = "shutdown"
)

var messageNamespace = uuid.MustParse("0b9e6c1d-3f4a-5b2c-8d7e-9a1f2e3c4b5d")

// Message is one conversation message awaiting indexing.
type Message struct {
	ThreadID       string    `json:"thread_id"`
	MessageID      string    `json:"message_id,omitempty"`
	Source         string    `json:"source,omitempty"`
	Channel        string    `json:"channel,omitempty"`
	Sender         string    `json:"sender,omitempty"`
	SenderPersonID string    `json:"sender_person_id,omitempty"`
	PersonIDs      []string  `json:"person_ids,omitempty"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// Validate checks required fields and fills defaults.
func (m *Message) Validate(now time.Time) error {
	m.ThreadID = strings.TrimSpace(m.ThreadID)

	switch {
	case m.ThreadID == "":
		return models.ErrMissingField("thread_id")
	case strings.TrimSpace(m.Text) == "":
		return models.ErrMissingField("text")
	case len(m.ThreadID) > 255:
		return models.ErrFieldTooLong("thread_id", 255)
	case len(m.Text) > 64<<10:
		return models.ErrFieldTooLong("text", 64<<10)
	}

	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}

	if m.MessageID == "" {
		key := m.ThreadID + "\x1f" + m.Timestamp.UTC().Format(time.RFC3339Nano) + "\x1f" + m.Sender + "\x1f" + m.Text
		m.MessageID = uuid.NewSHA1(messageNamespace, []byte(key)).String()
	}

	return nil
}

// Flusher writes a window of messages downstream.
type Flusher interface {
	Flush(ctx context.Context, threadID string, msgs []Message) error
}

// Config holds buffer thresholds.
type Config struct {
	MaxMessages  int
	Inactivity   time.Duration
	TTL          time.Duration
	SafetyMargin time.Duration
	// Sweep is the cron spec of the periodic backstop sweep.
	Sweep string
}

// AppendResult reports what an append did.
type AppendResult struct {
	ThreadID string `json:"thread_id"`
	Buffered int    `json:"buffered"`
	State    string `json:"state"`
	// Flushed counts messages written downstream by this call.
	Flushed    int    `json:"flushed"`
	Trigger    string `json:"trigger,omitempty"`
	FlushError string `json:"flush_error,omitempty"`
}

type thread struct {
	mu         sync.Mutex
	state      State
	msgs       []Message
	deadline   time.Time
	lastAppend time.Time
	// dead is set under mu when the thread is removed from the map. A caller
	// that locks a dead thread must fetch a fresh one.
	dead bool
}

// Buffer holds per-thread message windows.
type Buffer struct {
	cfg     Config
	flusher Flusher
	log     *logrus.Logger
	now     func() time.Time

	mu      sync.Mutex
	threads map[string]*thread
	held    atomic.Int64

	sweepMu sync.Mutex
	cron    *cron.Cron
}

// New creates a Buffer.
func New(cfg Config, flusher Flusher, log *logrus.Logger) *Buffer {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 5
	}

	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}

	if cfg.Inactivity <= 0 || cfg.Inactivity > cfg.TTL {
		cfg.Inactivity = min(2*time.Minute, cfg.TTL)
	}

	if cfg.SafetyMargin <= 0 || cfg.SafetyMargin >= cfg.TTL {
		cfg.SafetyMargin = cfg.TTL / 30
	}

	if cfg.Sweep == "" {
		cfg.Sweep = "@every 30s"
	}

	return &Buffer{
		cfg:     cfg,
		flusher: flusher,
		log:     log,
		now:     time.Now,
		threads: make(map[string]*thread),
	}
}

func (b *Buffer) thread(id string) *thread {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.threads[id]
	if !ok {
		t = &thread{}
		b.threads[id] = t
	}

	return t
}

// lockThread returns the live thread for id with its lock held.
func (b *Buffer) lockThread(id string) *thread {
	for {
		t := b.thread(id)
		t.mu.Lock()

		if !t.dead {
			return t
		}

		t.mu.Unlock()
	}
}

// Append adds a message to its thread. If the thread's hard expiry is within
// the safety margin, the buffered messages are flushed before the new one is
// appended. Reaching the message threshold flushes the window including the
// new message. A flush failure is reported in the result, never as an error,
// and loses nothing.
func (b *Buffer) Append(ctx context.Context, msg Message) (AppendResult, error) {
	now := b.now()
	if err := msg.Validate(now); err != nil {
		return AppendResult{}, err
	}

	t := b.lockThread(msg.ThreadID)
	defer t.mu.Unlock()

	res := AppendResult{ThreadID: msg.ThreadID}

	if len(t.msgs) > 0 && t.deadline.Sub(now) < b.cfg.SafetyMargin {
		n, err := b.flushLocked(ctx, msg.ThreadID, t, TriggerExpiry)
		res.record(TriggerExpiry, n, err)
	}

	if len(t.msgs) == 0 {
		t.deadline = now.Add(b.cfg.TTL)
	}

	t.msgs = append(t.msgs, msg)
	t.lastAppend = now
	t.state = StateBuffering

	metrics.BufferedMessages.Set(float64(b.held.Add(1)))

	if len(t.msgs) >= b.cfg.MaxMessages {
		n, err := b.flushLocked(ctx, msg.ThreadID, t, TriggerCount)
		res.record(TriggerCount, n, err)
	}

	res.Buffered = len(t.msgs)
	res.State = t.state.String()

	return res, nil
}

func (r *AppendResult) record(trigger string, flushed int, err error) {
	r.Flushed += flushed
	r.Trigger = trigger

	if err != nil {
		r.FlushError = err.Error()
	}
}

// flushLocked writes the thread's messages downstream. The thread lock must
// be held. On failure every message stays queued in order.
func (b *Buffer) flushLocked(ctx context.Context, threadID string, t *thread, trigger string) (int, error) {
	if len(t.msgs) == 0 {
		return 0, nil
	}

	t.state = StateFlushing
	batch := append([]Message(nil), t.msgs...)

	if err := b.flusher.Flush(ctx, threadID, batch); err != nil {
		t.state = StateBuffering

		metrics.BufferFlushes.WithLabelValues(trigger, "failure").Inc()
		b.log.WithError(err).WithFields(logrus.Fields{
			"thread_id": threadID,
			"trigger":   trigger,
			"messages":  len(batch),
		}).Warn("buffer flush failed, keeping messages queued")

		return 0, fmt.Errorf("flushing thread %s: %w", threadID, err)
	}

	t.msgs = t.msgs[:0]
	t.state = StateEmpty
	t.deadline = time.Time{}

	metrics.BufferFlushes.WithLabelValues(trigger, "success").Inc()
	metrics.BufferedMessages.Set(float64(b.held.Add(-int64(len(batch)))))

	b.log.WithFields(logrus.Fields{
		"thread_id": threadID,
		"trigger":   trigger,
		"messages":  len(batch),
	}).Debug("buffer flushed")

	return len(batch), nil
}

// FlushThread force-flushes one thread.
func (b *Buffer) FlushThread(ctx context.Context, threadID string) (int, error) {
	b.mu.Lock()
	t, ok := b.threads[threadID]
	b.mu.Unlock()

	if !ok {
		return 0, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return b.flushLocked(ctx, threadID, t, TriggerManual)
}

// Pending returns the buffered messages of a thread, oldest first.
func (b *Buffer) Pending(threadID string) []Message {
	b.mu.Lock()
	t, ok := b.threads[threadID]
	b.mu.Unlock()

	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Message(nil), t.msgs...)
}

// Sweep flushes threads that went inactive or are close to expiry, and drops
// idle empty threads. It backstops the checks made on each arrival.
func (b *Buffer) Sweep(ctx context.Context) {
	now := b.now()

	for id, t := range b.snapshot() {
		t.mu.Lock()

		switch {
		case len(t.msgs) == 0:
		case t.deadline.Sub(now) < b.cfg.SafetyMargin:
			b.flushLocked(ctx, id, t, TriggerExpiry) //nolint:errcheck // logged in flushLocked; retried next sweep.
		case now.Sub(t.lastAppend) >= b.cfg.Inactivity:
			b.flushLocked(ctx, id, t, TriggerInactivity) //nolint:errcheck // logged in flushLocked; retried next sweep.
		}

		t.mu.Unlock()
	}

	b.dropEmpty()
}

// FlushAll flushes every thread, used on shutdown. It returns the joined
// errors of threads that could not be flushed.
func (b *Buffer) FlushAll(ctx context.Context) error {
	var errs []error

	for id, t := range b.snapshot() {
		t.mu.Lock()
		if _, err := b.flushLocked(ctx, id, t, TriggerShutdown); err != nil {
			errs = append(errs, err)
		}
		t.mu.Unlock()
	}

	b.dropEmpty()

	return errors.Join(errs...)
}

func (b *Buffer) snapshot() map[string]*thread {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]*thread, len(b.threads))
	for id, t := range b.threads {
		out[id] = t
	}

	return out
}

func (b *Buffer) dropEmpty() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, t := range b.threads {
		if !t.mu.TryLock() {
			continue
		}

		if len(t.msgs) == 0 {
			t.dead = true
			delete(b.threads, id)
		}

		t.mu.Unlock()
	}
}

// Start schedules the periodic sweep.
func (b *Buffer) Start() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	b.cron = cron.New(cron.WithParser(parser))

	_, err := b.cron.AddFunc(b.cfg.Sweep, func() {
		// Skip the tick if the previous sweep is still running.
		if !b.sweepMu.TryLock() {
			b.log.Warn("buffer sweep still running, skipping tick")

			return
		}
		defer b.sweepMu.Unlock()

		b.Sweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("scheduling buffer sweep %q: %w", b.cfg.Sweep, err)
	}

	b.cron.Start()
	b.log.WithField("schedule", b.cfg.Sweep).Info("buffer sweep scheduled")

	return nil
}

// Stop halts the sweep, waits for a running one, and flushes every thread.
func (b *Buffer) Stop(ctx context.Context) error {
	if b.cron != nil {
		<-b.cron.Stop().Done()
	}

	return b.FlushAll(ctx)
}
