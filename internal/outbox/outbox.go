// Package outbox is the durable notification retry queue: a single JSON
// array file of undelivered payloads, redelivered with exponential backoff
// across loop invocations. It decouples "a decision was reached" from "a
// human was told".
package outbox

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const queueFile = "outbox.json"

// Entry is one undelivered notification.
type Entry struct {
	ID          string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	CreatedAt   time.Time       `json:"created_at"`
	NextRetryAt time.Time       `json:"next_retry_at"`
}

// Sender delivers one payload; any non-nil error counts as a failed attempt.
// A sender that is not configured for delivery reports Enabled false and is
// never invoked, so nothing burns retry budget against it.
type Sender interface {
	Send(ctx context.Context, payload json.RawMessage) error
	Enabled() bool
}

// Options configure a queue.
type Options struct {
	MaxRetries    int
	BaseDelay     time.Duration
	RetentionDays int
}

// Queue is the persistent retry queue. Every load-mutate-save cycle runs
// under one mutex; saves are atomic renames so a concurrent status reader
// never sees a torn file.
type Queue struct {
	path       string
	sender     Sender
	maxRetries int
	baseDelay  time.Duration
	retention  time.Duration

	mu  sync.Mutex
	now func() time.Time // replaceable in tests
}

// New creates a queue rooted at dir, delivering through sender.
func New(dir string, sender Sender, opts Options) *Queue {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	base := opts.BaseDelay
	if base <= 0 {
		base = time.Minute
	}
	retention := opts.RetentionDays
	if retention <= 0 {
		retention = 7
	}
	return &Queue{
		path:       filepath.Join(dir, queueFile),
		sender:     sender,
		maxRetries: maxRetries,
		baseDelay:  base,
		retention:  time.Duration(retention) * 24 * time.Hour,
		now:        time.Now,
	}
}

// Path returns the on-disk location of the queue file.
func (q *Queue) Path() string { return q.path }

// delay computes the backoff before the given attempt: base * 2^(attempt-1).
func (q *Queue) delay(attempt int) time.Duration {
	d := q.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Enqueue adds a payload for retry at the given attempt number. Returns
// false once attempt exceeds the retry budget or persistence fails.
func (q *Queue) Enqueue(payload json.RawMessage, attempt int) bool {
	if attempt > q.maxRetries {
		return false
	}
	if attempt < 1 {
		attempt = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	entries := q.pruneExpired(q.load(), now)
	entries = append(entries, Entry{
		ID:          newID(),
		Payload:     payload,
		Attempt:     attempt,
		CreatedAt:   now,
		NextRetryAt: now.Add(q.delay(attempt)),
	})
	return q.save(entries) == nil
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Processed int // entries whose delivery was attempted
	Succeeded int
	Requeued  int
	Failed    int // dropped after exhausting retries
	Expired   int // dropped for exceeding retention age
}

// Drain attempts delivery of every due entry. Future entries are untouched;
// entries past retention are dropped as expired; an entry failing at its
// final attempt is dropped as failed. With a disabled sender, nothing is
// attempted: entries wait for delivery to be configured or for retention
// to expire them.
func (q *Queue) Drain(ctx context.Context) DrainResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	var res DrainResult
	now := q.now().UTC()
	enabled := q.sender.Enabled()
	var kept []Entry
	for _, e := range q.load() {
		if now.Sub(e.CreatedAt) > q.retention {
			res.Expired++
			continue
		}
		if !enabled || e.NextRetryAt.After(now) {
			kept = append(kept, e)
			continue
		}

		res.Processed++
		if err := q.sender.Send(ctx, e.Payload); err == nil {
			res.Succeeded++
			continue
		}
		if e.Attempt >= q.maxRetries {
			res.Failed++
			continue
		}
		e.Attempt++
		e.NextRetryAt = now.Add(q.delay(e.Attempt))
		kept = append(kept, e)
		res.Requeued++
	}
	_ = q.save(kept)
	return res
}

// Status describes the queue for dashboards.
type Status struct {
	Size               int
	OldestAgeMinutes   int
	NextRetryInSeconds int
}

// QueueStatus reads the queue without the write lock; atomic saves keep the
// file whole for readers.
func (q *Queue) QueueStatus() Status {
	entries := q.load()
	st := Status{Size: len(entries)}
	if len(entries) == 0 {
		return st
	}

	now := q.now().UTC()
	oldest := entries[0].CreatedAt
	next := entries[0].NextRetryAt
	for _, e := range entries[1:] {
		if e.CreatedAt.Before(oldest) {
			oldest = e.CreatedAt
		}
		if e.NextRetryAt.Before(next) {
			next = e.NextRetryAt
		}
	}
	st.OldestAgeMinutes = int(now.Sub(oldest).Minutes())
	if until := next.Sub(now); until > 0 {
		st.NextRetryInSeconds = int(until.Seconds())
	}
	return st
}

func (q *Queue) pruneExpired(entries []Entry, now time.Time) []Entry {
	kept := entries[:0]
	for _, e := range entries {
		if now.Sub(e.CreatedAt) <= q.retention {
			kept = append(kept, e)
		}
	}
	return kept
}

func (q *Queue) load() []Entry {
	b, err := os.ReadFile(q.path)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil
	}
	return entries
}

// save writes the full queue atomically (write temp, rename).
func (q *Queue) save(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return err
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, q.path)
}

// newID generates a new ULID string.
func newID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}
