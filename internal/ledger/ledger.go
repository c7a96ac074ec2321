// Package ledger persists why changes were rejected. Records are appended
// as one JSON object per line so a concurrent status reader can scan the
// file without a write lock, tolerating a torn last line.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wardenhq/warden/internal/models"
)

const ledgerFile = "failures.jsonl"

// Ledger is the append-only failure store.
type Ledger struct {
	path      string
	enabled   bool
	threshold int
	retention time.Duration

	mu sync.Mutex // serializes appends and retention rewrites
}

// Options configure a ledger.
type Options struct {
	Enabled          bool
	BackoffThreshold int
	RetentionDays    int
}

// New creates a ledger rooted at dir. The directory is created on first write.
func New(dir string, opts Options) *Ledger {
	threshold := opts.BackoffThreshold
	if threshold <= 0 {
		threshold = 2
	}
	retention := opts.RetentionDays
	if retention <= 0 {
		retention = 90
	}
	return &Ledger{
		path:      filepath.Join(dir, ledgerFile),
		enabled:   opts.Enabled,
		threshold: threshold,
		retention: time.Duration(retention) * 24 * time.Hour,
	}
}

// Path returns the on-disk location of the ledger file.
func (l *Ledger) Path() string { return l.path }

// Record appends a failure record, assigning ID, timestamp, and attempt
// number when unset. Returns false when the ledger is disabled or the write
// fails; losing one record is preferable to failing the loop.
func (l *Ledger) Record(rec models.FailureRecord) bool {
	if !l.enabled {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Category == "" {
		rec.Category = models.CategoryOther
	}
	if rec.AttemptNumber == 0 {
		prior := 0
		for _, r := range l.load() {
			if r.ItemID == rec.ItemID && r.Repository == rec.Repository {
				prior++
			}
		}
		rec.AttemptNumber = prior + 1
	}

	l.sweepExpiredLocked()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return false
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return false
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return false
	}
	return true
}

// ShouldSkip reports whether an item has failed often enough that the
// work-selection stage should stop re-offering it.
func (l *Ledger) ShouldSkip(itemID, repository string) (bool, string) {
	if !l.enabled {
		return false, ""
	}
	count := 0
	var last models.FailureRecord
	for _, r := range l.load() {
		if r.ItemID == itemID && r.Repository == repository {
			count++
			last = r
		}
	}
	if count < l.threshold {
		return false, ""
	}
	return true, fmt.Sprintf("item %s failed %d times in %s (last: %s); backing off",
		itemID, count, repository, last.Category)
}

// load reads every intact record. It takes no lock: the format guarantees a
// reader sees whole lines plus at most one torn trailer, which is skipped.
func (l *Ledger) load() []models.FailureRecord {
	f, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var records []models.FailureRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec models.FailureRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // torn or corrupt line
		}
		records = append(records, rec)
	}
	return records
}

// sweepExpiredLocked rewrites the file without records past retention.
// Caller holds l.mu.
func (l *Ledger) sweepExpiredLocked() {
	records := l.load()
	if len(records) == 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-l.retention)
	kept := records[:0]
	for _, r := range records {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return
	}

	tmp := l.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return
	}
	w := bufio.NewWriter(f)
	for _, r := range kept {
		line, err := json.Marshal(r)
		if err != nil {
			continue
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return
	}
	f.Close()
	_ = os.Rename(tmp, l.path)
}

// newID generates a new ULID string.
func newID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}
