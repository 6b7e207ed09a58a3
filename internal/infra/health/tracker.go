// Package health is the single source of truth for "is tool X currently
// usable," independent of catalog membership and of whether anyone has
// called the tool recently.
package health

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"tooldeck/internal/domain"
)

// NamedRecord pairs a tool name with its health record.
type NamedRecord struct {
	Name   string              `json:"name"`
	Record domain.HealthRecord `json:"record"`
}

// Tracker records per-tool availability. Recording never fails: a broken
// health tracker must not itself become a source of instability. Records use
// per-name locks so unrelated tools never contend.
type Tracker struct {
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	records map[string]*record
}

type record struct {
	mu sync.Mutex
	hr domain.HealthRecord
}

func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		logger:  logger.Named("health"),
		now:     time.Now,
		records: make(map[string]*record),
	}
}

func (t *Tracker) entry(name string) *record {
	t.mu.RLock()
	rec, ok := t.records[name]
	t.mu.RUnlock()
	if ok {
		return rec
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok = t.records[name]; ok {
		return rec
	}
	rec = &record{}
	t.records[name] = rec
	return rec
}

// RecordSuccess flips the record to available. After prior failures it sets
// RecoveredAt and keeps the accumulated error count.
func (t *Tracker) RecordSuccess(name string) {
	rec := t.entry(name)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.hr.Available && rec.hr.ErrorCount > 0 {
		now := t.now()
		rec.hr.RecoveredAt = &now
		t.logger.Info("tool recovered",
			zap.String("tool", name), zap.Int("errorCount", rec.hr.ErrorCount))
	}
	rec.hr.Available = true
}

// RecordFailure flips the record to unavailable, increments the error count
// and overwrites the last error.
func (t *Tracker) RecordFailure(name string, err error) {
	rec := t.entry(name)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := t.now()
	rec.hr.Available = false
	rec.hr.ErrorCount++
	rec.hr.LastErrorAt = &now
	if err != nil {
		rec.hr.LastError = err.Error()
		if kind, ok := domain.KindFrom(err); ok {
			rec.hr.LastErrKind = kind
		} else {
			rec.hr.LastErrKind = domain.ErrExecution
		}
	}
}

// Status returns the record for name, or false if no construction or
// execution has ever been attempted.
func (t *Tracker) Status(name string) (domain.HealthRecord, bool) {
	t.mu.RLock()
	rec, ok := t.records[name]
	t.mu.RUnlock()
	if !ok {
		return domain.HealthRecord{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.hr, true
}

// AllUnhealthy returns every currently unavailable tool, for system-wide
// diagnostics. Order is unspecified.
func (t *Tracker) AllUnhealthy() []NamedRecord {
	t.mu.RLock()
	names := make([]string, 0, len(t.records))
	for name := range t.records {
		names = append(names, name)
	}
	t.mu.RUnlock()

	var out []NamedRecord
	for _, name := range names {
		if hr, ok := t.Status(name); ok && !hr.Available {
			out = append(out, NamedRecord{Name: name, Record: hr})
		}
	}
	return out
}

// Snapshot returns all records, for persistence and diagnostics endpoints.
func (t *Tracker) Snapshot() []NamedRecord {
	t.mu.RLock()
	names := make([]string, 0, len(t.records))
	for name := range t.records {
		names = append(names, name)
	}
	t.mu.RUnlock()

	out := make([]NamedRecord, 0, len(names))
	for _, name := range names {
		if hr, ok := t.Status(name); ok {
			out = append(out, NamedRecord{Name: name, Record: hr})
		}
	}
	return out
}

// Restore seeds records from a persisted snapshot. Existing entries win so a
// restore racing live traffic cannot clobber fresh outcomes.
func (t *Tracker) Restore(records []NamedRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, nr := range records {
		if _, ok := t.records[nr.Name]; ok {
			continue
		}
		t.records[nr.Name] = &record{hr: nr.Record}
	}
}

// Prune drops records whose name fails keep, bounding memory when tools
// leave the catalog for good.
func (t *Tracker) Prune(keep func(name string) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := 0
	for name := range t.records {
		if !keep(name) {
			delete(t.records, name)
			dropped++
		}
	}
	return dropped
}
