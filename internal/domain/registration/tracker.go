package registration

import (
	"device-adapter-core/internal/domain/model"
	"sort"
	"sync"
	"time"
)

// Observer is told about every record change. prev is nil for a new record
// and next is nil when tracking was dropped.
type Observer func(prev, next *model.RegistrationRecord)

// Tracker is the process-wide table of device registrations keyed by
// normalized identity. All methods are safe for concurrent use; every
// check-and-set happens under one mutex.
type Tracker struct {
	mu        sync.Mutex
	records   map[string]*model.RegistrationRecord
	observers []Observer
	now       func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		records: make(map[string]*model.RegistrationRecord),
		now:     time.Now,
	}
}

// Observe registers fn. Observers run after the lock is released.
func (t *Tracker) Observe(fn Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// TryBegin claims identity for a setup attempt.
func (t *Tracker) TryBegin(identity string) model.BeginResult {
	t.mu.Lock()
	rec, ok := t.records[identity]
	if ok {
		switch {
		case rec.State == model.StateRegistered:
			t.mu.Unlock()
			return model.AlreadyConfigured
		case rec.State == model.StateAwaitingPairing, rec.InFlight:
			t.mu.Unlock()
			return model.AlreadyInFlight
		}
	}
	prev := copyOf(rec)
	if !ok {
		rec = &model.RegistrationRecord{Identity: identity}
		t.records[identity] = rec
	}
	rec.State = model.StateUnregistered
	rec.InFlight = true
	rec.Reason = ""
	rec.UpdatedAt = t.now()
	next := copyOf(rec)
	observers := t.observers
	t.mu.Unlock()

	notify(observers, prev, next)
	return model.Proceed
}

// MarkAwaiting moves identity into AwaitingPairing with the pending request id.
func (t *Tracker) MarkAwaiting(identity, requestID string) {
	t.update(identity, func(rec *model.RegistrationRecord) bool {
		rec.State = model.StateAwaitingPairing
		rec.PairingRequestID = requestID
		rec.InFlight = false
		return true
	})
}

// BeginRetry claims an AwaitingPairing identity for a confirmation attempt.
// It returns false when the identity is not awaiting or already retrying.
func (t *Tracker) BeginRetry(identity string) bool {
	return t.update(identity, func(rec *model.RegistrationRecord) bool {
		if rec.State != model.StateAwaitingPairing || rec.InFlight {
			return false
		}
		rec.InFlight = true
		return true
	})
}

// EndRetry releases a confirmation attempt that failed but keeps the flow.
func (t *Tracker) EndRetry(identity, reason string) {
	t.update(identity, func(rec *model.RegistrationRecord) bool {
		if rec.State != model.StateAwaitingPairing {
			return false
		}
		rec.InFlight = false
		rec.Reason = reason
		return true
	})
}

// Complete marks identity Registered and clears the pairing token.
// It returns false if the identity was already registered or is unknown.
func (t *Tracker) Complete(identity string) bool {
	return t.update(identity, func(rec *model.RegistrationRecord) bool {
		if rec.State == model.StateRegistered {
			return false
		}
		rec.State = model.StateRegistered
		rec.PairingRequestID = ""
		rec.InFlight = false
		rec.Reason = ""
		return true
	})
}

// Fail drops tracking for identity so a later TryBegin proceeds again.
// Registered identities are left alone; use Remove for those.
func (t *Tracker) Fail(identity, reason string) {
	t.mu.Lock()
	rec, ok := t.records[identity]
	if !ok || rec.State == model.StateRegistered {
		t.mu.Unlock()
		return
	}
	prev := copyOf(rec)
	prev.Reason = reason
	delete(t.records, identity)
	observers := t.observers
	t.mu.Unlock()

	notify(observers, prev, nil)
}

// Remove forgets identity whatever its state, e.g. on device deregistration.
func (t *Tracker) Remove(identity string) bool {
	t.mu.Lock()
	rec, ok := t.records[identity]
	if !ok {
		t.mu.Unlock()
		return false
	}
	prev := copyOf(rec)
	delete(t.records, identity)
	observers := t.observers
	t.mu.Unlock()

	notify(observers, prev, nil)
	return true
}

// Get returns a copy of the record for identity.
func (t *Tracker) Get(identity string) (model.RegistrationRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[identity]
	if !ok {
		return model.RegistrationRecord{Identity: identity, State: model.StateUnregistered}, false
	}
	return *rec, true
}

// Snapshot returns copies of all records ordered by identity.
func (t *Tracker) Snapshot() []model.RegistrationRecord {
	t.mu.Lock()
	out := make([]model.RegistrationRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

func (t *Tracker) update(identity string, fn func(rec *model.RegistrationRecord) bool) bool {
	t.mu.Lock()
	rec, ok := t.records[identity]
	if !ok {
		t.mu.Unlock()
		return false
	}
	prev := copyOf(rec)
	if !fn(rec) {
		t.mu.Unlock()
		return false
	}
	rec.UpdatedAt = t.now()
	next := copyOf(rec)
	observers := t.observers
	t.mu.Unlock()

	notify(observers, prev, next)
	return true
}

func copyOf(rec *model.RegistrationRecord) *model.RegistrationRecord {
	if rec == nil {
		return nil
	}
	c := *rec
	return &c
}

func notify(observers []Observer, prev, next *model.RegistrationRecord) {
	for _, fn := range observers {
		fn(prev, next)
	}
}
