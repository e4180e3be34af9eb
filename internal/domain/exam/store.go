package exam

import (
	"fmt"
	"sync"
	"time"
)

// Change describes one committed replacement of a Store's record.
type Change struct {
	Version  uint64
	Previous *ExamRecord
	Current  *ExamRecord
	// Field is the replaced top-level field, "side.vessel.field" for vessel
	// updates, or "reset".
	Field string
}

// FieldReset is the Change.Field of ResetToDefault.
const FieldReset = "reset"

// Listener is notified after every committed change, outside the store lock.
// Notifications arrive in version order, one at a time.
type Listener func(Change)

type notification struct {
	change    Change
	listeners []Listener
}

// Store is the single owner of one session's ExamRecord. Every operation
// produces a new record value; records already handed out are never mutated,
// so callers may compare pointers to detect changes.
type Store struct {
	mu        sync.Mutex
	current   *ExamRecord
	version   uint64
	now       func() time.Time
	listeners map[int]Listener
	nextID    int

	// committed changes not yet delivered, oldest first
	queue      []notification
	delivering bool
}

// NewStore creates a store holding the default record. now supplies the exam
// date for the default record and may be nil to use time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		current:   DefaultRecord(now()),
		now:       now,
		listeners: make(map[int]Listener),
	}
}

// NewStoreWith creates a store seeded with an existing record.
func NewStoreWith(rec *ExamRecord, now func() time.Time) *Store {
	s := NewStore(now)
	if rec != nil {
		s.current = rec
	}
	return s
}

// Current returns the current record snapshot.
func (s *Store) Current() *ExamRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Version returns the number of changes committed so far.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// ReplaceField shallow-replaces one top-level field. Sides and their vessels
// are shared with the previous record.
func (s *Store) ReplaceField(edit RecordEdit) *ExamRecord {
	return s.commit(string(edit.Field), func(prev *ExamRecord) *ExamRecord {
		next := *prev
		edit.apply(&next)
		return &next
	})
}

// UpdateVesselField replaces exactly one field of one vessel. The other side
// and the other five vessels of the same side are shared by pointer with the
// previous record. An invalid side or key panics.
func (s *Store) UpdateVesselField(side Side, key VesselKey, edit VesselEdit) *ExamRecord {
	mustVessel(key)
	if !side.Valid() {
		panic(fmt.Sprintf("exam: invalid side %q", side))
	}
	field := string(side) + "." + key.Code() + "." + string(edit.Field)
	return s.commit(field, func(prev *ExamRecord) *ExamRecord {
		findings := prev.Side(side)
		updated := findings.with(key, edit.Apply(*findings.ref(key)))

		next := *prev
		switch side {
		case Right:
			next.Right = updated
		case Left:
			next.Left = updated
		}
		return &next
	})
}

// ResetToDefault discards the current record in favour of a fresh default.
// Callers must have obtained explicit user confirmation first.
func (s *Store) ResetToDefault() *ExamRecord {
	return s.commit(FieldReset, func(*ExamRecord) *ExamRecord {
		return DefaultRecord(s.now())
	})
}

// Subscribe registers fn for change notifications and returns a function that
// removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// commit swaps in the record built from the current one and queues its
// notification. The first committer to find no delivery running drains the
// queue; others return as soon as their change is queued.
func (s *Store) commit(field string, build func(*ExamRecord) *ExamRecord) *ExamRecord {
	change, deliver := s.swap(field, build)
	if deliver {
		s.deliver()
	}
	return change.Current
}

func (s *Store) swap(field string, build func(*ExamRecord) *ExamRecord) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current
	s.current = build(prev)
	s.version++
	change := Change{Version: s.version, Previous: prev, Current: s.current, Field: field}

	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.queue = append(s.queue, notification{change: change, listeners: listeners})
	if s.delivering {
		return change, false
	}
	s.delivering = true
	return change, true
}

func (s *Store) deliver() {
	drained := false
	defer func() {
		if !drained {
			s.mu.Lock()
			s.delivering = false
			s.mu.Unlock()
		}
	}()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.queue = nil
			s.delivering = false
			s.mu.Unlock()
			drained = true
			return
		}
		n := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		for _, l := range n.listeners {
			l(n.change)
		}
	}
}
