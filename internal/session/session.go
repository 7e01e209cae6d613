// Package session tracks, per user, the chosen merge operation and the
// ordered list of files already ingested into storage.
package session

import (
	"sync"

	"github.com/maruthi2426/merge-bot/internal/merge"
)

// State is the position of a user's session in the collection flow.
type State int

const (
	Idle State = iota
	OperationChosen
	Collecting
	ReadyToMerge
)

func (s State) String() string {
	switch s {
	case OperationChosen:
		return "operation_chosen"
	case Collecting:
		return "collecting"
	case ReadyToMerge:
		return "ready_to_merge"
	}
	return "idle"
}

// File is one ingested input.
type File struct {
	SourceRef string `json:"source_ref"` // transport file id
	Key       string `json:"key"`        // storage key
	Name      string `json:"name"`       // submitted file name
}

// Session is a copy of one user's collection state.
type Session struct {
	Operation  merge.Operation
	Files      []File
	Captions   []string
	Generation uint64
}

// Snapshot is what RequestDone hands to the pipeline.
type Snapshot struct {
	UserID     int64
	Operation  merge.Operation
	Files      []File
	Generation uint64
}

type entry struct {
	op       merge.Operation
	files    []File
	captions []string
	gen      uint64
	merging  bool
}

// Machine is the keyed session store. All methods are safe for concurrent use.
type Machine struct {
	mu       sync.Mutex
	sessions map[int64]*entry
	nextGen  uint64
}

func NewMachine() *Machine {
	return &Machine{sessions: make(map[int64]*entry)}
}

// get returns the user's entry, creating it on first interaction. Caller holds mu.
func (m *Machine) get(user int64) *entry {
	e, ok := m.sessions[user]
	if !ok {
		e = &entry{}
		m.sessions[user] = e
	}
	return e
}

// ChooseOperation selects op for the user and clears any collected files.
// It returns the files that were dropped so their objects can be purged.
func (m *Machine) ChooseOperation(user int64, op merge.Operation) ([]File, error) {
	if !op.Valid() {
		return nil, merge.ErrUnknownOperation
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(user)
	var dropped []File
	if !e.merging {
		// files of an in-flight merge stay owned by its snapshot
		dropped = e.files
	}
	m.nextGen++
	e.op = op
	e.files = nil
	e.captions = nil
	e.gen = m.nextGen
	return dropped, nil
}

// Generation returns the user's current operation and session generation.
// A file ingested against gen is only accepted while gen is still current.
func (m *Machine) Generation(user int64) (merge.Operation, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[user]
	if !ok || e.op == merge.OpUnset {
		return merge.OpUnset, 0, merge.ErrNoOperationSelected
	}
	if e.merging {
		return e.op, e.gen, merge.ErrMergeInProgress
	}
	return e.op, e.gen, nil
}

// AddFile appends an ingested file and its caption to the session of generation gen.
func (m *Machine) AddFile(user int64, gen uint64, f File, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[user]
	if !ok || e.op == merge.OpUnset {
		return merge.ErrNoOperationSelected
	}
	if e.merging {
		return merge.ErrMergeInProgress
	}
	if e.gen != gen {
		return merge.ErrSessionReset
	}
	e.files = append(e.files, f)
	e.captions = append(e.captions, caption)
	return nil
}

// RequestDone validates the file count and moves the session to ReadyToMerge.
// The session keeps its files until Complete is called.
func (m *Machine) RequestDone(user int64) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[user]
	if !ok || e.op == merge.OpUnset {
		return Snapshot{}, merge.ErrNoOperationSelected
	}
	if e.merging {
		return Snapshot{}, merge.ErrMergeInProgress
	}
	if err := e.op.ValidateCount(len(e.files)); err != nil {
		return Snapshot{}, err
	}
	e.merging = true
	files := make([]File, len(e.files))
	copy(files, e.files)
	return Snapshot{
		UserID:     user,
		Operation:  e.op,
		Files:      files,
		Generation: e.gen,
	}, nil
}

// Complete ends a successful merge. The session is deleted if it still is
// the one the snapshot was taken from; a newer session is kept.
func (m *Machine) Complete(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[snap.UserID]
	if !ok {
		return
	}
	e.merging = false
	if e.gen == snap.Generation || e.op == merge.OpUnset {
		delete(m.sessions, snap.UserID)
	}
}

// Release ends a failed merge and returns the session to Collecting with
// its files intact. It reports false when the session was replaced or reset
// during the merge, in which case nothing refers to the snapshot files anymore.
func (m *Machine) Release(snap Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[snap.UserID]
	if !ok {
		return false
	}
	e.merging = false
	if e.gen != snap.Generation {
		if e.op == merge.OpUnset {
			delete(m.sessions, snap.UserID)
		}
		return false
	}
	return true
}

// Reset abandons the user's session and returns the files it held.
// An in-flight merge keeps running and still reports through Complete or
// Release; its files are not returned here.
func (m *Machine) Reset(user int64) []File {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[user]
	if !ok {
		return nil
	}
	if e.merging {
		e.op = merge.OpUnset
		e.files = nil
		e.captions = nil
		m.nextGen++
		e.gen = m.nextGen
		return nil
	}
	delete(m.sessions, user)
	return e.files
}

// State reports where the user's session is.
func (m *Machine) State(user int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[user]
	switch {
	case !ok:
		return Idle
	case e.merging:
		return ReadyToMerge
	case e.op == merge.OpUnset:
		return Idle
	case len(e.files) == 0:
		return OperationChosen
	}
	return Collecting
}

// Get returns a copy of the user's session.
func (m *Machine) Get(user int64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[user]
	if !ok {
		return Session{}, false
	}
	s := Session{
		Operation:  e.op,
		Files:      make([]File, len(e.files)),
		Captions:   make([]string, len(e.captions)),
		Generation: e.gen,
	}
	copy(s.Files, e.files)
	copy(s.Captions, e.captions)
	return s, true
}

// size returns the number of live sessions.
func (m *Machine) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
