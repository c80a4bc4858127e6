package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gzhole/deskpilot/internal/policy"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is a snapshot of one planner session. Maps and slices are copies;
// mutating them does not affect the store.
type Session struct {
	ID                   string
	Task                 string
	Constraints          policy.Constraints
	CreatedAt            time.Time
	PendingConfirmations map[string]string // confirmation id -> fingerprint
	ApprovedFingerprints []string
	Metadata             map[string]any
}

// Store tracks sessions, pending confirmation tokens and approved action
// fingerprints. In-memory now; the interface leaves room for a shared
// backend.
type Store interface {
	Create(task string, constraints policy.Constraints) (Session, error)
	Get(id string) (Session, error)

	// PutPendingConfirmation registers fingerprint under a fresh token.
	PutPendingConfirmation(id, fingerprint string) (string, error)

	// ApproveConfirmation consumes the token and approves its fingerprint.
	// It reports false when the token is unknown or already used.
	ApproveConfirmation(id, confirmationID string) (bool, error)

	// RejectConfirmation consumes the token without approving anything.
	RejectConfirmation(id, confirmationID string) (bool, error)

	IsApproved(id, fingerprint string) (bool, error)

	// RequireConfirmation atomically checks approval and, when the
	// fingerprint is not yet approved, registers a pending token for it.
	RequireConfirmation(id, fingerprint string) (confirmationID string, required bool, err error)

	SetMetadata(id, key string, value any) error
	Len() int
}

type entry struct {
	mu       sync.Mutex
	id       string
	task     string
	cons     policy.Constraints
	created  time.Time
	pending  map[string]string
	approved map[string]struct{}
	order    []string
	metadata map[string]any
}

// MemoryStore is a thread-safe in-memory Store. The registry lock only
// guards the session map; each session carries its own mutex.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*entry),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *MemoryStore) Create(task string, constraints policy.Constraints) (Session, error) {
	if err := constraints.Validate(); err != nil {
		return Session{}, err
	}
	e := &entry{
		id:       newID(),
		task:     task,
		cons:     constraints.WithDefaults(),
		created:  s.now(),
		pending:  make(map[string]string),
		approved: make(map[string]struct{}),
		metadata: make(map[string]any),
	}

	s.mu.Lock()
	s.sessions[e.id] = e
	s.mu.Unlock()

	return e.snapshot(), nil
}

func (s *MemoryStore) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func (s *MemoryStore) Get(id string) (Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), nil
}

func (s *MemoryStore) PutPendingConfirmation(id, fingerprint string) (string, error) {
	e, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addPending(fingerprint), nil
}

func (s *MemoryStore) ApproveConfirmation(id, confirmationID string) (bool, error) {
	e, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	fp, ok := e.pending[confirmationID]
	if !ok {
		return false, nil
	}
	delete(e.pending, confirmationID)
	if _, seen := e.approved[fp]; !seen {
		e.approved[fp] = struct{}{}
		e.order = append(e.order, fp)
	}
	return true, nil
}

func (s *MemoryStore) RejectConfirmation(id, confirmationID string) (bool, error) {
	e, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.pending[confirmationID]; !ok {
		return false, nil
	}
	delete(e.pending, confirmationID)
	return true, nil
}

func (s *MemoryStore) IsApproved(id, fingerprint string) (bool, error) {
	e, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.approved[fingerprint]
	return ok, nil
}

func (s *MemoryStore) RequireConfirmation(id, fingerprint string) (string, bool, error) {
	e, err := s.lookup(id)
	if err != nil {
		return "", false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.approved[fingerprint]; ok {
		return "", false, nil
	}
	return e.addPending(fingerprint), true, nil
}

func (s *MemoryStore) SetMetadata(id, key string, value any) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metadata[key] = value
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// addPending must be called with e.mu held.
func (e *entry) addPending(fingerprint string) string {
	cid := newID()
	e.pending[cid] = fingerprint
	return cid
}

// snapshot must be called with e.mu held (or before e is published).
func (e *entry) snapshot() Session {
	pending := make(map[string]string, len(e.pending))
	for k, v := range e.pending {
		pending[k] = v
	}
	meta := make(map[string]any, len(e.metadata))
	for k, v := range e.metadata {
		meta[k] = v
	}
	return Session{
		ID:                   e.id,
		Task:                 e.task,
		Constraints:          policy.Constraints{BlockedApps: append([]string{}, e.cons.BlockedApps...), MaxSteps: e.cons.MaxSteps},
		CreatedAt:            e.created,
		PendingConfirmations: pending,
		ApprovedFingerprints: append([]string{}, e.order...),
		Metadata:             meta,
	}
}
