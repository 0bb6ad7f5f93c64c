package form

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrFormNotFound = errors.New("form not found")
	ErrTooManyForms = errors.New("too many open forms")
)

const (
	defaultIdleTimeout = 30 * time.Minute
	defaultMaxForms    = 10000
)

type registryConfig struct {
	idleTimeout time.Duration
	maxForms    int
	now         func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryConfig) error

// WithIdleTimeout sets how long a form may go untouched before it is dropped.
// Forms with a submission in flight are never dropped.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(cfg *registryConfig) error {
		if d <= 0 {
			return errors.New("form: idle timeout must be positive")
		}
		cfg.idleTimeout = d
		return nil
	}
}

// WithMaxForms caps the number of live forms. Create fails with
// ErrTooManyForms once the cap is reached.
func WithMaxForms(n int) RegistryOption {
	return func(cfg *registryConfig) error {
		if n <= 0 {
			return errors.New("form: max forms must be positive")
		}
		cfg.maxForms = n
		return nil
	}
}

// WithClock replaces time.Now for idle tracking.
func WithClock(now func() time.Time) RegistryOption {
	return func(cfg *registryConfig) error {
		if now == nil {
			return errors.New("form: clock is required")
		}
		cfg.now = now
		return nil
	}
}

type entry struct {
	c        *Controller
	lastSeen time.Time
}

// Registry tracks the form instances of a session. Every controller it
// creates shares the lead store of the Config it was built with.
type Registry struct {
	cfg  Config
	opts registryConfig

	mu    sync.Mutex
	forms map[string]*entry
}

// NewRegistry validates cfg and returns an empty Registry.
func NewRegistry(cfg Config, opts ...RegistryOption) (*Registry, error) {
	if _, err := New(cfg); err != nil {
		return nil, err
	}

	rc := registryConfig{
		idleTimeout: defaultIdleTimeout,
		maxForms:    defaultMaxForms,
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(&rc); err != nil {
			return nil, err
		}
	}

	return &Registry{
		cfg:   cfg,
		opts:  rc,
		forms: make(map[string]*entry),
	}, nil
}

// Create starts a new form instance and returns its id. Idle forms are
// dropped first.
func (r *Registry) Create() (string, *Controller, error) {
	c, err := New(r.cfg)
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.opts.now()
	r.sweep(now)
	if len(r.forms) >= r.opts.maxForms {
		return "", nil, ErrTooManyForms
	}
	r.forms[id] = &entry{c: c, lastSeen: now}

	return id, c, nil
}

// Get returns the form instance with the given id and marks it as active.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.forms[id]
	if !ok {
		return nil, ErrFormNotFound
	}

	now := r.opts.now()
	if r.expired(e, now) {
		delete(r.forms, id)
		return nil, ErrFormNotFound
	}
	e.lastSeen = now
	return e.c, nil
}

// Len returns the number of live form instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

// sweep drops expired forms. r.mu must be held.
func (r *Registry) sweep(now time.Time) {
	for id, e := range r.forms {
		if r.expired(e, now) {
			delete(r.forms, id)
		}
	}
}

func (r *Registry) expired(e *entry, now time.Time) bool {
	if now.Sub(e.lastSeen) < r.opts.idleTimeout {
		return false
	}
	return e.c.State() != StateSubmitting
}
