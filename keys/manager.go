package keys

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore/internal/logging"
)

// DefaultRetryInterval throttles lazy reloads after a failed load.
const DefaultRetryInterval = 5 * time.Second

// Options configures a Manager.
type Options struct {
	// ActiveKeyID selects the signing key. Empty means the first private key.
	ActiveKeyID string
	// RetryInterval is the minimum gap between load attempts while no key
	// set is available. Zero means DefaultRetryInterval.
	RetryInterval time.Duration
	Logger        *slog.Logger
	// Clock overrides time.Now.
	Clock func() time.Time
}

// Manager owns the current key set and reloads it on demand.
type Manager struct {
	source Source
	opts   Options
	log    logging.Logger

	set atomic.Pointer[Set]

	mu          sync.Mutex
	lastErr     error
	lastAttempt time.Time
	failures    atomic.Uint64
}

// NewManager creates a Manager and attempts an eager load. A load failure is
// logged and kept; the returned Manager is always usable.
func NewManager(ctx context.Context, source Source, opts Options) *Manager {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	m := &Manager{
		source: source,
		opts:   opts,
		log:    logging.New(opts.Logger).With("component", "keys"),
	}
	if _, err := m.Load(ctx); err != nil {
		m.log.Error(ctx, "initial key load failed, will retry on first use", "error", err)
	}
	return m
}

// Load reads the source unconditionally and installs the result on success.
// A failed reload keeps the previous set in place.
func (m *Manager) Load(ctx context.Context) (*Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx)
}

func (m *Manager) loadLocked(ctx context.Context) (*Set, error) {
	m.lastAttempt = m.opts.Clock()
	if m.source == nil {
		m.lastErr = fmt.Errorf("%w: no key source configured", ErrKeyLoad)
		m.failures.Add(1)
		return nil, m.lastErr
	}
	pub, priv, err := m.source.Load(ctx)
	if err != nil {
		m.lastErr = err
		m.failures.Add(1)
		return nil, err
	}
	set, err := ParseSet(pub, priv, m.opts.ActiveKeyID)
	if err != nil {
		m.lastErr = err
		m.failures.Add(1)
		return nil, err
	}
	m.set.Store(set)
	m.lastErr = nil
	m.log.Info(ctx, "key set loaded", "active_kid", set.signing.KeyID, "verification_keys", len(set.order))
	return set, nil
}

// Current returns the loaded set, retrying the load lazily when none is
// available and the retry interval has elapsed.
func (m *Manager) Current(ctx context.Context) (*Set, error) {
	if set := m.set.Load(); set != nil {
		return set, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if set := m.set.Load(); set != nil {
		return set, nil
	}
	if !m.lastAttempt.IsZero() && m.opts.Clock().Sub(m.lastAttempt) < m.opts.RetryInterval {
		return nil, m.notInitialized()
	}
	set, err := m.loadLocked(ctx)
	if err != nil {
		m.log.Error(ctx, "lazy key load failed", "error", err)
		return nil, m.notInitialized()
	}
	return set, nil
}

func (m *Manager) notInitialized() error {
	if m.lastErr == nil {
		return ErrNotInitialized
	}
	return fmt.Errorf("%w: %v", ErrNotInitialized, m.lastErr)
}

// Signing returns the active signing pair.
func (m *Manager) Signing(ctx context.Context) (KeyPair, error) {
	set, err := m.Current(ctx)
	if err != nil {
		return KeyPair{}, err
	}
	return set.Signing(), nil
}

// Verification returns the verification key for kid.
func (m *Manager) Verification(ctx context.Context, kid string) (VerificationKey, error) {
	set, err := m.Current(ctx)
	if err != nil {
		return VerificationKey{}, err
	}
	return set.Verification(kid)
}

// PublicJWKS exports every verification key as a JWK Set document.
func (m *Manager) PublicJWKS(ctx context.Context) ([]byte, error) {
	set, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	return set.PublicJWKS()
}

// Ready reports whether a key set is loaded. It never triggers a load.
func (m *Manager) Ready() bool { return m.set.Load() != nil }

// LoadFailures counts failed load attempts since creation.
func (m *Manager) LoadFailures() uint64 { return m.failures.Load() }
