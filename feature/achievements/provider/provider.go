package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"trophy-manager/feature/achievements/reconcile"

	"golang.org/x/time/rate"
)

// ErrUnknownProvider indicates no fetcher is registered under the key.
var ErrUnknownProvider = errors.New("unknown provider")

// Fetcher fetches achievement data for one title/identity pair from a single
// provider backend. Implementations live outside the core; the reconciler
// only ever sees the normalized Snapshot.
type Fetcher interface {
	// Key is the stable provider name (e.g. "steam", "retro", "gog").
	Key() string
	// Fetch returns the normalized snapshot for a title. A transient failure
	// returns an error and leaves the cached entry untouched.
	Fetch(ctx context.Context, titleExternalID, identityExternalID string) (*reconcile.Snapshot, error)
	// Sequential reports whether this provider's backend is rate-limit
	// sensitive and its targets must not run concurrently.
	Sequential() bool
}

// Registry holds the registered fetchers, honoring the enable-list from
// configuration.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
	enabled  map[string]struct{} // nil means all enabled
}

// NewRegistry creates a registry. enabledKeys nil or empty enables all
// registered providers.
func NewRegistry(enabledKeys []string) *Registry {
	var enabled map[string]struct{}
	if len(enabledKeys) > 0 {
		enabled = make(map[string]struct{}, len(enabledKeys))
		for _, key := range enabledKeys {
			enabled[key] = struct{}{}
		}
	}
	return &Registry{
		fetchers: make(map[string]Fetcher),
		enabled:  enabled,
	}
}

// Register adds a fetcher. Re-registering a key replaces the previous one.
func (r *Registry) Register(f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[f.Key()] = f
}

// Get returns the fetcher for a key, or ErrUnknownProvider when the key is
// unregistered or disabled by configuration.
func (r *Registry) Get(key string) (Fetcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.enabled != nil {
		if _, ok := r.enabled[key]; !ok {
			return nil, fmt.Errorf("%w: %s (disabled)", ErrUnknownProvider, key)
		}
	}
	f, ok := r.fetchers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, key)
	}
	return f, nil
}

// Keys returns the enabled provider keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.fetchers))
	for key := range r.fetchers {
		if r.enabled != nil {
			if _, ok := r.enabled[key]; !ok {
				continue
			}
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// RateLimited wraps a fetcher with a token-bucket limiter so a batch cannot
// hammer a provider backend. Wait blocks until a token is available or the
// context is cancelled.
func RateLimited(f Fetcher, perSecond float64, burst int) Fetcher {
	if perSecond <= 0 {
		return f
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedFetcher{
		Fetcher: f,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

type rateLimitedFetcher struct {
	Fetcher
	limiter *rate.Limiter
}

func (f *rateLimitedFetcher) Fetch(ctx context.Context, titleExternalID, identityExternalID string) (*reconcile.Snapshot, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return f.Fetcher.Fetch(ctx, titleExternalID, identityExternalID)
}
