package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrNoOracle is returned when no capability is registered for the
	// requested intent type.
	ErrNoOracle = errors.New("oracle: no capability registered")
)

// Oracle produces a canonical reference value for a parameter mapping.
// Implementations may perform I/O and should honour the context deadline.
// Failures are returned as errors; the registry additionally recovers a
// panicking capability so a broken oracle can never take down a caller.
type Oracle interface {
	Value(ctx context.Context, params map[string]any) (any, error)
}

// Func adapts a plain function into an Oracle.
type Func func(ctx context.Context, params map[string]any) (any, error)

// Value implements Oracle.
func (f Func) Value(ctx context.Context, params map[string]any) (any, error) {
	return f(ctx, params)
}

// Registry maps intent types to oracle capabilities. Registration is
// permitted at runtime; lookups are cheap reads.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Oracle
	logger  *slog.Logger
}

// RegistryOption customises Registry construction.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sources: make(map[string]Oracle),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs (or replaces) the capability for an intent type.
func (r *Registry) Register(intentType string, source Oracle) {
	if intentType == "" || source == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[intentType] = source
}

// Lookup returns the capability registered for the intent type.
func (r *Registry) Lookup(intentType string) (Oracle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	source, ok := r.sources[intentType]
	return source, ok
}

// Types returns the registered intent types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sources))
	for intentType := range r.sources {
		out = append(out, intentType)
	}
	sort.Strings(out)
	return out
}

// Query resolves the capability for the intent type and invokes it with panic
// isolation.
func (r *Registry) Query(ctx context.Context, intentType string, params map[string]any) (any, error) {
	source, ok := r.Lookup(intentType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoOracle, intentType)
	}
	value, err := r.safeValue(ctx, intentType, source, params)
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (r *Registry) safeValue(ctx context.Context, intentType string, source Oracle, params map[string]any) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("oracle capability panicked",
				"intentType", intentType,
				"panic", rec,
			)
			value = nil
			err = fmt.Errorf("oracle: capability for %s panicked", intentType)
		}
	}()
	return source.Value(ctx, params)
}
