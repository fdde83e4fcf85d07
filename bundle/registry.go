package bundle

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"strings"
	"sync"
)

// NewBundleSymbol is the exported symbol a plugin unit must provide.
// Its value must be assignable to Factory.
const NewBundleSymbol = "NewBundle"

// Registry discovers, constructs, and indexes bundles. It is safe for
// concurrent reads; Load and Register are its only mutating operations
// and callers must not run them concurrently with each other.
//
// Registered bundles live for the process lifetime. Calling Load again
// appends newly constructed bundles without de-duplicating by ID, so a
// caller that loads the same directory twice holds two bundles sharing
// one ID. Get resolves to the first match.
type Registry struct {
	mu      sync.RWMutex
	bundles []Bundle
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register constructs a bundle from the factory and adds it to the
// registry. A factory that fails or panics is logged and skipped, never
// propagated; the returned error covers only a nil factory.
func (r *Registry) Register(factory Factory) error {
	if factory == nil {
		return fmt.Errorf("bundle: nil factory")
	}
	if b, ok := r.construct(factory, "registered factory"); ok {
		r.add(b)
	}
	return nil
}

// Load scans dir recursively for plugin units (.so files), opens each,
// resolves its factory symbol, and constructs the bundle it provides.
// Every per-candidate failure (corrupt unit, missing symbol, wrong
// symbol type, failing constructor) is logged and skipped; scanning
// continues with the next candidate.
//
// A missing directory is created and an empty result returned. Load
// returns the descriptors constructed by this call only.
func (r *Registry) Load(dir string) ([]Descriptor, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("bundle: load: directory path is empty")
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return nil, fmt.Errorf("bundle: create bundles directory %q: %w", dir, mkErr)
		}
		r.logger.Info("bundles directory created", slog.String("dir", dir))
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("bundle: stat bundles directory %q: %w", dir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("bundle: %q is not a directory", dir)
	}

	var loaded []Descriptor
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.logger.Warn("skipping unreadable path",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ".so" {
			return nil
		}

		b, ok := r.open(path)
		if !ok {
			return nil
		}
		r.add(b)
		loaded = append(loaded, b.Descriptor())
		return nil
	})
	if walkErr != nil {
		return loaded, fmt.Errorf("bundle: walk bundles directory %q: %w", dir, walkErr)
	}

	return loaded, nil
}

// open loads one plugin unit and constructs its bundle. All failures are
// logged and reported as "no bundle".
func (r *Registry) open(path string) (Bundle, bool) {
	p, err := plugin.Open(path)
	if err != nil {
		r.logger.Warn("failed to open bundle unit",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	sym, err := p.Lookup(NewBundleSymbol)
	if err != nil {
		r.logger.Warn("bundle unit has no factory symbol",
			slog.String("path", path),
			slog.String("symbol", NewBundleSymbol),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	factory, ok := sym.(func() (Bundle, error))
	if !ok {
		// Plugins may export the symbol as a Factory variable instead
		// of a function; Lookup then returns a pointer to it.
		if fp, isPtr := sym.(*Factory); isPtr {
			factory = *fp
		} else {
			r.logger.Warn("bundle factory symbol has wrong type",
				slog.String("path", path),
				slog.String("symbol", NewBundleSymbol),
			)
			return nil, false
		}
	}

	return r.construct(factory, path)
}

// construct invokes a factory, recovering panics and validating the
// resulting descriptor.
func (r *Registry) construct(factory Factory, origin string) (b Bundle, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("bundle factory panicked",
				slog.String("origin", origin),
				slog.Any("panic", rec),
			)
			b, ok = nil, false
		}
	}()

	built, err := factory()
	if err != nil {
		r.logger.Warn("bundle factory failed",
			slog.String("origin", origin),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if built == nil {
		r.logger.Warn("bundle factory returned nil", slog.String("origin", origin))
		return nil, false
	}

	desc := built.Descriptor()
	if strings.TrimSpace(desc.ID) == "" {
		r.logger.Warn("bundle descriptor has empty id", slog.String("origin", origin))
		return nil, false
	}

	r.logger.Info("bundle loaded",
		slog.String("bundle_id", desc.ID),
		slog.String("version", desc.Version),
		slog.String("origin", origin),
	)
	return built, true
}

func (r *Registry) add(b Bundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles = append(r.bundles, b)
}

// Get returns the first bundle whose descriptor ID matches. A blank or
// whitespace-only ID and a missing ID both return (nil, false); Get
// never fails.
func (r *Registry) Get(bundleID string) (Bundle, bool) {
	if strings.TrimSpace(bundleID) == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bundles {
		if b.Descriptor().ID == bundleID {
			return b, true
		}
	}
	return nil, false
}

// Bundles returns a snapshot of all registered bundles in registration
// order.
func (r *Registry) Bundles() []Bundle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Bundle, len(r.bundles))
	copy(out, r.bundles)
	return out
}

// Descriptors returns the descriptors of all registered bundles in
// registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.bundles))
	for _, b := range r.bundles {
		out = append(out, b.Descriptor())
	}
	return out
}
