package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/fxfunk/internal/market"
	"github.com/ajitpratap0/fxfunk/internal/tfqe"
)

// Strategy is a capability record: a name plus a tick that reads the
// candle store state it was built over and emits one signal. There is no
// hierarchy; variants are separate instances with their own tuning.
type Strategy interface {
	Name() string
	Tick(ctx context.Context, symbol string) (tfqe.Signal, error)
}

// Entry pairs a registered strategy with its symbol scope. An empty
// scope means the caller's full symbol set.
type Entry struct {
	Strategy Strategy
	Symbols  []string
}

// Registry composes strategy instances in registration order.
type Registry struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	order   []string
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger:  logger.With().Str("component", "strategy").Logger(),
		entries: make(map[string]Entry),
	}
}

// Register adds a strategy under its name, optionally scoped to a set of
// symbols. Names must be unique.
func (r *Registry) Register(s Strategy, symbols ...string) error {
	if s == nil {
		return fmt.Errorf("strategy cannot be nil")
	}
	name := s.Name()
	if name == "" {
		return fmt.Errorf("strategy name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("strategy %q already registered", name)
	}
	r.order = append(r.order, name)
	r.entries[name] = Entry{Strategy: s, Symbols: append([]string(nil), symbols...)}
	return nil
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.Strategy, ok
}

// TFQE returns the engine behind a TFQE-kind entry, for callers that
// need its signal history.
func (r *Registry) TFQE(name string) (*tfqe.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	ts, ok := e.Strategy.(*tfqeStrategy)
	if !ok {
		return nil, false
	}
	return ts.engine, true
}

// Entries returns the registered strategies in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		out = append(out, Entry{
			Strategy: e.Strategy,
			Symbols:  append([]string(nil), e.Symbols...),
		})
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered strategies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// tfqeStrategy adapts a tuned TFQE engine to the capability record.
type tfqeStrategy struct {
	name   string
	engine *tfqe.Engine
}

func (s *tfqeStrategy) Name() string { return s.name }

func (s *tfqeStrategy) Tick(ctx context.Context, symbol string) (tfqe.Signal, error) {
	if err := ctx.Err(); err != nil {
		return tfqe.Signal{}, err
	}
	return s.engine.Evaluate(symbol)
}

// Build migrates and validates a preset bundle, then constructs one
// strategy instance per enabled preset over the shared candle store.
func Build(file *PresetFile, store *market.Store, logger zerolog.Logger) (*Registry, error) {
	if file == nil {
		return nil, fmt.Errorf("preset file cannot be nil")
	}
	if err := Migrate(file); err != nil {
		return nil, err
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}

	reg := NewRegistry(logger)
	for _, p := range file.Presets {
		if !p.Enabled {
			reg.logger.Debug().Str("preset", p.Name).Msg("preset disabled, skipping")
			continue
		}
		switch p.Kind {
		case KindTFQE:
			cfg, err := p.engineConfig()
			if err != nil {
				return nil, fmt.Errorf("preset %s: %w", p.Name, err)
			}
			eng := tfqe.NewEngine(store, cfg, logger)
			if err := reg.Register(&tfqeStrategy{name: p.Name, engine: eng}, p.Symbols...); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("preset %s: unknown strategy kind %q", p.Name, p.Kind)
		}
		reg.logger.Info().
			Str("preset", p.Name).
			Str("kind", string(p.Kind)).
			Strs("symbols", p.Symbols).
			Msg("strategy registered")
	}
	return reg, nil
}

// LoadRegistry builds a registry from the preset file at path, falling
// back to the stock bundle when path is empty.
func LoadRegistry(path string, store *market.Store, logger zerolog.Logger) (*Registry, error) {
	if path == "" {
		return Build(DefaultPresetFile(), store, logger)
	}
	file, err := ImportFromFile(path, DefaultImportOptions())
	if err != nil {
		return nil, err
	}
	return Build(file, store, logger)
}
