package ml

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"trendcast/internal/common"
)

type entry struct {
	predictor *Predictor
	err       error
}

// ModelStatus reports the load state of one registered model.
type ModelStatus struct {
	Spec     ModelSpec `json:"spec"`
	Loaded   bool      `json:"loaded"`
	LoadedAt time.Time `json:"loadedAt,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Registry owns the closed set of models fixed at construction. Each model is
// loaded at most once; concurrent first requests share one load and failed
// loads stay failed until the process restarts.
type Registry struct {
	store      ArtifactStore
	specs      map[string]ModelSpec
	featureLen map[string]int
	names      []string
	metrics    MetricsInterface

	mu      sync.RWMutex
	entries map[string]entry
	loads   singleflight.Group
}

// NewRegistry validates specs and returns a registry with nothing loaded.
// Unknown kinds, transforms or decision modes are rejected here rather than
// at request time.
func NewRegistry(store ArtifactStore, specs []ModelSpec, metrics MetricsInterface) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("artifact store is required")
	}

	r := &Registry{
		store:      store,
		specs:      make(map[string]ModelSpec, len(specs)),
		featureLen: make(map[string]int, len(specs)),
		metrics:    metrics,
		entries:    make(map[string]entry, len(specs)),
	}
	for _, s := range specs {
		n, err := s.validate()
		if err != nil {
			return nil, err
		}
		if _, dup := r.specs[s.Name]; dup {
			return nil, fmt.Errorf("model %s registered twice", s.Name)
		}
		r.specs[s.Name] = s
		r.featureLen[s.Name] = n
		r.names = append(r.names, s.Name)
	}
	sort.Strings(r.names)

	log.Info().Strs("models", r.names).Msg("Model registry initialized")
	return r, nil
}

// NewRegistryFromManifest loads the manifest at path and serves its
// artifacts from the manifest's directory.
func NewRegistryFromManifest(path string, metrics MetricsInterface) (*Registry, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(NewFileStore(m.Dir()), m.Models, metrics)
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Spec returns the spec for name without loading the model.
func (r *Registry) Spec(name string) (ModelSpec, error) {
	s, ok := r.specs[name]
	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: %q", common.ErrModelNotFound, name)
	}
	return s, nil
}

// Get returns the predictor for name, loading it on first use.
func (r *Registry) Get(name string) (*Predictor, error) {
	spec, ok := r.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrModelNotFound, name)
	}

	if e, ok := r.cached(name); ok {
		return e.predictor, e.err
	}

	v, _, _ := r.loads.Do(name, func() (interface{}, error) {
		// A load may have finished between the cache check and this flight.
		if e, ok := r.cached(name); ok {
			return e, nil
		}
		e := r.load(spec)
		r.mu.Lock()
		r.entries[name] = e
		r.mu.Unlock()
		return e, nil
	})
	e := v.(entry)
	return e.predictor, e.err
}

// Preload loads every registered model and returns the joined load errors.
// Models that load successfully remain usable when others fail.
func (r *Registry) Preload() error {
	var errs []error
	for _, name := range r.names {
		if _, err := r.Get(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status lists every registered model with its current load state.
func (r *Registry) Status() []ModelStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModelStatus, 0, len(r.names))
	for _, name := range r.names {
		st := ModelStatus{Spec: r.specs[name]}
		if e, ok := r.entries[name]; ok {
			if e.err != nil {
				st.Error = e.err.Error()
			} else {
				st.Loaded = true
				st.LoadedAt = e.predictor.loadedAt
			}
		}
		out = append(out, st)
	}
	return out
}

func (r *Registry) cached(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

func (r *Registry) load(spec ModelSpec) entry {
	start := time.Now()
	p, err := r.loadPredictor(spec)
	if err != nil {
		if r.metrics != nil {
			r.metrics.ModelLoadFailuresInc(spec.Name)
		}
		log.Error().Err(err).Str("model", spec.Name).Str("path", spec.Path).Msg("Failed to load model")
		return entry{err: err}
	}

	if r.metrics != nil {
		r.metrics.ModelLoadsInc(spec.Name)
	}
	log.Info().
		Str("model", spec.Name).
		Str("version", spec.Version).
		Str("kind", string(spec.Kind)).
		Int("features", p.featureLen).
		Dur("duration", time.Since(start)).
		Msg("Model loaded")
	return entry{predictor: p}
}

func (r *Registry) loadPredictor(spec ModelSpec) (*Predictor, error) {
	rc, err := r.store.Open(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: model %s: %v", common.ErrModelLoad, spec.Name, err)
	}
	defer rc.Close()

	model, err := DecodeModel(spec.Kind, rc)
	if err != nil {
		return nil, fmt.Errorf("%w: model %s: %v", common.ErrModelLoad, spec.Name, err)
	}

	want := r.featureLen[spec.Name]
	if got := model.NumFeatures(); got != want {
		return nil, fmt.Errorf("%w: model %s expects %d features but transform %s yields %d",
			common.ErrModelLoad, spec.Name, got, spec.Transform.Name, want)
	}

	return &Predictor{
		spec:       spec,
		model:      model,
		featureLen: want,
		loadedAt:   time.Now(),
		metrics:    r.metrics,
	}, nil
}
