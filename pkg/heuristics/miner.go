package heuristics

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/hminer/internal/model"
	hmerrors "github.com/logflow/hminer/pkg/errors"
)

// TracerName names the tracer of stage spans.
const TracerName = "github.com/logflow/hminer/pkg/heuristics"

// Config holds the miner thresholds. Values are expected in [0, 1] but are
// applied as given.
type Config struct {
	// DependencyThreshold is the minimum dependency score of an edge.
	DependencyThreshold float64 `yaml:"dependency_threshold" json:"dependency_threshold"`

	// AndMeasureThreshold is accepted for compatibility and not consulted:
	// the miner produces a dependency graph, not split/join semantics.
	AndMeasureThreshold float64 `yaml:"and_measure_threshold" json:"and_measure_threshold"`

	// NoiseThreshold is the relative frequency below which pairs are
	// removed before scoring.
	NoiseThreshold float64 `yaml:"noise_threshold" json:"noise_threshold"`

	// LoopThreshold is the minimum length-two loop score. Nil means
	// "same as DependencyThreshold".
	LoopThreshold *float64 `yaml:"loop_threshold,omitempty" json:"loop_threshold,omitempty"`

	// MinActivityCount is the minimum occurrence estimate of an endpoint.
	MinActivityCount int64 `yaml:"min_activity_count" json:"min_activity_count"`

	// MinDFGOccurrences is the minimum filtered frequency of an edge.
	MinDFGOccurrences int64 `yaml:"min_dfg_occurrences" json:"min_dfg_occurrences"`
}

// DefaultConfig returns the standard Heuristics Miner thresholds.
func DefaultConfig() Config {
	return Config{
		DependencyThreshold: 0.65,
		AndMeasureThreshold: 0.65,
		NoiseThreshold:      0.05,
		MinActivityCount:    1,
		MinDFGOccurrences:   1,
	}
}

// EffectiveLoopThreshold returns the loop threshold in use.
func (c Config) EffectiveLoopThreshold() float64 {
	if c.LoopThreshold != nil {
		return *c.LoopThreshold
	}
	return c.DependencyThreshold
}

func (c Config) thresholds() Thresholds {
	return Thresholds{
		Dependency:        c.DependencyThreshold,
		Loop:              c.EffectiveLoopThreshold(),
		MinActivityCount:  c.MinActivityCount,
		MinDFGOccurrences: c.MinDFGOccurrences,
	}
}

// Stats describes one discovery run.
type Stats struct {
	Events        int                      `json:"events"`
	Cases         int                      `json:"cases"`
	Activities    int                      `json:"activities"`
	Pairs         int                      `json:"pairs"`
	FilteredPairs int                      `json:"filtered_pairs"`
	Triples       int                      `json:"triples"`
	NoiseReverted bool                     `json:"noise_reverted"`
	LoopEdges     int                      `json:"loop_edges"`
	Stages        map[string]time.Duration `json:"stages"`
	Duration      time.Duration            `json:"duration"`
}

// Result is the outcome of a discovery run.
type Result struct {
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`

	// Intermediate tables, kept for exporters and reports.
	DirectlyFollows *FrequencyTable  `json:"-"`
	Filtered        *FrequencyTable  `json:"-"`
	Triples         *TripleTable     `json:"-"`
	Dependencies    *DependencyGraph `json:"-"`
	Occurrences     Occurrences      `json:"-"`
	Loops           []LoopCandidate  `json:"-"`

	Config Config `json:"config"`
	Stats  Stats  `json:"stats"`
}

// Weight returns the weight of the edge src -> dst and whether it exists.
func (r *Result) Weight(src, dst string) (float64, bool) {
	for _, e := range r.Edges {
		if e.Source == src && e.Target == dst {
			return e.Weight, true
		}
	}
	return 0, false
}

// EdgeMap returns the edges keyed by pair.
func (r *Result) EdgeMap() map[Pair]float64 {
	m := make(map[Pair]float64, len(r.Edges))
	for _, e := range r.Edges {
		m[e.Pair()] = e.Weight
	}
	return m
}

// Option configures a Miner.
type Option func(*Miner)

// WithTracer sets the tracer used for stage spans. The default is the
// global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(m *Miner) {
		m.tracer = t
	}
}

// Miner runs the Heuristics Miner pipeline. A Miner is stateless between
// runs and safe for concurrent use.
type Miner struct {
	cfg    Config
	tracer trace.Tracer
}

// NewMiner creates a miner with the given configuration.
func NewMiner(cfg Config, opts ...Option) *Miner {
	m := &Miner{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(TracerName)
	}
	return m
}

// Config returns the miner configuration.
func (m *Miner) Config() Config {
	return m.cfg
}

// Discover is shorthand for NewMiner(cfg).Discover(ctx, log).
func Discover(ctx context.Context, log *model.Log, cfg Config) (*Result, error) {
	return NewMiner(cfg).Discover(ctx, log)
}

// Discover mines the dependency graph of log. Invalid records fail with a
// validation error before any counting starts. An empty log yields an empty
// graph.
func (m *Miner) Discover(ctx context.Context, log *model.Log) (*Result, error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "heuristics.Discover",
		trace.WithAttributes(attribute.Int("events", log.Len())))
	defer span.End()

	if err := log.Validate(); err != nil {
		var fe *model.FieldError
		if errors.As(err, &fe) {
			err = hmerrors.Validation(fe.Field, fe.Row)
		}
		span.RecordError(err)
		return nil, err
	}

	stats := Stats{
		Events: log.Len(),
		Cases:  log.Cases(),
		Stages: make(map[string]time.Duration),
	}
	activities := log.Activities()
	stats.Activities = len(activities)

	stage := func(name string, fn func()) error {
		if err := ctx.Err(); err != nil {
			return hmerrors.Wrap(err, hmerrors.CodeContextCanceled, "discovery canceled").
				WithContext("stage", name)
		}
		_, s := m.tracer.Start(ctx, "heuristics."+name)
		t := time.Now()
		fn()
		stats.Stages[name] = time.Since(t)
		s.End()
		return nil
	}

	var sorted []model.Event
	if err := stage("sort", func() { sorted = log.Sorted() }); err != nil {
		return nil, err
	}

	// The two counters only read the sorted events.
	var (
		dfg                  *FrequencyTable
		triples              *TripleTable
		pairTime, tripleTime time.Duration
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, s := m.tracer.Start(gctx, "heuristics.count_pairs")
		defer s.End()
		t := time.Now()
		dfg = CountDirectlyFollows(sorted)
		pairTime = time.Since(t)
		return gctx.Err()
	})
	g.Go(func() error {
		_, s := m.tracer.Start(gctx, "heuristics.count_triples")
		defer s.End()
		t := time.Now()
		triples = CountTriples(sorted)
		tripleTime = time.Since(t)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, hmerrors.Wrap(err, hmerrors.CodeContextCanceled, "discovery canceled").
			WithContext("stage", "count")
	}
	stats.Stages["count_pairs"] = pairTime
	stats.Stages["count_triples"] = tripleTime
	stats.Pairs = dfg.Len()
	stats.Triples = triples.Len()

	var (
		filtered *FrequencyTable
		deps     *DependencyGraph
		occ      Occurrences
		graph    *Graph
	)
	steps := []struct {
		name string
		fn   func()
	}{
		{"noise", func() { filtered, stats.NoiseReverted = FilterNoise(dfg, m.cfg.NoiseThreshold) }},
		{"dependency", func() { deps = ComputeDependencies(filtered) }},
		{"occurrence", func() { occ = EstimateOccurrences(filtered, activities) }},
		{"assemble", func() {
			graph = Assemble(deps, filtered, occ, BuildLoopMatrix(triples), activities, m.cfg.thresholds())
		}},
	}
	for _, st := range steps {
		if err := stage(st.name, st.fn); err != nil {
			return nil, err
		}
	}

	stats.FilteredPairs = filtered.Len()
	for i := range graph.Edges {
		e := &graph.Edges[i]
		e.Frequency, _ = dfg.Count(e.Pair())
		if score, ok := deps.Score(e.Pair()); ok {
			e.Dependency = &score
		}
		if e.Loop {
			stats.LoopEdges++
		}
	}
	stats.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("nodes", len(graph.Nodes)),
		attribute.Int("edges", len(graph.Edges)),
		attribute.Bool("noise_reverted", stats.NoiseReverted),
	)

	return &Result{
		Nodes:           graph.Nodes,
		Edges:           graph.Edges,
		DirectlyFollows: dfg,
		Filtered:        filtered,
		Triples:         triples,
		Dependencies:    deps,
		Occurrences:     occ,
		Loops:           graph.Loops,
		Config:          m.cfg,
		Stats:           stats,
	}, nil
}
