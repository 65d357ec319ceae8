// Package nar assembles the reasoning core: the hypergraph store, the
// priority scheduler, the derivation engine, contradiction handling,
// question answering, memory maintenance, and the cognitive executive, all
// driven by one cooperative step loop.
//
// One step is: pop one event and run derivation on it; run memory
// maintenance when its interval elapses; run cognitive adaptation every 100
// steps; sweep question deadlines and pending contradictions every
// resolution interval. Run iterates steps and stops early once the queue is
// empty and nothing is pending.
package nar

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hypernars/internal/config"
	"hypernars/internal/events"
	"hypernars/internal/explain"
	"hypernars/internal/knowledge"
	"hypernars/internal/memory"
	"hypernars/internal/metacognition"
	"hypernars/internal/questions"
	"hypernars/internal/reasoning"
	"hypernars/internal/scheduler"
	"hypernars/internal/semantic"
	"hypernars/internal/storage"
	"hypernars/internal/types"
	"hypernars/internal/validation"
)

// Reasoner owns all mutable reasoning state. It is single-threaded: one
// goroutine drives Step/Run; ask futures only ever suspend their caller.
type Reasoner struct {
	cfg    *config.Config
	clock  types.Clock
	logger zerolog.Logger
	bus    *events.Bus

	store           *storage.Hypergraph
	queue           *scheduler.Queue
	propagator      *scheduler.Propagator
	derivationCache *storage.DerivationCache
	memo            *storage.Memoization
	engineCtx       *reasoning.Context
	engine          *reasoning.Engine
	contradictions  *validation.Manager
	handler         *questions.Handler
	maintenance     *memory.Manager
	learning        *memory.LearningEngine
	executive       *metacognition.Executive
	explainer       *explain.Explainer

	semanticIndex *semantic.Index
	mirror        *knowledge.Mirror

	currentStep           uint64
	stepsSinceMaintenance uint32
	paused                bool

	resolvedContradictions int
	lastAdaptDerivations   uint64
	lastAdaptResolved      int
	lastAdaptTime          time.Time
}

// Option configures a Reasoner.
type Option func(*Reasoner)

// WithClock injects a clock (frozen in tests).
func WithClock(clock types.Clock) Option {
	return func(r *Reasoner) { r.clock = clock }
}

// WithLogger injects the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reasoner) { r.logger = logger }
}

// WithSemanticIndex attaches a vector index for fuzzy query fallback.
func WithSemanticIndex(ix *semantic.Index) Option {
	return func(r *Reasoner) { r.semanticIndex = ix }
}

// WithMirror attaches a Neo4j mirror.
func WithMirror(m *knowledge.Mirror) Option {
	return func(r *Reasoner) { r.mirror = m }
}

// New builds a reasoner from the config.
func New(cfg *config.Config, opts ...Option) (*Reasoner, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	r := &Reasoner{
		cfg:    cfg,
		clock:  types.SystemClock{},
		logger: zerolog.Nop(),
		bus:    events.NewBus(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.build()
	// Observers subscribe to the bus once; rebuilds on clear/load swap the
	// store underneath them.
	r.wireObservers()
	return r, nil
}

// build wires every subsystem; also used by ClearState and LoadState.
func (r *Reasoner) build() {
	cfg := r.cfg
	r.store = storage.NewHypergraph(storage.Options{
		BeliefCapacity:         cfg.BeliefCapacity,
		ContradictionThreshold: cfg.ContradictionThreshold,
		Clock:                  r.clock,
		Bus:                    r.bus,
	})
	r.queue = scheduler.NewQueue()
	r.propagator = scheduler.NewPropagator(r.queue, scheduler.Limits{
		BudgetThreshold: cfg.BudgetThreshold,
		MaxPathLength:   cfg.MaxPathLength,
	})
	r.derivationCache = storage.NewDerivationCache(cfg.DerivationCacheSize)
	r.memo = storage.NewMemoization()

	r.learning = memory.NewLearningEngine(r.store, r.bus, r.clock)
	r.executive = metacognition.NewExecutive(metacognition.Params{
		InferenceThreshold: cfg.InferenceThreshold,
		BudgetThreshold:    cfg.BudgetThreshold,
		MaxPathLength:      cfg.MaxPathLength,
		BeliefCapacity:     cfg.BeliefCapacity,
	}, r.bus, r.clock, r.learning.RuleSuccessRate)

	r.engineCtx = &reasoning.Context{
		Store:           r.store,
		Propagator:      r.propagator,
		DerivationCache: r.derivationCache,
		Memo:            r.memo,
		Clock:           r.clock,
		Config: reasoning.Config{
			InferenceThreshold: cfg.InferenceThreshold,
			MaxDerivationDepth: cfg.MaxDerivationDepth,
			TemporalHorizon:    cfg.TemporalHorizon,
		},
		Logger:    r.logger,
		RuleScale: r.executive.RuleScale,
		OnApplication: func(report reasoning.ApplicationReport) {
			r.learning.RecordRuleApplication(report.Rule, report.Success, report.Cost, report.Value)
		},
		OnConcept: func(target string, activation float64, budget types.Budget) {
			r.bus.Publish(events.Event{
				Type:      events.ConceptFormed,
				EdgeID:    target,
				Timestamp: r.clock.Now(),
				Detail:    map[string]any{"activation": activation, "priority": budget.Priority},
			})
		},
	}
	r.engine = reasoning.NewEngine(r.engineCtx, cfg.RuleSet, cfg.Seed)

	r.contradictions = validation.NewManager(r.store, r.bus, r.clock, validation.Config{
		ContradictionThreshold: cfg.ContradictionThreshold,
		SourceReliability:      cfg.Features.SourceReliability,
		RecencyBias:            cfg.Features.RecencyBias,
	})
	r.contradictions.SetOnOutcome(func(report validation.OutcomeReport) {
		r.learning.RecordRuleApplication(
			report.Operation+":"+report.Strategy, report.Success, 0, 0)
	})

	r.handler = questions.NewHandler(r.clock, r.bus)
	r.handler.SetOnOutcome(func(_ string, success bool, conclusion string, derivationPath []string) {
		if len(derivationPath) > 0 {
			r.learning.RecordOutcome(derivationPath, conclusion, success)
		}
	})

	r.maintenance = memory.NewManager(r.store, r.propagator, r.memo, r.handler, r.clock, memory.MaintenanceConfig{
		Decay:               cfg.Decay,
		BudgetDecay:         cfg.BudgetDecay,
		ForgettingThreshold: 0.1,
		MemoLimit:           cfg.DerivationCacheSize * 10,
		QuestionCacheLimit:  100,
		MinBeliefAge:        60 * time.Second,
	})
	r.explainer = explain.NewExplainer(r.store)

	// Every revision feeds question matching and contradiction detection
	// before the rule action regains control.
	r.store.SetOnRevise(func(edge *types.Hyperedge, belief *types.Belief) {
		r.handler.CheckAnswers(edge, belief)
		if len(edge.Beliefs) > 1 {
			r.contradictions.Detect(edge.ID)
		}
	})

	r.currentStep = 0
	r.stepsSinceMaintenance = 0
	r.resolvedContradictions = 0
	r.lastAdaptDerivations = 0
	r.lastAdaptResolved = 0
	r.lastAdaptTime = r.clock.Now()
}

// wireObservers connects the optional semantic index and Neo4j mirror to
// store events.
func (r *Reasoner) wireObservers() {
	if r.semanticIndex != nil {
		r.bus.Subscribe(events.BeliefAdded, func(ev events.Event) {
			if err := r.semanticIndex.IndexEdge(context.Background(), ev.EdgeID); err != nil {
				r.logger.Warn().Err(err).Str("edge", ev.EdgeID).Msg("semantic index update failed")
			}
		})
		r.bus.Subscribe(events.KnowledgePruned, func(ev events.Event) {
			_ = r.semanticIndex.RemoveEdge(context.Background(), ev.EdgeID)
		})
	}
	if r.mirror != nil {
		r.bus.Subscribe(events.BeliefAdded, func(ev events.Event) {
			edge, ok := r.store.Get(ev.EdgeID)
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.mirror.UpsertEdge(ctx, edge); err != nil {
				r.logger.Warn().Err(err).Str("edge", ev.EdgeID).Msg("neo4j mirror update failed")
			}
		})
		r.bus.Subscribe(events.KnowledgePruned, func(ev events.Event) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = r.mirror.RemoveEdge(ctx, ev.EdgeID)
		})
	}
}

// Bus exposes the observer registry for host subscriptions.
func (r *Reasoner) Bus() *events.Bus { return r.bus }

// Config returns the active configuration.
func (r *Reasoner) Config() *config.Config { return r.cfg }

// CurrentStep returns the step counter.
func (r *Reasoner) CurrentStep() uint64 { return r.currentStep }

// EdgeIDs lists every stored edge id, sorted.
func (r *Reasoner) EdgeIDs() []string { return r.store.EdgeIDs() }

// Pause stops Run from making further steps; it takes effect between steps.
func (r *Reasoner) Pause() { r.paused = true }

// Resume lifts a pause.
func (r *Reasoner) Resume() { r.paused = false }

// Step executes one reasoning step. Returns whether an event was processed.
func (r *Reasoner) Step() bool {
	r.currentStep++
	r.stepsSinceMaintenance++

	ev := r.queue.Pop()
	if ev != nil {
		r.engine.Process(ev)
	}

	if r.stepsSinceMaintenance >= r.cfg.MemoryMaintenanceInterval {
		r.maintenance.Maintain()
		r.stepsSinceMaintenance = 0
	}
	if r.currentStep%100 == 0 {
		r.adapt()
	}
	if r.currentStep%uint64(r.cfg.QuestionResolutionInterval) == 0 {
		r.handler.Expire()
		r.resolvedContradictions += r.contradictions.ResolvePending()
	}
	return ev != nil
}

// Run executes up to n steps, stopping early once the queue is empty and no
// questions are pending. Returns the number of steps taken.
func (r *Reasoner) Run(n int) int {
	steps := 0
	for i := 0; i < n; i++ {
		if r.paused {
			break
		}
		processed := r.Step()
		steps++
		if !processed && r.queue.Len() == 0 && r.handler.PendingCount() == 0 {
			break
		}
	}
	return steps
}

// adapt runs one cognitive-executive pass and pushes the updated parameters
// back into the scheduler, engine, and store.
func (r *Reasoner) adapt() {
	now := r.clock.Now()
	derivations := r.engine.Derivations()
	sig := metacognition.Signals{
		QueueSize:           r.queue.Len(),
		PendingQuestions:    r.handler.PendingCount(),
		DerivationsDelta:    derivations - r.lastAdaptDerivations,
		ContradictionsDelta: r.resolvedContradictions - r.lastAdaptResolved,
		Elapsed:             now.Sub(r.lastAdaptTime),
	}
	params := r.executive.Adapt(sig)

	r.propagator.SetLimits(scheduler.Limits{
		BudgetThreshold: params.BudgetThreshold,
		MaxPathLength:   params.MaxPathLength,
	})
	r.engineCtx.Config.InferenceThreshold = params.InferenceThreshold
	r.store.SetBeliefCapacity(params.BeliefCapacity)

	r.lastAdaptDerivations = derivations
	r.lastAdaptResolved = r.resolvedContradictions
	r.lastAdaptTime = now
}

// Metrics summarizes reasoner state for hosts.
type Metrics struct {
	CurrentStep      uint64                      `json:"current_step"`
	EdgeCount        int                         `json:"edge_count"`
	QueueSize        int                         `json:"queue_size"`
	PendingQuestions int                         `json:"pending_questions"`
	Contradictions   int                         `json:"contradictions"`
	Derivations      uint64                      `json:"derivations"`
	Focus            string                      `json:"focus"`
	RuleStats        map[string]memory.RuleStats `json:"rule_stats"`
}

// Metrics returns a snapshot of reasoner health.
func (r *Reasoner) Metrics() Metrics {
	return Metrics{
		CurrentStep:      r.currentStep,
		EdgeCount:        r.store.Len(),
		QueueSize:        r.queue.Len(),
		PendingQuestions: r.handler.PendingCount(),
		Contradictions:   len(r.contradictions.Records()),
		Derivations:      r.engine.Derivations(),
		Focus:            string(r.executive.Focus()),
		RuleStats:        r.learning.Stats(),
	}
}

// ClearState resets all reasoning state, keeping config and observers for
// the optional subsystems.
func (r *Reasoner) ClearState() {
	if r.semanticIndex != nil {
		r.semanticIndex.Reset()
	}
	r.handler.Clear()
	r.learning.Clear()
	r.build()
}

// SaveState serializes the full reasoner state per the persisted-state
// contract.
func (r *Reasoner) SaveState() ([]byte, error) {
	cfgJSON, err := r.cfg.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	return storage.EncodeState(r.store, r.currentStep, cfgJSON, r.clock.Now())
}

// LoadState clears current state, reinstalls the saved config, then replays
// every edge's beliefs in original order. No partial load is committed: the
// blob is fully validated before the current state is touched.
func (r *Reasoner) LoadState(data []byte) error {
	state, err := storage.DecodeState(data)
	if err != nil {
		return err
	}

	newCfg := config.Default()
	if len(state.Config) > 0 {
		if err := newCfg.UnmarshalStrict(state.Config); err != nil {
			return fmt.Errorf("%w: bad config: %v", storage.ErrInvalidState, err)
		}
		if err := newCfg.Validate(); err != nil {
			return fmt.Errorf("%w: bad config: %v", storage.ErrInvalidState, err)
		}
	}

	r.cfg = newCfg
	r.ClearState()
	r.currentStep = state.CurrentStep

	for _, se := range state.Hypergraph {
		canonical := types.CanonicalID(se.Type, se.Args)
		for _, sb := range se.Beliefs {
			belief := &types.Belief{
				Truth:     sb.Truth,
				Budget:    sb.Budget,
				Premises:  sb.Premises,
				DerivedBy: sb.DerivedBy,
				Timestamp: sb.Timestamp,
				Source:    sb.Source,
			}
			if se.ID != canonical {
				_, _, err = r.store.AddWithID(se.ID, se.Type, se.Args, belief)
			} else {
				_, _, err = r.store.Add(se.Type, se.Args, belief)
			}
			if err != nil {
				return fmt.Errorf("%w: replay of %s failed: %v", storage.ErrInvalidState, se.ID, err)
			}
		}
	}
	return nil
}
