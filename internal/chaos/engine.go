// Package chaos runs fault-injection experiments against a live bookswap
// database and checks that the exchange invariants survive them.
package chaos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Experiment defines a chaos engineering test.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Probe
	Method      []Action
	Rollback    []Action
	Validation  []Assertion
	Duration    time.Duration
	SampleEvery time.Duration
}

// Probe is a measurable system property.
type Probe struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Holds reports whether value satisfies the threshold.
func (t Threshold) Holds(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}

// Action is a fault injection or recovery step.
type Action struct {
	Type    string
	Target  string
	Execute func(context.Context) error
}

// Assertion checks the last observation of a probe.
type Assertion struct {
	Probe     string
	Condition func(float64) bool
	Message   string
}

type Result struct {
	Experiment       string                 `json:"experiment"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []Violation            `json:"violations"`
	Observations     map[string][]DataPoint `json:"observations"`
	Errors           []ErrorEvent           `json:"errors"`
	Failed           []string               `json:"failed_assertions,omitempty"`
}

type Violation struct {
	Probe     string    `json:"probe"`
	Expected  float64   `json:"expected"`
	Actual    float64   `json:"actual"`
	Timestamp time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// ErrSteadyState aborts an experiment whose system is unhealthy before any
// fault is injected.
var ErrSteadyState = errors.New("steady state invalid, aborting experiment")

// Engine orchestrates experiments.
type Engine struct {
	tracer      trace.Tracer
	mu          sync.Mutex
	experiments []Experiment
	results     []Result
}

func NewEngine() *Engine {
	return &Engine{tracer: otel.Tracer("bookswap/chaos")}
}

// Register adds an experiment to the run list.
func (e *Engine) Register(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

// Experiments returns the registered experiments.
func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

// Results returns every result recorded so far.
func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// Run executes one experiment: steady state check, fault injection,
// observation, rollback, then assertions.
func (e *Engine) Run(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := &Result{
		Experiment:   exp.Name,
		StartTime:    time.Now(),
		Observations: make(map[string][]DataPoint),
	}

	span.AddEvent("validating_steady_state")
	if violations := e.check(ctx, exp.SteadyState); len(violations) > 0 {
		result.Violations = violations
		return result, ErrSteadyState
	}
	result.SteadyStateValid = true

	span.AddEvent("injecting_chaos")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.Errors = append(result.Errors, ErrorEvent{Timestamp: time.Now(), Error: err.Error(), Component: action.Target})
			span.RecordError(err)
		}
	}

	span.AddEvent("observing_system")
	e.observe(ctx, exp, result)

	span.AddEvent("rolling_back")
	for _, action := range exp.Rollback {
		if err := action.Execute(ctx); err != nil {
			result.Errors = append(result.Errors, ErrorEvent{Timestamp: time.Now(), Error: err.Error(), Component: action.Target})
			span.RecordError(err)
		}
	}
	// One last sample after rollback so assertions see the settled state.
	e.sample(ctx, exp.SteadyState, result)

	span.AddEvent("validating_assertions")
	result.HypothesisHeld = e.validate(exp.Validation, result)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result, nil
}

// RunAll runs every registered experiment and writes a report to w. It
// returns an error if any hypothesis was violated.
func (e *Engine) RunAll(ctx context.Context, w io.Writer) error {
	var failed int
	experiments := e.Experiments()
	for i, exp := range experiments {
		fmt.Fprintf(w, "\nExperiment %d/%d: %s\n", i+1, len(experiments), exp.Name)
		fmt.Fprintf(w, "Hypothesis: %s\n", exp.Hypothesis)

		result, err := e.Run(ctx, exp)
		if err != nil {
			fmt.Fprintf(w, "Experiment aborted: %v\n", err)
			failed++
			continue
		}
		Report(w, result)
		if !result.HypothesisHeld {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d experiments failed", failed, len(experiments))
	}
	return nil
}

// Report prints a human-readable summary of result.
func Report(w io.Writer, result *Result) {
	if result.HypothesisHeld {
		fmt.Fprintln(w, "Hypothesis held")
	} else {
		fmt.Fprintln(w, "Hypothesis violated")
	}
	for _, v := range result.Violations {
		fmt.Fprintf(w, "  violation %s: expected %.2f, got %.2f\n", v.Probe, v.Expected, v.Actual)
	}
	for _, msg := range result.Failed {
		fmt.Fprintf(w, "  failed: %s\n", msg)
	}
	for _, ev := range result.Errors {
		fmt.Fprintf(w, "  error in %s: %s\n", ev.Component, ev.Error)
	}
	fmt.Fprintf(w, "Duration: %s\n", result.Duration)
}

func (e *Engine) observe(ctx context.Context, exp Experiment, result *Result) {
	if exp.Duration <= 0 {
		return
	}
	every := exp.SampleEvery
	if every <= 0 {
		every = time.Second
	}

	observationCtx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-observationCtx.Done():
			return
		case <-ticker.C:
			e.sample(ctx, exp.SteadyState, result)
		}
	}
}

func (e *Engine) sample(ctx context.Context, probes []Probe, result *Result) {
	for _, p := range probes {
		value, err := p.Query(ctx)
		now := time.Now()
		if err != nil {
			result.Errors = append(result.Errors, ErrorEvent{Timestamp: now, Error: err.Error(), Component: p.Name})
			continue
		}
		result.Observations[p.Name] = append(result.Observations[p.Name], DataPoint{Timestamp: now, Value: value})
		if !p.Threshold.Holds(value) {
			result.Violations = append(result.Violations, Violation{Probe: p.Name, Expected: p.Threshold.Value, Actual: value, Timestamp: now})
		}
	}
}

func (e *Engine) check(ctx context.Context, probes []Probe) []Violation {
	var violations []Violation
	for _, p := range probes {
		value, err := p.Query(ctx)
		if err != nil {
			value = -1
		}
		if err != nil || !p.Threshold.Holds(value) {
			violations = append(violations, Violation{Probe: p.Name, Expected: p.Threshold.Value, Actual: value, Timestamp: time.Now()})
		}
	}
	return violations
}

func (e *Engine) validate(assertions []Assertion, result *Result) bool {
	held := len(result.Violations) == 0
	for _, a := range assertions {
		points := result.Observations[a.Probe]
		if len(points) == 0 || !a.Condition(points[len(points)-1].Value) {
			result.Failed = append(result.Failed, a.Message)
			held = false
		}
	}
	return held
}
