package etl

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tributary-data/tributary/internal/config"
	"github.com/tributary-data/tributary/internal/extractor"
	"github.com/tributary-data/tributary/internal/loader"
	"github.com/tributary-data/tributary/internal/record"
	"github.com/tributary-data/tributary/internal/transformer"
)

// Transformer is the transform stage seen by the runner.
type Transformer interface {
	Transform(batches []record.RawBatch) (record.Batch, *transformer.Report)
}

// Loader is the load stage seen by the runner.
type Loader interface {
	Load(ctx context.Context, batch record.Batch) (int, error)
}

// Runner sequences one Extract → Transform → Load run as an explicit state
// machine. Stages are injected so transitions can be exercised without real
// I/O.
type Runner struct {
	Extractors  []extractor.Extractor
	Transformer Transformer
	Loader      Loader
	Logger      *log.Logger

	state State
}

// NewRunner composes a runner from the run configuration, building every
// registered extractor.
func NewRunner(cfg *config.Config, logger *log.Logger) (*Runner, error) {
	if logger == nil {
		logger = log.Default()
	}
	var extractors []extractor.Extractor
	for _, name := range extractor.Names() {
		ext, err := extractor.ForName(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("extractor %s: %w", name, err)
		}
		extractors = append(extractors, ext)
	}
	return &Runner{
		Extractors:  extractors,
		Transformer: transformer.New(cfg),
		Loader:      loader.New(cfg, logger),
		Logger:      logger,
		state:       StateIdle,
	}, nil
}

// State returns the runner's current phase.
func (r *Runner) State() State { return r.state }

func (r *Runner) transition(to State) {
	if !canTransition(r.state, to) {
		// A bug in the runner itself, not a data failure.
		panic(fmt.Sprintf("etl: illegal transition %s -> %s", r.state, to))
	}
	r.Logger.Printf("pipeline: %s -> %s", r.state, to)
	r.state = to
}

// Run executes one full pipeline cycle and always returns a summary, even
// when the run fails.
func (r *Runner) Run(ctx context.Context) *Summary {
	summary := &Summary{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
		Sources: make(map[record.Source]*SourceResult),
	}

	// Extracting: per-source failures are recorded, not fatal, as long as
	// at least one source delivers.
	r.transition(StateExtracting)
	var rawBatches []record.RawBatch
	for _, ext := range r.Extractors {
		src := ext.Source()
		batch, err := ext.Extract(ctx)
		if err != nil {
			r.Logger.Printf("pipeline: source %s failed: %v", src, err)
			summary.Sources[src] = &SourceResult{Source: src, Err: err}
			continue
		}
		summary.Sources[src] = &SourceResult{Source: src, Records: len(batch.Records)}
		rawBatches = append(rawBatches, batch)
	}
	if len(rawBatches) == 0 {
		summary.Err = fmt.Errorf("all %d extractors failed: %w", len(r.Extractors), record.ErrNoSourcesAvailable)
		return r.fail(summary)
	}

	// Transforming never fails the run; it degrades to drop counts.
	r.transition(StateTransforming)
	batch, report := r.Transformer.Transform(rawBatches)
	for src, stats := range report.Stats {
		if res, ok := summary.Sources[src]; ok {
			res.Dropped = stats.Dropped
		}
	}
	r.Logger.Printf("pipeline: %d normalized records (%d dropped)", len(batch), report.TotalDropped())

	r.transition(StateLoading)
	loaded, err := r.Loader.Load(ctx, batch)
	if err != nil {
		summary.Err = fmt.Errorf("load: %w", err)
		return r.fail(summary)
	}
	summary.Loaded = loaded

	r.transition(StateSucceeded)
	summary.Status = StateSucceeded
	summary.Finished = time.Now().UTC()
	summary.Log(r.Logger)
	return summary
}

func (r *Runner) fail(summary *Summary) *Summary {
	r.transition(StateFailed)
	summary.Status = StateFailed
	summary.Finished = time.Now().UTC()
	summary.Log(r.Logger)
	return summary
}
