// Package jobs runs the "process N documents" batch job.
//
// At most one job runs per process. The Controller is its only writer;
// observers read snapshots through State and follow the console through the
// EventBus. A job moves idle → running → completed | cancelled | failed and
// keeps its terminal state and console until the next job starts.
//
// Cancellation is cooperative and checked between documents only, so a
// document is never left half-written.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"invoicepipe/internal/logger"
	"invoicepipe/internal/pipeline"
	"invoicepipe/internal/recordstore"
	"invoicepipe/pkg/models"
)

// ErrBusy is returned when a job is started while another one is running.
var ErrBusy = errors.New("a batch job is already running")

// Status is the lifecycle state of the current job.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// State is a point-in-time snapshot of the job, shaped for the status endpoint.
type State struct {
	IsProcessing    bool       `json:"is_processing"`
	CurrentCount    int        `json:"current_count"`
	TotalCount      int        `json:"total_count"`
	ConsoleLogs     []string   `json:"console_logs"`
	JobID           string     `json:"job_id,omitempty"`
	Status          Status     `json:"state"`
	SelectedModel   string     `json:"selected_model,omitempty"`
	CancelRequested bool       `json:"cancel_requested"`
	Written         int        `json:"written"`
	Failed          int        `json:"failed"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Request asks for one batch.
type Request struct {
	// Count is the maximum number of documents; <= 0 uses the configured default.
	Count int    `json:"count"`
	Model string `json:"model"`
}

// Processor runs the pipeline for one record. *pipeline.Processor implements it.
type Processor interface {
	Process(ctx context.Context, rec models.Record, ex pipeline.Extractor) (*models.ExtractionResult, error)
}

// ExtractorFactory creates the model handle a job owns for its whole run.
type ExtractorFactory func(model string) (pipeline.Extractor, error)

// Config tunes the controller.
type Config struct {
	// LogLimit bounds the console buffer; the oldest lines are dropped first.
	LogLimit         int
	DefaultBatchSize int
	DefaultModel     string
	// MaxStoreFailures is how many consecutive write-back failures make the
	// record store count as unreachable and fail the job.
	MaxStoreFailures int
}

// DefaultConfig returns the default controller settings.
func DefaultConfig() Config {
	return Config{
		LogLimit:         500,
		DefaultBatchSize: 10,
		DefaultModel:     "mistral-7b.gguf",
		MaxStoreFailures: 3,
	}
}

// Controller owns the single batch job.
type Controller struct {
	store        recordstore.Store
	proc         Processor
	newExtractor ExtractorFactory
	cfg          Config
	bus          *EventBus
	log          zerolog.Logger

	mu       sync.RWMutex
	state    State
	// starting is set while Start builds the extractor outside the lock.
	starting bool
	done     chan struct{}
}

// NewController creates an idle controller.
func NewController(store recordstore.Store, proc Processor, newExtractor ExtractorFactory, cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.LogLimit <= 0 {
		cfg.LogLimit = def.LogLimit
	}
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = def.DefaultBatchSize
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = def.DefaultModel
	}
	if cfg.MaxStoreFailures <= 0 {
		cfg.MaxStoreFailures = def.MaxStoreFailures
	}

	done := make(chan struct{})
	close(done)

	return &Controller{
		store:        store,
		proc:         proc,
		newExtractor: newExtractor,
		cfg:          cfg,
		bus:          NewEventBus(cfg.LogLimit),
		log:          logger.WithComponent("jobs"),
		state:        State{Status: StatusIdle},
		done:         done,
	}
}

// Events returns the console bus.
func (c *Controller) Events() *EventBus {
	return c.bus
}

// Start launches a job in the background and returns its initial state.
// ctx bounds the job's lifetime: cancelling it interrupts in-flight calls,
// which Cancel never does. Pass a server-lifetime context, not a request's.
func (c *Controller) Start(ctx context.Context, req Request) (State, error) {
	c.mu.Lock()
	if c.state.Status == StatusRunning || c.starting {
		c.mu.Unlock()
		return State{}, ErrBusy
	}
	c.starting = true
	c.mu.Unlock()

	model := req.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}
	count := req.Count
	if count <= 0 {
		count = c.cfg.DefaultBatchSize
	}

	ex, err := c.newExtractor(model)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		return State{}, fmt.Errorf("failed to load model %s: %w", model, err)
	}

	jobID := uuid.New().String()
	now := time.Now().UTC()
	c.state = State{
		IsProcessing:  true,
		JobID:         jobID,
		Status:        StatusRunning,
		SelectedModel: model,
		StartedAt:     &now,
	}
	c.done = make(chan struct{})
	done := c.done
	c.bus.Reset()
	c.mu.Unlock()

	go c.run(ctx, jobID, count, ex, done)

	return c.State(), nil
}

// Cancel asks the running job to stop before its next document. It reports
// whether a job was running; calling it while idle does nothing.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	running := c.state.Status == StatusRunning
	if running && !c.state.CancelRequested {
		c.state.CancelRequested = true
		// Published under the lock so it cannot follow the closing line.
		c.logf(c.state.JobID, "Cancellation requested. Stopping after the current document...")
	}
	return running
}

// State returns a snapshot of the current or last job.
func (c *Controller) State() State {
	c.mu.RLock()
	s := c.state
	c.mu.RUnlock()

	s.ConsoleLogs = c.bus.Texts()
	return s
}

// Running reports whether a job is in progress.
func (c *Controller) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Status == StatusRunning
}

// Wait blocks until the current job has finished or ctx is done.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()

	select {
	case <-done:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

func (c *Controller) run(ctx context.Context, jobID string, count int, ex pipeline.Extractor, done chan struct{}) {
	log := logger.WithJob("jobs", jobID)
	defer close(done)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Batch job panicked")
			c.finish(jobID, StatusFailed, "Batch failed: internal error: %v", r)
		}
	}()

	recs, err := c.store.ListUnprocessed(ctx, count)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list unprocessed records")
		c.finish(jobID, StatusFailed, "Batch failed: could not read the record store: %v", err)
		return
	}

	total := len(recs)
	c.update(func(s *State) { s.TotalCount = total })

	if total == 0 {
		c.finish(jobID, StatusCompleted, "No unprocessed documents found.")
		return
	}
	c.logf(jobID, "Starting batch: %d documents with model %s", total, ex.Model())

	storeFailures := 0
	for i, rec := range recs {
		n := i + 1

		if c.cancelRequested() {
			c.finish(jobID, StatusCancelled, "Batch cancelled after %d of %d documents.", i, total)
			return
		}
		if err := ctx.Err(); err != nil {
			c.finish(jobID, StatusCancelled, "Batch interrupted after %d of %d documents: %v", i, total, err)
			return
		}

		name := rec.Filename
		if name == "" {
			name = rec.Title
		}
		c.logf(jobID, "[%d/%d] Processing %s (node %s)...", n, total, name, rec.NodeID)

		res, err := c.proc.Process(ctx, rec, ex)
		if err != nil {
			log.Warn().Err(err).Str("node_id", rec.NodeID).Str("kind", pipeline.Kind(err)).Msg("Document failed")
			c.logf(jobID, "[%d/%d] %s for node %s (%s): %v", n, total, pipeline.Kind(err), rec.NodeID, name, err)
			c.update(func(s *State) { s.CurrentCount = n; s.Failed++ })
			continue
		}

		if err := c.store.WriteAI(ctx, rec, models.NewAIUpdate(res)); err != nil {
			storeFailures++
			log.Error().Err(err).Str("node_id", rec.NodeID).Msg("Write-back failed")
			c.logf(jobID, "[%d/%d] RecordStoreError for node %s (%s): %v. It stays unprocessed.", n, total, rec.NodeID, name, err)
			c.update(func(s *State) { s.CurrentCount = n; s.Failed++ })
			if storeFailures >= c.cfg.MaxStoreFailures {
				c.finish(jobID, StatusFailed, "Batch failed: %d consecutive record store failures.", storeFailures)
				return
			}
			continue
		}
		storeFailures = 0

		log.Info().
			Str("node_id", rec.NodeID).
			Str("method", string(res.Method)).
			Float64("confidence", res.Confidence).
			Dur("elapsed", res.Elapsed).
			Msg("Document processed")
		c.logf(jobID, "[%d/%d] %s", n, total, summary(name, res))
		c.update(func(s *State) { s.CurrentCount = n; s.Written++ })
	}

	s := c.State()
	c.finish(jobID, StatusCompleted, "Batch complete. Processed %d of %d documents (%d written, %d failed).",
		s.CurrentCount, total, s.Written, s.Failed)
}

func summary(name string, res *models.ExtractionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: invoice=%s company=%s date=%s total=%s",
		name,
		orDash(models.StringValue(res.InvoiceNumber)),
		orDash(models.StringValue(res.CompanyName)),
		orDash(models.StringValue(res.InvoiceDate)),
		orDash(models.FormatAmount(res.TotalAmount)))
	fmt.Fprintf(&b, " confidence=%.2f (%s, %s)", res.Confidence, res.Method, models.FormatTimeTaken(res.Elapsed))
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (c *Controller) cancelRequested() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.CancelRequested
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
	c.bus.Notify()
}

// finish publishes the closing console line and leaves the running state
// under one lock, so no other line of the job can come after it.
func (c *Controller) finish(jobID string, status Status, format string, args ...any) {
	now := time.Now().UTC()

	c.mu.Lock()
	c.logf(jobID, format, args...)
	c.state.Status = status
	c.state.IsProcessing = false
	c.state.FinishedAt = &now
	c.mu.Unlock()

	c.bus.Notify()
	c.log.Info().Str("job_id", jobID).Str("state", string(status)).Msg("Batch job finished")
}

// logf publishes a console line and mirrors it to the structured log.
func (c *Controller) logf(jobID, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	c.bus.Publish(Line{JobID: jobID, Text: text})
	c.log.Info().Str("job_id", jobID).Msg(text)
}
