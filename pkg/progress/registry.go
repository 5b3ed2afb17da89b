// Package progress tracks per-job staged progress and exposes it as a
// push-based event stream.
//
// The registry is a bounded, process-wide table keyed by task id. The
// orchestrator is the sole writer; any number of watchers may observe a
// record concurrently. Records self-clean: a background reaper removes
// them a fixed grace window after they reach the terminal stage.
package progress

import (
	"errors"
	"sync"
	"time"
)

// Stage is a progress lifecycle stage. Transitions are monotonic in
// declaration order; there is no explicit error stage (abnormal jobs
// surface to watchers as a timeout).
type Stage string

const (
	StagePending        Stage = "pending"
	StageUpload         Stage = "upload"
	StagePreprocessing  Stage = "preprocessing"
	StageInference      Stage = "inference"
	StagePostprocessing Stage = "postprocessing"
	StageComplete       Stage = "complete"
)

var stageOrder = map[Stage]int{
	StagePending:        0,
	StageUpload:         1,
	StagePreprocessing:  2,
	StageInference:      3,
	StagePostprocessing: 4,
	StageComplete:       5,
}

// Sentinel errors for registry operations.
var (
	// ErrRegistryFull indicates the bounded registry cannot accept
	// another record.
	ErrRegistryFull = errors.New("progress registry full")

	// ErrDuplicateTask indicates the task id is already registered.
	ErrDuplicateTask = errors.New("task already registered")
)

// Record is one job's observable progress state.
type Record struct {
	Stage   Stage  `json:"stage"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Config configures registry timing and bounds.
type Config struct {
	// Grace is how long a completed record is retained for a trailing
	// read before the reaper removes it. Default 60s.
	Grace time.Duration

	// ReapInterval is how often the reaper scans. Default 5s.
	ReapInterval time.Duration

	// PollInterval is the watcher change-detection quantum. Default 500ms.
	PollInterval time.Duration

	// MaxIdlePolls is how many unchanged polls a watcher tolerates
	// before emitting a timeout marker. Default 300.
	MaxIdlePolls int

	// MaxRecords bounds the registry. Default 1024.
	MaxRecords int
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		Grace:        60 * time.Second,
		ReapInterval: 5 * time.Second,
		PollInterval: 500 * time.Millisecond,
		MaxIdlePolls: 300,
		MaxRecords:   1024,
	}
}

type entry struct {
	record      Record
	completedAt time.Time
}

// Registry is the bounded progress table with background self-cleanup.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	records map[string]*entry

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry and starts its reaper.
func NewRegistry(cfg Config) *Registry {
	def := DefaultConfig()
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = def.ReapInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxIdlePolls <= 0 {
		cfg.MaxIdlePolls = def.MaxIdlePolls
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = def.MaxRecords
	}

	r := &Registry{
		cfg:     cfg,
		records: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	go r.reap()
	return r
}

// Close stops the reaper. Records are left in place.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Create registers a task id in the pending stage.
func (r *Registry) Create(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; exists {
		return ErrDuplicateTask
	}
	if len(r.records) >= r.cfg.MaxRecords {
		return ErrRegistryFull
	}
	r.records[id] = &entry{record: Record{
		Stage:   StagePending,
		Total:   100,
		Message: "等待开始...",
	}}
	return nil
}

// Update advances a record. Unknown ids are ignored (only task creation
// registers a record), as are backward stage transitions.
func (r *Registry) Update(id string, stage Stage, current, total int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[id]
	if !ok {
		return
	}
	if stageOrder[stage] < stageOrder[e.record.Stage] {
		return
	}

	percent := 0
	if total > 0 {
		percent = current * 100 / total
	}
	e.record = Record{
		Stage:   stage,
		Current: current,
		Total:   total,
		Percent: percent,
		Message: message,
	}
	if stage == StageComplete && e.completedAt.IsZero() {
		e.completedAt = time.Now()
	}
}

// Get returns a snapshot of the record for id.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return e.record, true
}

// Len returns the number of live records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// reap removes completed records once their grace window has elapsed.
func (r *Registry) reap() {
	ticker := time.NewTicker(r.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.mu.Lock()
			for id, e := range r.records {
				if !e.completedAt.IsZero() && now.Sub(e.completedAt) >= r.cfg.Grace {
					delete(r.records, id)
				}
			}
			r.mu.Unlock()
		}
	}
}
