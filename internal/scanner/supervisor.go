package scanner

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"assetbank/internal/config"
	"assetbank/internal/constants"
	"assetbank/internal/database"
	"assetbank/internal/events"
	"assetbank/internal/ingest"
	"assetbank/internal/logger"
	"assetbank/internal/metadata"
)

// State is the supervisor state machine.
type State string

const (
	StateIdle       State = "IDLE"
	StateRunning    State = "RUNNING"
	StatePaused     State = "PAUSED"
	StateCancelling State = "CANCELLING"
)

// Phase selects which scan passes run.
type Phase string

const (
	PhaseFast   Phase = "fast"
	PhaseEnrich Phase = "enrich"
	PhaseFull   Phase = "full"
)

// Progress counters for a running scan.
type Progress struct {
	Scanned int `json:"scanned"`
	Total   int `json:"total"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Status is a snapshot of the supervisor.
type Status struct {
	State    State    `json:"state"`
	Progress Progress `json:"progress"`
	Errors   []string `json:"errors"`
}

// Options configure one scan run.
type Options struct {
	Roots         []config.RootType
	Phase         Phase
	PruneFirst    bool
	ComputeHashes bool
	ProgressFunc  func(Progress)
}

// Supervisor owns at most one background scan goroutine at a time.
//
// The mutex guards state, progress, errors and the worker handle. The worker
// never holds it across filesystem or database calls; it cooperates through
// the cancel flag and the pause gate at checkpoint boundaries.
type Supervisor struct {
	db    *sql.DB
	roots *config.Roots
	log   *logger.Logger
	sink  events.Sink

	mu       sync.Mutex
	gate     *sync.Cond
	state    State
	paused   bool
	progress Progress
	errors   []string
	done     chan struct{}
	opts     Options

	cancelled atomic.Bool
}

func NewSupervisor(db *sql.DB, roots *config.Roots, log *logger.Logger, sink events.Sink) *Supervisor {
	if sink == nil {
		sink = events.Discard{}
	}
	s := &Supervisor{db: db, roots: roots, log: log, sink: sink, state: StateIdle}
	s.gate = sync.NewCond(&s.mu)
	return s
}

// Start launches a scan. Returns false when one is already in flight.
func (s *Supervisor) Start(opts Options) bool {
	if len(opts.Roots) == 0 {
		opts.Roots = config.AllRoots
	}
	if opts.Phase == "" {
		opts.Phase = PhaseFull
	}
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		s.log.Info("scan already running, start skipped")
		return false
	}
	s.state = StateRunning
	s.paused = false
	s.progress = Progress{}
	s.errors = nil
	s.opts = opts
	s.cancelled.Store(false)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.log.Info("scan start (roots=%v, phase=%s)", opts.Roots, opts.Phase)
	go func() {
		defer close(done)
		s.run(opts)
	}()
	return true
}

// Pause suspends the scan at its next checkpoint.
func (s *Supervisor) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return false
	}
	s.state = StatePaused
	s.paused = true
	return true
}

// Resume wakes a paused scan.
func (s *Supervisor) Resume() bool {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return false
	}
	s.state = StateRunning
	s.paused = false
	s.gate.Broadcast()
	s.mu.Unlock()
	s.sink.Send(events.SeedResumed, map[string]any{})
	return true
}

// Cancel requests cancellation. Returns false when no scan is in flight.
func (s *Supervisor) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning && s.state != StatePaused {
		return false
	}
	s.state = StateCancelling
	s.paused = false
	s.cancelled.Store(true)
	s.gate.Broadcast()
	return true
}

// Wait blocks until the current scan finishes or the timeout expires.
// A zero timeout waits forever.
func (s *Supervisor) Wait(timeout time.Duration) bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return true
	}
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Shutdown cancels any running scan and waits for the worker.
func (s *Supervisor) Shutdown(timeout time.Duration) {
	s.Cancel()
	s.Wait(timeout)
}

// Status snapshots state, progress and errors.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := make([]string, len(s.errors))
	copy(errs, s.errors)
	return Status{State: s.state, Progress: s.progress, Errors: errs}
}

// PruneResult reports what a prune pass changed.
type PruneResult struct {
	MarkedMissing int64 `json:"marked_missing"`
	DeletedStubs  int64 `json:"deleted_stubs"`
}

// Prune marks cache states outside every known root as missing and deletes
// stub assets nothing points at any more. Runs only while IDLE; partial
// scans would misclassify assets belonging to unscanned roots.
func (s *Supervisor) Prune() (PruneResult, bool) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		s.log.Warn("prune refused while a scan is running")
		return PruneResult{}, false
	}
	s.state = StateRunning
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
	}()

	var res PruneResult
	err := database.WithTx(s.db, func(tx *sql.Tx) error {
		marked, err := database.MarkCacheStatesMissingOutsidePrefixes(tx, s.roots.AllPrefixes())
		if err != nil {
			return err
		}
		res.MarkedMissing = marked
		orphans, err := database.GetUnreferencedUnhashedAssetIDs(tx)
		if err != nil {
			return err
		}
		deleted, err := database.DeleteAssetsByIDs(tx, orphans)
		if err != nil {
			return err
		}
		res.DeletedStubs = deleted
		return nil
	})
	if err != nil {
		s.log.Error("prune failed: %v", err)
		return PruneResult{}, false
	}
	if res.MarkedMissing > 0 || res.DeletedStubs > 0 {
		s.log.Info("prune marked %d cache states missing, deleted %d stub assets",
			res.MarkedMissing, res.DeletedStubs)
	}
	return res, true
}

// checkpoint blocks while paused and reports whether the scan is cancelled.
// Called between phases, between roots and between batches; never mid-batch.
func (s *Supervisor) checkpoint() bool {
	s.mu.Lock()
	wasPaused := s.paused
	s.mu.Unlock()
	if wasPaused {
		s.sink.Send(events.SeedPaused, map[string]any{})
	}
	s.mu.Lock()
	for s.paused && !s.cancelled.Load() {
		s.gate.Wait()
	}
	s.mu.Unlock()
	return s.cancelled.Load()
}

func (s *Supervisor) addError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errors) < constants.MaxScanErrors {
		s.errors = append(s.errors, msg)
	}
}

func (s *Supervisor) updateProgress(update func(*Progress)) {
	s.mu.Lock()
	update(&s.progress)
	cb := s.opts.ProgressFunc
	snapshot := s.progress
	s.mu.Unlock()
	if cb != nil {
		func() {
			defer func() { recover() }()
			cb(snapshot)
		}()
	}
}

func (s *Supervisor) run(opts Options) {
	tStart := time.Now()
	cancelled := false
	totalCreated, totalEnriched, skipped, totalPaths := 0, 0, 0, 0

	defer func() {
		if cancelled {
			s.sink.Send(events.SeedCancelled, map[string]any{
				"scanned": s.Status().Progress.Scanned,
				"total":   totalPaths,
				"created": totalCreated,
			})
		}
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
	}()

	if opts.PruneFirst {
		if marked, err := s.pruneInline(); err != nil {
			s.addError(fmt.Sprintf("prune failed: %v", err))
		} else if marked > 0 {
			s.log.Info("marked %d cache states missing before scan", marked)
		}
	}
	if s.checkpoint() {
		cancelled = true
		return
	}

	if opts.Phase == PhaseFast || opts.Phase == PhaseFull {
		var ok bool
		totalCreated, skipped, totalPaths, ok = s.runFastPhase(opts)
		if !ok {
			cancelled = true
			return
		}
		s.sink.Send(events.SeedFastDone, map[string]any{
			"roots":   opts.Roots,
			"created": totalCreated,
			"skipped": skipped,
			"total":   totalPaths,
		})
	}

	if opts.Phase == PhaseEnrich || opts.Phase == PhaseFull {
		if s.checkpoint() {
			cancelled = true
			return
		}
		var ok bool
		totalEnriched, ok = s.runEnrichPhase(opts)
		if !ok {
			cancelled = true
			return
		}
		s.sink.Send(events.SeedEnrichDone, map[string]any{
			"roots":    opts.Roots,
			"enriched": totalEnriched,
		})
	}

	elapsed := time.Since(tStart)
	s.log.Info("scan(roots=%v, phase=%s) completed in %s (created=%d, enriched=%d, skipped=%d)",
		opts.Roots, opts.Phase, elapsed.Round(time.Millisecond), totalCreated, totalEnriched, skipped)
	s.sink.Send(events.SeedCompleted, map[string]any{
		"phase":    string(opts.Phase),
		"total":    totalPaths,
		"created":  totalCreated,
		"enriched": totalEnriched,
		"skipped":  skipped,
		"elapsed":  elapsed.Seconds(),
	})
}

// pruneInline is the prune pass run inside an active scan, bypassing the
// IDLE check Prune enforces for external callers.
func (s *Supervisor) pruneInline() (int64, error) {
	var marked int64
	err := database.WithTx(s.db, func(tx *sql.Tx) error {
		n, err := database.MarkCacheStatesMissingOutsidePrefixes(tx, s.roots.AllPrefixes())
		marked = n
		return err
	})
	return marked, err
}

func (s *Supervisor) runFastPhase(opts Options) (created, skipped, totalPaths int, ok bool) {
	rc := &Reconciler{DB: s.db, Roots: s.roots, Log: s.log}
	survivors := make(map[string]bool)
	for _, root := range opts.Roots {
		if s.checkpoint() {
			return created, skipped, 0, false
		}
		for p := range rc.SyncRoot(root) {
			survivors[p] = true
		}
	}
	if s.checkpoint() {
		return created, skipped, 0, false
	}

	paths := CollectPaths(s.roots, opts.Roots)
	totalPaths = len(paths)
	s.updateProgress(func(p *Progress) { p.Total = totalPaths })
	s.sink.Send(events.SeedStarted, map[string]any{
		"roots": opts.Roots, "total": totalPaths, "phase": string(PhaseFast),
	})

	items, skipped := s.buildStubItems(paths, survivors)
	s.updateProgress(func(p *Progress) { p.Skipped = skipped })
	if s.checkpoint() {
		return created, skipped, totalPaths, false
	}

	lastEvent := time.Now()
	for i := 0; i < len(items); i += constants.FastScanBatchSize {
		if s.checkpoint() {
			s.log.Info("fast scan cancelled after %d/%d files (created=%d)", i, len(items), created)
			return created, skipped, totalPaths, false
		}
		end := i + constants.FastScanBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[i:end]

		var res *ingest.Result
		err := database.WithTx(s.db, func(tx *sql.Tx) error {
			r, err := ingest.Batch(tx, batch)
			res = r
			return err
		})
		if err != nil {
			s.addError(fmt.Sprintf("batch insert failed at offset %d: %v", i, err))
			s.log.Error("batch insert failed at offset %d: %v", i, err)
		} else {
			created += res.InsertedReferences
		}

		scanned := end
		s.updateProgress(func(p *Progress) { p.Scanned = scanned; p.Created = created })
		if time.Since(lastEvent) >= time.Second {
			s.sink.Send(events.SeedProgress, map[string]any{
				"phase": string(PhaseFast), "scanned": scanned,
				"total": len(items), "created": created,
			})
			lastEvent = time.Now()
		}
	}
	s.updateProgress(func(p *Progress) { p.Scanned = len(items); p.Created = created })
	return created, skipped, totalPaths, true
}

// buildStubItems stats each new path and shapes a hashless ingest item for
// it. Unreadable and empty files are dropped.
func (s *Supervisor) buildStubItems(paths []string, survivors map[string]bool) ([]ingest.Item, int) {
	var items []ingest.Item
	skipped := 0
	for _, p := range paths {
		if survivors[p] {
			skipped++
			continue
		}
		fi, err := os.Lstat(p)
		if err != nil || fi.Size() == 0 {
			continue
		}
		name, tags := s.roots.NameAndTags(p)
		rel := s.roots.RelativeFilename(p)
		jsonText, rows, err := metadata.MergeObject(nil, map[string]any{"filename": rel})
		if err != nil {
			continue
		}
		mtime := fi.ModTime().UnixNano()
		size := fi.Size()
		items = append(items, ingest.Item{
			FilePath:     p,
			MtimeNs:      &mtime,
			SizeBytes:    size,
			Name:         name,
			Tags:         tags,
			TagOrigin:    constants.TagOriginAuto,
			UserMetadata: &jsonText,
			MetaRows:     rows,
		})
	}
	return items, skipped
}

func (s *Supervisor) runEnrichPhase(opts Options) (int, bool) {
	enricher := &Enricher{DB: s.db, Roots: s.roots, Log: s.log}
	maxLevel := constants.EnrichmentStub
	if opts.ComputeHashes {
		maxLevel = constants.EnrichmentMetadata
	}

	var prefixes []string
	for _, root := range opts.Roots {
		prefixes = append(prefixes, s.roots.PrefixesFor(root)...)
	}

	s.sink.Send(events.SeedStarted, map[string]any{
		"roots": opts.Roots, "phase": string(PhaseEnrich),
	})

	totalEnriched := 0
	lastEvent := time.Now()
	attempted := make(map[string]bool)
	for {
		if s.checkpoint() {
			s.log.Info("enrich scan cancelled after %d references", totalEnriched)
			return totalEnriched, false
		}
		candidates, err := database.GetEnrichmentCandidates(s.db, prefixes, maxLevel, constants.EnrichBatchSize)
		if err != nil {
			s.addError(fmt.Sprintf("enrich candidate query failed: %v", err))
			s.log.Error("enrich candidate query failed: %v", err)
			s.sink.Send(events.SeedError, map[string]any{"message": err.Error()})
			break
		}
		fresh := candidates[:0]
		for _, c := range candidates {
			if !attempted[c.ReferenceID] {
				attempted[c.ReferenceID] = true
				fresh = append(fresh, c)
			}
		}
		if len(fresh) == 0 {
			break
		}

		enriched, _, errs := enricher.EnrichBatch(fresh, opts.ComputeHashes)
		totalEnriched += enriched
		for _, msg := range errs {
			s.addError(msg)
		}

		if time.Since(lastEvent) >= time.Second {
			s.sink.Send(events.SeedProgress, map[string]any{
				"phase": string(PhaseEnrich), "enriched": totalEnriched,
			})
			lastEvent = time.Now()
		}
	}
	return totalEnriched, true
}
