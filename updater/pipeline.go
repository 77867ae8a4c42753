// Package updater orchestrates dataset updates: check, fetch, verify,
// extract, commit.
package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/starforge-mobile/datasync/archive"
	"github.com/starforge-mobile/datasync/dataset"
	"github.com/starforge-mobile/datasync/dataset/resolver"
	"github.com/starforge-mobile/datasync/integrity"
	"github.com/starforge-mobile/datasync/remote"
)

// ErrConcurrentRun rejects a second pipeline invocation while one is in
// progress. Runs are never interleaved: both would target the same staging
// and destination directories.
var ErrConcurrentRun = errors.New("update run already in progress")

// Outcome summarizes a pipeline run.
type Outcome string

const (
	OutcomeUpToDate Outcome = "up_to_date"
	OutcomeSuccess  Outcome = "success"
	OutcomePartial  Outcome = "partial"
	OutcomeFailed   Outcome = "failed"
)

// ArtifactResult is the per-artifact verdict of one run.
type ArtifactResult struct {
	Kind    dataset.ArtifactKind
	Skipped bool
	Err     error
}

// RunReport aggregates one run. Committed artifacts are never rolled back on
// a sibling's failure, so independent artifacts may end up at different
// vintages; the report keeps that visible instead of masking it.
type RunReport struct {
	RunID   string
	Release remote.ReleaseID
	Results []ArtifactResult
}

// Outcome distinguishes total success, partial success and total failure.
func (r *RunReport) Outcome() Outcome {
	updated, failed := 0, 0
	for _, res := range r.Results {
		switch {
		case res.Err != nil:
			failed++
		case !res.Skipped:
			updated++
		}
	}
	switch {
	case failed == 0 && updated == 0:
		return OutcomeUpToDate
	case failed == 0:
		return OutcomeSuccess
	case updated == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

// artifactPlan drives the uniform per-artifact loop. Adding an artifact kind
// means adding a row here, not new control flow.
type artifactPlan struct {
	kind        dataset.ArtifactKind
	field       string
	subtree     resolver.Subtree
	advanced    func(remote, current *dataset.Descriptor) bool
	postExtract func(stagingDir string, desc *dataset.Descriptor) error
}

var plans = []artifactPlan{
	{
		kind:    dataset.ArtifactDatabase,
		field:   remote.FieldDatabaseArchive,
		subtree: resolver.SubtreeDataset,
		advanced: func(rem, cur *dataset.Descriptor) bool {
			return rem.Version.Newer(cur.Version)
		},
		postExtract: dataset.WriteDescriptor,
	},
	{
		kind:    dataset.ArtifactIcons,
		field:   remote.FieldIconArchive,
		subtree: resolver.SubtreeIcons,
		advanced: func(rem, cur *dataset.Descriptor) bool {
			return rem.IconVersion > cur.IconVersion
		},
		postExtract: dataset.WriteDescriptor,
	},
}

// Pipeline runs the update sequence for every artifact kind that advanced.
type Pipeline struct {
	runMu    sync.Mutex
	store    *remote.Client
	res      *resolver.Resolver
	checker  *Checker
	sink     Sink
	onCommit func()
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSink attaches a structured event sink.
func WithSink(sink Sink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithCommitHook registers a callback fired after a fully successful run, so
// dependent subsystems reload from the new authoritative paths.
func WithCommitHook(fn func()) Option {
	return func(p *Pipeline) { p.onCommit = fn }
}

func NewPipeline(store *remote.Client, res *resolver.Resolver, checker *Checker, opts ...Option) *Pipeline {
	p := &Pipeline{store: store, res: res, checker: checker}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs one single-flight update pass. A concurrent call returns
// ErrConcurrentRun and leaves the in-progress run untouched. Per-artifact
// failures land in the report; Run itself errors only when the check fails
// or the run is rejected.
func (p *Pipeline) Run(ctx context.Context, force bool) (*RunReport, error) {
	if !p.runMu.TryLock() {
		return nil, ErrConcurrentRun
	}
	defer p.runMu.Unlock()

	runID := uuid.NewString()[:8]
	em := &emitter{runID: runID, sink: p.sink}
	report := &RunReport{RunID: runID}

	em.info("", "checking for dataset updates")
	check, err := p.checker.Check(ctx, force)
	if err != nil {
		em.errorf("", err.Error())
		return report, err
	}
	if check.State != StateHasUpdate {
		em.info("", "dataset is up to date")
		return report, nil
	}
	report.Release = check.Record.ID
	em.info("", fmt.Sprintf("release %s available: db %s (local %s), icons v%d (local v%d)",
		check.Record.ID, check.Remote.Version, check.Current.Version,
		check.Remote.IconVersion, check.Current.IconVersion))

	// Single-flight guarantees nobody else is staging, so the whole staging
	// area can be dropped when the run ends.
	stagingRoot := filepath.Join(p.res.LocalRoot(), ".staging", runID)
	defer os.RemoveAll(filepath.Join(p.res.LocalRoot(), ".staging"))

	for _, plan := range plans {
		report.Results = append(report.Results, p.runArtifact(ctx, em, plan, check, stagingRoot, runID))
	}

	outcome := report.Outcome()
	switch outcome {
	case OutcomeSuccess:
		// Force a fresh check on next access and tell dependents to
		// reload from the new authoritative paths.
		p.checker.ClearCooldown()
		if p.onCommit != nil {
			p.onCommit()
		}
		em.success("", "dataset update complete")
	case OutcomePartial:
		em.emit(LevelWarning, "", "dataset update partially complete", nil)
	case OutcomeFailed:
		em.errorf("", "dataset update failed")
	}
	return report, nil
}

// runArtifact executes Fetch → Verify → Extract → Commit → Cleanup for one
// artifact kind. Cancellation is honored between steps; once the commit swap
// starts it is deferred until the swap completes.
func (p *Pipeline) runArtifact(ctx context.Context, em *emitter, plan artifactPlan, check *CheckResult, stagingRoot, runID string) ArtifactResult {
	result := ArtifactResult{Kind: plan.kind}

	if !plan.advanced(check.Remote, check.Current) {
		em.info(plan.kind, fmt.Sprintf("%s unchanged, skipping", plan.kind))
		result.Skipped = true
		return result
	}
	if err := ctx.Err(); err != nil {
		result.Err = err
		em.errorf(plan.kind, fmt.Sprintf("%s update cancelled", plan.kind))
		return result
	}

	em.info(plan.kind, fmt.Sprintf("downloading %s", plan.field))
	archivePath, err := p.store.FetchArtifact(ctx, check.Record.ID, plan.field, stagingRoot, func(f float64) {
		em.progress(plan.kind, "downloading", f)
	})
	if err != nil {
		result.Err = err
		em.errorf(plan.kind, fmt.Sprintf("download failed: %v", err))
		return result
	}
	defer os.Remove(archivePath)

	if err := integrity.Verify(archivePath, check.Remote.Hashes[plan.kind]); err != nil {
		// Terminal for this artifact: no extraction, no commit, any
		// previously committed dataset stays intact.
		result.Err = err
		em.errorf(plan.kind, err.Error())
		return result
	}
	em.info(plan.kind, "checksum verified")

	if err := ctx.Err(); err != nil {
		result.Err = err
		em.errorf(plan.kind, fmt.Sprintf("%s update cancelled", plan.kind))
		return result
	}

	stagingDir := p.res.StagingPath(plan.subtree, runID)
	if err := archive.Extract(archivePath, stagingDir, func(f float64) {
		em.progress(plan.kind, "extracting", f)
	}); err != nil {
		result.Err = err
		em.errorf(plan.kind, err.Error())
		return result
	}

	if plan.postExtract != nil {
		if err := plan.postExtract(stagingDir, check.Remote); err != nil {
			result.Err = fmt.Errorf("write descriptor: %w", err)
			em.errorf(plan.kind, result.Err.Error())
			return result
		}
	}

	if err := p.res.Commit(plan.subtree, stagingDir); err != nil {
		result.Err = err
		em.errorf(plan.kind, fmt.Sprintf("commit failed: %v", err))
		return result
	}
	em.success(plan.kind, fmt.Sprintf("%s updated", plan.kind))
	return result
}
