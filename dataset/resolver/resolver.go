// Package resolver arbitrates, per resource lookup, whether the immutable
// baseline dataset or a previously downloaded local dataset is authoritative,
// and reclaims superseded local copies.
package resolver

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/starforge-mobile/datasync/dataset"
)

// Subtree is one independently replaceable directory of a dataset root.
type Subtree string

const (
	SubtreeDataset Subtree = "dataset"
	SubtreeIcons   Subtree = "icons"
)

// Resource categorizes lookups into the on-disk layout.
type Resource string

const (
	ResourceDB           Resource = "db"
	ResourceLocalization Resource = "localization"
	ResourceMaps         Resource = "maps"
	ResourceIcons        Resource = "icons"
)

// location maps a resource to its subtree and relative directory.
func (r Resource) location() (Subtree, string, error) {
	switch r {
	case ResourceDB, ResourceLocalization, ResourceMaps:
		return SubtreeDataset, string(r), nil
	case ResourceIcons:
		return SubtreeIcons, "", nil
	default:
		return "", "", fmt.Errorf("unknown resource kind %q", r)
	}
}

// Source identifies which dataset answered a lookup.
type Source string

const (
	SourceBaseline Source = "baseline"
	SourceLocal    Source = "local"
)

// Resolver decides between the baseline and the local dataset. All methods
// that touch the local tree share one mutex: a resolve racing a commit could
// otherwise observe a half-replaced directory.
type Resolver struct {
	mu           sync.Mutex
	baselineRoot string
	localRoot    string
	baseline     *dataset.Descriptor
}

// New builds a resolver over a baseline root (immutable, always present) and a
// local root (writable, possibly absent). The baseline descriptor is fixed for
// the lifetime of the resolver; the local descriptor is re-read on every call.
func New(baselineRoot, localRoot string, baseline *dataset.Descriptor) (*Resolver, error) {
	if err := baseline.Validate(); err != nil {
		return nil, fmt.Errorf("baseline descriptor: %w", err)
	}
	return &Resolver{baselineRoot: baselineRoot, localRoot: localRoot, baseline: baseline}, nil
}

// NewFromDisk reads the baseline descriptor from the baseline root's dataset
// sidecar. The baseline ships inside the app package, so a missing sidecar is
// a packaging error, not a runtime condition.
func NewFromDisk(baselineRoot, localRoot string) (*Resolver, error) {
	desc, err := dataset.ReadDescriptor(filepath.Join(baselineRoot, string(SubtreeDataset)))
	if err != nil {
		return nil, fmt.Errorf("read baseline descriptor: %w", err)
	}
	return New(baselineRoot, localRoot, desc)
}

func (r *Resolver) BaselineDescriptor() *dataset.Descriptor { return r.baseline }
func (r *Resolver) LocalRoot() string                       { return r.localRoot }

// ResolvePath returns the absolute path for a named resource, choosing the
// local copy only when it is strictly newer than the baseline and the file
// actually exists there. Resolving may delete a superseded local tree as a
// side effect.
func (r *Resolver) ResolvePath(res Resource, name string) (string, Source, error) {
	if err := validateName(name); err != nil {
		return "", "", err
	}
	sub, dir, err := res.location()
	if err != nil {
		return "", "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	source := r.authorityLocked(sub)
	if source == SourceLocal {
		path := filepath.Join(r.localRoot, string(sub), dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, SourceLocal, nil
		}
	}
	return filepath.Join(r.baselineRoot, string(sub), dir, name), SourceBaseline, nil
}

// Authority reports which dataset currently answers lookups for a subtree.
// Like ResolvePath, it may reclaim a superseded local tree.
func (r *Resolver) Authority(sub Subtree) Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authorityLocked(sub)
}

// Effective returns the descriptor the rest of the app should consider
// current: the database version from whichever subtree owns the database, the
// icon version from whichever owns the icons. Recomputed on every call.
func (r *Resolver) Effective() *dataset.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	eff := *r.baseline
	eff.Hashes = map[dataset.ArtifactKind]string{
		dataset.ArtifactDatabase: r.baseline.Hashes[dataset.ArtifactDatabase],
		dataset.ArtifactIcons:    r.baseline.Hashes[dataset.ArtifactIcons],
	}
	if r.authorityLocked(SubtreeDataset) == SourceLocal {
		if local, err := r.localDescriptor(SubtreeDataset); err == nil {
			eff.Version = local.Version
			eff.ReleaseDate = local.ReleaseDate
			eff.Hashes[dataset.ArtifactDatabase] = local.Hashes[dataset.ArtifactDatabase]
		}
	}
	if r.authorityLocked(SubtreeIcons) == SourceLocal {
		if local, err := r.localDescriptor(SubtreeIcons); err == nil {
			eff.IconVersion = local.IconVersion
			eff.Hashes[dataset.ArtifactIcons] = local.Hashes[dataset.ArtifactIcons]
		}
	}
	return &eff
}

// authorityLocked re-evaluates authority from disk state. Never cached: the
// answer can flip at any commit or reset boundary.
func (r *Resolver) authorityLocked(sub Subtree) Source {
	subRoot := filepath.Join(r.localRoot, string(sub))
	if _, err := os.Stat(subRoot); err != nil {
		return SourceBaseline
	}

	local, err := r.localDescriptor(sub)
	if err != nil {
		// Local tree exists but its descriptor is missing or corrupt:
		// baseline wins and the unusable copy is reclaimed.
		r.reclaimLocked(sub, "missing or corrupt descriptor")
		return SourceBaseline
	}

	switch sub {
	case SubtreeIcons:
		if local.IconVersion > r.baseline.IconVersion {
			return SourceLocal
		}
		if local.IconVersion < r.baseline.IconVersion {
			r.reclaimLocked(sub, "baseline icons newer")
		}
	default:
		cmp := local.Version.Compare(r.baseline.Version)
		if cmp > 0 {
			return SourceLocal
		}
		if cmp < 0 {
			r.reclaimLocked(sub, "baseline newer")
		}
		// Equal versions favor the baseline but the local copy is left
		// on disk; it is not stale, merely redundant.
	}
	return SourceBaseline
}

func (r *Resolver) localDescriptor(sub Subtree) (*dataset.Descriptor, error) {
	return dataset.ReadDescriptor(filepath.Join(r.localRoot, string(sub)))
}

// reclaimLocked deletes the superseded local copy. A superseded database
// supersedes the whole local dataset; superseded icons only drop the icon
// subtree.
func (r *Resolver) reclaimLocked(sub Subtree, reason string) {
	target := r.localRoot
	if sub == SubtreeIcons {
		target = filepath.Join(r.localRoot, string(SubtreeIcons))
	}
	slog.Info("reclaiming superseded local dataset", "path", target, "reason", reason)
	if err := os.RemoveAll(target); err != nil {
		slog.Warn("failed to reclaim local dataset", "path", target, "error", err)
	}
}

// StagingPath returns where the pipeline should extract a subtree before
// committing it. It lives under the local root so the final rename stays on
// one filesystem.
func (r *Resolver) StagingPath(sub Subtree, runID string) string {
	return filepath.Join(r.localRoot, ".staging", runID, string(sub))
}

// Commit atomically swaps a fully extracted staging directory into place.
// The old subtree, if any, is renamed aside first and removed after, so
// readers serialized on the resolver lock never see a partial tree.
func (r *Resolver) Commit(sub Subtree, stagingDir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dest := filepath.Join(r.localRoot, string(sub))
	if err := os.MkdirAll(r.localRoot, 0o755); err != nil {
		return fmt.Errorf("create local root: %w", err)
	}

	old := dest + ".old"
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("clear previous swap residue: %w", err)
	}
	swapped := false
	if _, err := os.Stat(dest); err == nil {
		if err := os.Rename(dest, old); err != nil {
			return fmt.Errorf("move old %s aside: %w", sub, err)
		}
		swapped = true
	}
	if err := os.Rename(stagingDir, dest); err != nil {
		if swapped {
			// Best effort restore; the old tree is still intact.
			if rerr := os.Rename(old, dest); rerr != nil {
				slog.Error("failed to restore previous dataset after aborted commit", "error", rerr)
			}
		}
		return fmt.Errorf("commit %s: %w", sub, err)
	}
	if swapped {
		if err := os.RemoveAll(old); err != nil {
			slog.Warn("failed to remove replaced dataset", "path", old, "error", err)
		}
	}
	return nil
}

// Reset deletes the entire local dataset, reverting every lookup to baseline.
func (r *Resolver) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return os.RemoveAll(r.localRoot)
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("resource name is empty")
	}
	if strings.Contains(name, "..") || filepath.IsAbs(name) {
		return fmt.Errorf("resource name %q contains illegal characters", name)
	}
	return nil
}
