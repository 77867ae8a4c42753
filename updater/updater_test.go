package updater

// Shared fixtures: an httptest release store and baseline/local dataset trees.

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/starforge-mobile/datasync/dataset"
	"github.com/starforge-mobile/datasync/dataset/resolver"
	"github.com/starforge-mobile/datasync/remote"
	"github.com/stretchr/testify/require"
)

const testClientVersion = "1.4.0"

func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func sha256hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// fakeRelease is one published release served by the fake store.
type fakeRelease struct {
	id          string
	minClient   string
	desc        *dataset.Descriptor
	inline      bool
	dbArchive   []byte
	iconArchive []byte
}

type fakeStore struct {
	mu         sync.Mutex
	releases   []fakeRelease
	listCalls  int
	fetchCalls map[string]int
	// blockField, when set, parks that artifact download until unblock is
	// closed. Used to hold a run open for the single-flight test.
	blockField string
	blocked    chan struct{}
	unblock    chan struct{}
	srv        *httptest.Server
}

func newFakeStore(t *testing.T, releases ...fakeRelease) *fakeStore {
	t.Helper()
	fs := &fakeStore{
		releases:   releases,
		fetchCalls: map[string]int{},
		blocked:    make(chan struct{}, 1),
		unblock:    make(chan struct{}),
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.srv.Close)
	return fs
}

func descriptorJSON(d *dataset.Descriptor) map[string]any {
	return map[string]any{
		"buildNumber": d.Version.Build,
		"patchNumber": d.Version.Patch,
		"iconVersion": d.IconVersion,
		"releaseDate": d.ReleaseDate,
		"dbHash":      d.Hashes[dataset.ArtifactDatabase],
		"iconHash":    d.Hashes[dataset.ArtifactIcons],
	}
}

func (fs *fakeStore) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/releases" {
		fs.mu.Lock()
		fs.listCalls++
		list := make([]map[string]any, 0, len(fs.releases))
		for _, rel := range fs.releases {
			rec := map[string]any{
				"id":                 rel.id,
				"min_client_version": rel.minClient,
				"build_number":       rel.desc.Version.Build,
				"patch_number":       rel.desc.Version.Patch,
				"icon_version":       rel.desc.IconVersion,
				"release_date":       rel.desc.ReleaseDate,
			}
			if rel.inline {
				rec["descriptor"] = descriptorJSON(rel.desc)
			}
			list = append(list, rec)
		}
		fs.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"list": list},
		})
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/releases/"), "/artifacts/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	id, field := parts[0], parts[1]

	fs.mu.Lock()
	fs.fetchCalls[field]++
	block := fs.blockField == field
	var payload []byte
	found := false
	for _, rel := range fs.releases {
		if rel.id != id {
			continue
		}
		switch field {
		case remote.FieldDatabaseArchive:
			payload, found = rel.dbArchive, rel.dbArchive != nil
		case remote.FieldIconArchive:
			payload, found = rel.iconArchive, rel.iconArchive != nil
		case remote.FieldDescriptorFile:
			raw, _ := json.Marshal(descriptorJSON(rel.desc))
			payload, found = raw, true
		}
	}
	fs.mu.Unlock()

	if block {
		select {
		case fs.blocked <- struct{}{}:
		default:
		}
		<-fs.unblock
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	w.Write(payload)
}

func (fs *fakeStore) listCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.listCalls
}

func (fs *fakeStore) fetchCount(field string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.fetchCalls[field]
}

func (fs *fakeStore) totalFetches() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	total := 0
	for _, n := range fs.fetchCalls {
		total += n
	}
	return total
}

func baseDescriptor(build, patch, iconVersion int) *dataset.Descriptor {
	return &dataset.Descriptor{
		Version:     dataset.Version{Build: build, Patch: patch},
		IconVersion: iconVersion,
		ReleaseDate: "2026-07-01",
		Hashes: map[dataset.ArtifactKind]string{
			dataset.ArtifactDatabase: sha256hex([]byte("baseline db")),
			dataset.ArtifactIcons:    sha256hex([]byte("baseline icons")),
		},
	}
}

// newRelease builds a consistent remote release: archives plus a descriptor
// whose hashes match them.
func newRelease(t *testing.T, id string, build, patch, iconVersion int) fakeRelease {
	t.Helper()
	db := zipBytes(t, map[string]string{
		"db/universe.sqlite":   "db payload " + id,
		"localization/en.json": "{}",
		"maps/region.json":     "{}",
	})
	icons := zipBytes(t, map[string]string{
		"ship_1.png": "icon payload " + id,
	})
	return fakeRelease{
		id:        id,
		minClient: testClientVersion,
		inline:    true,
		desc: &dataset.Descriptor{
			Version:     dataset.Version{Build: build, Patch: patch},
			IconVersion: iconVersion,
			ReleaseDate: "2026-08-10",
			Hashes: map[dataset.ArtifactKind]string{
				dataset.ArtifactDatabase: sha256hex(db),
				dataset.ArtifactIcons:    sha256hex(icons),
			},
		},
		dbArchive:   db,
		iconArchive: icons,
	}
}

type fixture struct {
	store    *fakeStore
	client   *remote.Client
	res      *resolver.Resolver
	checker  *Checker
	localDir string
}

func newFixture(t *testing.T, baseline *dataset.Descriptor, releases ...fakeRelease) *fixture {
	t.Helper()
	baseRoot := filepath.Join(t.TempDir(), "baseline")
	localRoot := filepath.Join(t.TempDir(), "local")
	for sub, payload := range map[resolver.Subtree]string{
		resolver.SubtreeDataset: "baseline db",
		resolver.SubtreeIcons:   "baseline icons",
	} {
		dir := filepath.Join(baseRoot, string(sub))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, dataset.WriteDescriptor(dir, baseline))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "payload"), []byte(payload), 0o644))
	}

	fs := newFakeStore(t, releases...)
	client := remote.NewClient(fs.srv.URL, testClientVersion, remote.PolicyExact, fs.srv.Client())
	res, err := resolver.New(baseRoot, localRoot, baseline)
	require.NoError(t, err)
	checker := NewChecker(client, res, DefaultCooldown)
	return &fixture{store: fs, client: client, res: res, checker: checker, localDir: localRoot}
}

func (f *fixture) pipeline(opts ...Option) *Pipeline {
	return NewPipeline(f.client, f.res, f.checker, opts...)
}

func requireLocalFile(t *testing.T, f *fixture, sub resolver.Subtree, rel, want string) {
	t.Helper()
	got, err := os.ReadFile(filepath.Join(f.localDir, string(sub), rel))
	require.NoError(t, err)
	require.Equal(t, want, string(got))
}
