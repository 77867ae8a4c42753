package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/starforge-mobile/datasync/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeRelease struct {
	record    releaseRecordJSON
	artifacts map[string][]byte
}

// newStore serves the store protocol: a release list plus per-release
// artifact downloads.
func newStore(t *testing.T, releases []storeRelease) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/releases", func(w http.ResponseWriter, r *http.Request) {
		records := make([]releaseRecordJSON, 0, len(releases))
		for _, rel := range releases {
			records = append(records, rel.record)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"list": records},
		})
	})
	for _, rel := range releases {
		rel := rel
		prefix := fmt.Sprintf("/api/releases/%s/artifacts/", rel.record.ID)
		mux.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
			field := r.URL.Path[len(prefix):]
			payload, ok := rel.artifacts[field]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write(payload)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func record(id string, minClient string, build, patch, iconVersion int) releaseRecordJSON {
	return releaseRecordJSON{
		ID:               id,
		MinClientVersion: minClient,
		BuildNumber:      build,
		PatchNumber:      patch,
		IconVersion:      iconVersion,
		ReleaseDate:      "2026-08-10",
	}
}

func inlineDescriptor(t *testing.T, build, patch, iconVersion int) json.RawMessage {
	t.Helper()
	raw, err := dataset.EncodeDescriptor(&dataset.Descriptor{
		Version:     dataset.Version{Build: build, Patch: patch},
		IconVersion: iconVersion,
		ReleaseDate: "2026-08-10",
		Hashes: map[dataset.ArtifactKind]string{
			dataset.ArtifactDatabase: "aa",
			dataset.ArtifactIcons:    "bb",
		},
	})
	require.NoError(t, err)
	return raw
}

func TestFindLatestEligiblePicksNewest(t *testing.T) {
	srv := newStore(t, []storeRelease{
		{record: record("rel-1", "1.4.0", 100, 0, 3)},
		{record: record("rel-2", "1.4.0", 101, 1, 5)},
		{record: record("rel-3", "1.4.0", 101, 0, 4)},
		{record: record("rel-4", "2.0.0", 102, 0, 6)}, // wrong client version
	})
	c := NewClient(srv.URL, "1.4.0", PolicyExact, srv.Client())

	rec, err := c.FindLatestEligible(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ReleaseID("rel-2"), rec.ID)
	assert.Equal(t, dataset.Version{Build: 101, Patch: 1}, rec.Version)
}

func TestFindLatestEligibleNoneIsNotAnError(t *testing.T) {
	srv := newStore(t, []storeRelease{
		{record: record("rel-1", "9.9.9", 100, 0, 3)},
	})
	c := NewClient(srv.URL, "1.4.0", PolicyExact, srv.Client())

	rec, err := c.FindLatestEligible(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFindLatestEligibleMinimumPolicy(t *testing.T) {
	srv := newStore(t, []storeRelease{
		{record: record("rel-1", "1.2.0", 100, 0, 3)},
		{record: record("rel-2", "1.6.0", 101, 0, 4)}, // needs a newer client
	})
	c := NewClient(srv.URL, "1.4.0", PolicyMinimum, srv.Client())

	rec, err := c.FindLatestEligible(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ReleaseID("rel-1"), rec.ID)
}

func TestFindLatestEligibleTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "1.4.0", PolicyExact, srv.Client())

	_, err := c.FindLatestEligible(context.Background())
	assert.Error(t, err)
}

func TestResolveDescriptorInline(t *testing.T) {
	rec := record("rel-1", "1.4.0", 101, 0, 5)
	rec.Descriptor = inlineDescriptor(t, 101, 0, 5)
	srv := newStore(t, []storeRelease{{record: rec}})
	c := NewClient(srv.URL, "1.4.0", PolicyExact, srv.Client())

	found, err := c.FindLatestEligible(context.Background())
	require.NoError(t, err)
	require.NotNil(t, found.Inline)

	desc, err := c.ResolveDescriptor(context.Background(), found)
	require.NoError(t, err)
	assert.Equal(t, dataset.Version{Build: 101, Patch: 0}, desc.Version)
}

func TestResolveDescriptorFallsBackToFile(t *testing.T) {
	srv := newStore(t, []storeRelease{{
		record: record("rel-1", "1.4.0", 101, 0, 5),
		artifacts: map[string][]byte{
			FieldDescriptorFile: inlineDescriptor(t, 101, 0, 5),
		},
	}})
	c := NewClient(srv.URL, "1.4.0", PolicyExact, srv.Client())

	found, err := c.FindLatestEligible(context.Background())
	require.NoError(t, err)
	require.Nil(t, found.Inline)

	desc, err := c.ResolveDescriptor(context.Background(), found)
	require.NoError(t, err)
	assert.Equal(t, 5, desc.IconVersion)
}

func TestResolveDescriptorUnavailable(t *testing.T) {
	srv := newStore(t, []storeRelease{{
		record: record("rel-1", "1.4.0", 101, 0, 5),
	}})
	c := NewClient(srv.URL, "1.4.0", PolicyExact, srv.Client())

	found, err := c.FindLatestEligible(context.Background())
	require.NoError(t, err)

	_, err = c.ResolveDescriptor(context.Background(), found)
	require.Error(t, err)
	var unavailable *MetadataUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

func TestFetchArtifactProgress(t *testing.T) {
	payload := make([]byte, 1<<16)
	srv := newStore(t, []storeRelease{{
		record:    record("rel-1", "1.4.0", 101, 0, 5),
		artifacts: map[string][]byte{FieldDatabaseArchive: payload},
	}})
	c := NewClient(srv.URL, "1.4.0", PolicyExact, srv.Client())

	var progress []float64
	path, err := c.FetchArtifact(context.Background(), "rel-1", FieldDatabaseArchive, t.TempDir(), func(f float64) {
		progress = append(progress, f)
	})
	require.NoError(t, err)
	defer os.Remove(path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), info.Size())

	require.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	for _, f := range progress {
		assert.GreaterOrEqual(t, f, 0.0)
		assert.LessOrEqual(t, f, 1.0)
	}
}

func TestFetchArtifactMissingField(t *testing.T) {
	srv := newStore(t, []storeRelease{{
		record: record("rel-1", "1.4.0", 101, 0, 5),
	}})
	c := NewClient(srv.URL, "1.4.0", PolicyExact, srv.Client())

	_, err := c.FetchArtifact(context.Background(), "rel-1", FieldIconArchive, t.TempDir(), nil)
	assert.Error(t, err)
}
