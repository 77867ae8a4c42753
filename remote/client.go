// Package remote talks to the dataset release store: it finds the newest
// eligible release, resolves its descriptor and downloads artifacts.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/starforge-mobile/datasync/dataset"
)

// Named artifact fields a release record can serve.
const (
	FieldDatabaseArchive = "primary-database-archive"
	FieldIconArchive     = "icon-archive"
	FieldDescriptorFile  = "descriptor-file"
)

// ReleaseID is an opaque handle to one published release record.
type ReleaseID string

// ReleaseRecord is the store's view of one published dataset release. Inline
// is the cheap descriptor copy; it may be absent, in which case the
// descriptor-file artifact is the fallback.
type ReleaseRecord struct {
	ID                   ReleaseID
	MinimumClientVersion string
	Version              dataset.Version
	IconVersion          int
	ReleaseDate          string
	Inline               *dataset.Descriptor
}

// MetadataUnavailableError means neither the inline descriptor nor the
// descriptor-file artifact could be obtained. Terminal: the pipeline never
// proceeds on a guessed descriptor.
type MetadataUnavailableError struct {
	Record    ReleaseID
	InlineErr error
	FileErr   error
}

func (e *MetadataUnavailableError) Error() string {
	return fmt.Sprintf("descriptor unavailable for release %s (inline: %v, file: %v)", e.Record, e.InlineErr, e.FileErr)
}

// Client queries the release store over HTTP. Retry and rate limiting belong
// to the injected http.Client's transport, not here.
type Client struct {
	base          string
	http          *http.Client
	clientVersion string
	policy        VersionPolicy
}

func NewClient(baseURL, clientVersion string, policy VersionPolicy, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		base:          strings.TrimRight(baseURL, "/"),
		http:          httpClient,
		clientVersion: clientVersion,
		policy:        policy,
	}
}

// envelope is the store's uniform response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type releaseRecordJSON struct {
	ID               string          `json:"id"`
	MinClientVersion string          `json:"min_client_version"`
	BuildNumber      int             `json:"build_number"`
	PatchNumber      int             `json:"patch_number"`
	IconVersion      int             `json:"icon_version"`
	ReleaseDate      string          `json:"release_date"`
	Descriptor       json.RawMessage `json:"descriptor"`
}

// FindLatestEligible returns the newest release this client may use, or nil
// when nothing is eligible — "already current", not an error. Transport and
// decode failures propagate as errors.
func (c *Client) FindLatestEligible(ctx context.Context) (*ReleaseRecord, error) {
	raw, err := c.getJSON(ctx, c.base+"/api/releases")
	if err != nil {
		return nil, err
	}
	var data struct {
		List []releaseRecordJSON `json:"list"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse release list: %w", err)
	}

	var eligible []*ReleaseRecord
	for _, rec := range data.List {
		if !c.policy.Eligible(rec.MinClientVersion, c.clientVersion) {
			continue
		}
		eligible = append(eligible, decodeRecord(rec))
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].Version.Compare(eligible[j].Version) > 0
	})
	return eligible[0], nil
}

func decodeRecord(rec releaseRecordJSON) *ReleaseRecord {
	out := &ReleaseRecord{
		ID:                   ReleaseID(rec.ID),
		MinimumClientVersion: rec.MinClientVersion,
		Version:              dataset.Version{Build: rec.BuildNumber, Patch: rec.PatchNumber},
		IconVersion:          rec.IconVersion,
		ReleaseDate:          rec.ReleaseDate,
	}
	if len(rec.Descriptor) > 0 && string(rec.Descriptor) != "null" {
		if desc, err := dataset.DecodeDescriptor(rec.Descriptor); err == nil {
			out.Inline = desc
		} else {
			slog.Warn("ignoring undecodable inline descriptor", "release", rec.ID, "error", err)
		}
	}
	return out
}

// ResolveDescriptor returns the release's full descriptor: the inline field
// when present, otherwise the downloaded descriptor-file artifact. When both
// fail it returns *MetadataUnavailableError.
func (c *Client) ResolveDescriptor(ctx context.Context, rec *ReleaseRecord) (*dataset.Descriptor, error) {
	inlineErr := fmt.Errorf("no inline descriptor")
	if rec.Inline != nil {
		inlineErr = rec.Inline.Validate()
		if inlineErr == nil {
			return rec.Inline, nil
		}
	}

	path, err := c.FetchArtifact(ctx, rec.ID, FieldDescriptorFile, os.TempDir(), nil)
	if err != nil {
		return nil, &MetadataUnavailableError{Record: rec.ID, InlineErr: inlineErr, FileErr: err}
	}
	defer os.Remove(path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &MetadataUnavailableError{Record: rec.ID, InlineErr: inlineErr, FileErr: err}
	}
	desc, err := dataset.DecodeDescriptor(raw)
	if err != nil {
		return nil, &MetadataUnavailableError{Record: rec.ID, InlineErr: inlineErr, FileErr: err}
	}
	return desc, nil
}

func (c *Client) getJSON(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("release store request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("release store returned status=%d, body=%s", resp.StatusCode, string(body))
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("parse release store response: %w", err)
	}
	if env.Status != "success" {
		return nil, fmt.Errorf("release store error: %s", env.Message)
	}
	return env.Data, nil
}
