package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ArtifactKind names one independently versioned blob managed by the update
// pipeline. The set is closed; adding a kind means adding a plan entry in the
// updater, not new control flow.
type ArtifactKind string

const (
	ArtifactDatabase ArtifactKind = "database"
	ArtifactIcons    ArtifactKind = "icons"
)

// Kinds returns all managed artifact kinds in a stable order.
func Kinds() []ArtifactKind {
	return []ArtifactKind{ArtifactDatabase, ArtifactIcons}
}

// MetadataFileName is the sidecar written into each dataset subtree so a later
// process start can determine the local version without contacting the store.
const MetadataFileName = "metadata"

// Descriptor describes one dataset release: its database version, its icon
// set version and the content hash of each managed artifact.
type Descriptor struct {
	Version     Version
	IconVersion int
	ReleaseDate string
	Hashes      map[ArtifactKind]string
}

// Validate checks the one-hash-per-artifact-kind invariant.
func (d *Descriptor) Validate() error {
	if d == nil {
		return fmt.Errorf("descriptor: nil")
	}
	if len(d.Hashes) != len(Kinds()) {
		return fmt.Errorf("descriptor: expected %d content hashes, got %d", len(Kinds()), len(d.Hashes))
	}
	for _, kind := range Kinds() {
		if d.Hashes[kind] == "" {
			return fmt.Errorf("descriptor: missing content hash for artifact %q", kind)
		}
	}
	return nil
}

// metadataFile is the on-disk sidecar layout. Field names are fixed; the
// mobile app reads the same file.
type metadataFile struct {
	BuildNumber int    `json:"buildNumber"`
	PatchNumber int    `json:"patchNumber"`
	IconVersion int    `json:"iconVersion"`
	ReleaseDate string `json:"releaseDate"`
	DBHash      string `json:"dbHash"`
	IconHash    string `json:"iconHash"`
}

// DecodeDescriptor parses the sidecar JSON form. The same shape travels
// inline in remote release records and as the descriptor-file artifact.
func DecodeDescriptor(raw []byte) (*Descriptor, error) {
	var m metadataFile
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse descriptor: %w", err)
	}
	d := &Descriptor{
		Version:     Version{Build: m.BuildNumber, Patch: m.PatchNumber},
		IconVersion: m.IconVersion,
		ReleaseDate: m.ReleaseDate,
		Hashes: map[ArtifactKind]string{
			ArtifactDatabase: m.DBHash,
			ArtifactIcons:    m.IconHash,
		},
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// EncodeDescriptor renders the sidecar JSON form.
func EncodeDescriptor(d *Descriptor) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	m := metadataFile{
		BuildNumber: d.Version.Build,
		PatchNumber: d.Version.Patch,
		IconVersion: d.IconVersion,
		ReleaseDate: d.ReleaseDate,
		DBHash:      d.Hashes[ArtifactDatabase],
		IconHash:    d.Hashes[ArtifactIcons],
	}
	return json.MarshalIndent(m, "", "  ")
}

// ReadDescriptor loads the metadata sidecar from dir. A missing or undecodable
// sidecar is an error; callers treat that as "descriptor absent".
func ReadDescriptor(dir string) (*Descriptor, error) {
	raw, err := os.ReadFile(filepath.Join(dir, MetadataFileName))
	if err != nil {
		return nil, err
	}
	d, err := DecodeDescriptor(raw)
	if err != nil {
		return nil, fmt.Errorf("metadata in %s: %w", dir, err)
	}
	return d, nil
}

// WriteDescriptor writes the metadata sidecar into dir.
func WriteDescriptor(dir string, d *Descriptor) error {
	raw, err := EncodeDescriptor(d)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MetadataFileName), raw, 0o644)
}
