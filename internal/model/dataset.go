// Package model defines the data assistant's core data types.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultIdentity is the identity used when none has been chosen.
const DefaultIdentity = "user1"

// Dataset is a catalog entry for an uploaded table.
type Dataset struct {
	ID               string    `json:"dataset_id"`
	Owner            string    `json:"user_id,omitempty"`
	Name             string    `json:"dataset_name"`
	OriginalFilename string    `json:"original_filename"`
	Table            string    `json:"table"`
	RowCount         int       `json:"row_count"`
	CreatedAt        Timestamp `json:"created_at"`
	GCSURI           string    `json:"gcs_uri,omitempty"`
	FileType         string    `json:"file_type,omitempty"`
}

// Snapshot is one complete catalog listing.
type Snapshot struct {
	Datasets  []Dataset `json:"data"`
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Find returns the dataset with the given id.
func (s Snapshot) Find(id string) (Dataset, bool) {
	for _, d := range s.Datasets {
		if d.ID == id {
			return d, true
		}
	}
	return Dataset{}, false
}

// Owner returns the owner of the dataset with the given id. A dataset listed
// without an owner is reported as not found.
func (s Snapshot) Owner(id string) (string, bool) {
	d, ok := s.Find(id)
	if !ok || d.Owner == "" {
		return "", false
	}
	return d.Owner, true
}

// Clone returns a copy that shares no slice with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Datasets != nil {
		out.Datasets = append([]Dataset(nil), s.Datasets...)
	}
	return out
}

// Column describes one column of an ingested table.
type Column struct {
	Name     string `json:"name"`
	PGType   string `json:"pg_type"`
	Position int    `json:"pos,omitempty"`
}

// UploadResult is returned by a successful upload.
type UploadResult struct {
	ID       string   `json:"dataset_id"`
	Name     string   `json:"dataset_name"`
	Owner    string   `json:"user_id,omitempty"`
	Table    string   `json:"table,omitempty"`
	GCSURI   string   `json:"gcs_uri,omitempty"`
	RowCount int      `json:"row_count"`
	Columns  []Column `json:"columns"`
}

// SyncedDataset is one entry reconciled from the server's uploads folder.
type SyncedDataset struct {
	ID    string `json:"dataset_id"`
	Owner string `json:"user_id"`
	Name  string `json:"dataset_name"`
}

// SyncResult reports what a sync added to the catalog.
type SyncResult struct {
	Synced  int             `json:"synced"`
	Added   []SyncedDataset `json:"added"`
	Message string          `json:"message,omitempty"`
	Path    string          `json:"path,omitempty"`
}

// FolderDataset is a file found in the server's uploads folder.
type FolderDataset struct {
	ID               string `json:"dataset_id"`
	Owner            string `json:"user_id"`
	Name             string `json:"dataset_name"`
	OriginalFilename string `json:"original_filename"`
}

// FolderListing is the content of the server's uploads folder.
type FolderListing struct {
	Count    int             `json:"count"`
	Datasets []FolderDataset `json:"data"`
	Path     string          `json:"path"`
}

// Preview holds the first rows of a dataset.
type Preview struct {
	Count   int              `json:"count"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"data"`
}

// Schema lists the columns of a dataset.
type Schema struct {
	DatasetID string   `json:"dataset_id"`
	Columns   []Column `json:"columns"`
}

// Health is the backend health probe response.
type Health struct {
	Status string `json:"status"`
}

// timestampLayouts are the forms the backend emits for created_at. The second
// and third are Python's str(datetime) with and without fractional seconds.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
}

// Timestamp is a time that decodes from any of the backend's layouts.
type Timestamp struct {
	time.Time
}

// ParseTimestamp parses s using the backend's known layouts.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" || s == "None" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
