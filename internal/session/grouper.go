package session

import (
	"errors"
	"fmt"

	"github.com/rcliao/data-assistant/internal/model"
)

var (
	// ErrNoSelection means no dataset is selected.
	ErrNoSelection = errors.New("no dataset selected")
	// ErrEmptyTarget means none of the selected datasets belongs to the
	// effective owner.
	ErrEmptyTarget = errors.New("no selected dataset belongs to the effective owner")
)

// Target is what a single query runs against: datasets of one owner.
type Target struct {
	Owner      string   `json:"owner"`
	DatasetIDs []string `json:"dataset_ids"`
	// Dropped are selected ids left out because they belong to another
	// owner or are missing from the catalog.
	Dropped []string `json:"dropped,omitempty"`
}

// Single reports whether the target is one dataset. The backend has separate
// single and multi dataset modes.
func (t Target) Single() bool {
	return len(t.DatasetIDs) == 1
}

// Request builds the query for question against t.
func (t Target) Request(question string, limit int) model.QueryRequest {
	q := model.QueryRequest{Question: question, Limit: limit}
	if t.Single() {
		q.DatasetID = t.DatasetIDs[0]
	} else {
		q.DatasetIDs = append([]string(nil), t.DatasetIDs...)
	}
	return q
}

// Resolve narrows selection to the datasets owned by the owner of the
// first-selected id. When that id is not in snap, active is the owner.
func Resolve(selection []string, snap model.Snapshot, active string) (Target, error) {
	if len(selection) == 0 {
		return Target{}, ErrNoSelection
	}

	owner, ok := snap.Owner(selection[0])
	if !ok {
		owner = active
	}

	t := Target{Owner: owner}
	for _, id := range selection {
		if o, ok := snap.Owner(id); ok && o == owner {
			t.DatasetIDs = append(t.DatasetIDs, id)
		} else {
			t.Dropped = append(t.Dropped, id)
		}
	}

	if len(t.DatasetIDs) == 0 {
		return t, fmt.Errorf("%w %q", ErrEmptyTarget, owner)
	}
	return t, nil
}
