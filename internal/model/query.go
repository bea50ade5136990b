package model

import "time"

// DefaultQueryLimit is the row limit the backend applies when none is sent.
const DefaultQueryLimit = 50

// QueryRequest is the body of POST /query/. Exactly one of DatasetID and
// DatasetIDs is set.
type QueryRequest struct {
	Question   string   `json:"question"`
	DatasetID  string   `json:"dataset_id,omitempty"`
	DatasetIDs []string `json:"dataset_ids,omitempty"`
	Limit      int      `json:"limit"`
}

// QueryResult is the structured answer to a question. ExecutionError set
// means the generated SQL ran and failed; Rows is then nil.
type QueryResult struct {
	Question         string           `json:"question"`
	SQL              *string          `json:"sql"`
	SafetyPassed     bool             `json:"safety_passed"`
	Count            int              `json:"count"`
	Rows             []map[string]any `json:"data"`
	ExecutionError   *string          `json:"execution_error"`
	ExecutionTimeMS  *float64         `json:"execution_time_ms"`
	WorkspaceID      string           `json:"workspace_id,omitempty"`
	UserID           string           `json:"user_id,omitempty"`
	SelectedDatasets []string         `json:"selected_datasets,omitempty"`
}

// Failed reports whether the backend ran the query and it failed.
func (r QueryResult) Failed() bool {
	return r.ExecutionError != nil && *r.ExecutionError != ""
}

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one transcript entry. Assistant messages point back at the
// user message they answer through ReplyTo and share its Seq.
type ChatMessage struct {
	ID        string       `json:"id"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	Result    *QueryResult `json:"result,omitempty"`
	ReplyTo   string       `json:"reply_to,omitempty"`
	Seq       int64        `json:"seq"`
	CreatedAt time.Time    `json:"created_at"`
}
