package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/data-assistant/internal/model"
)

func newTestClient(t *testing.T, r chi.Router, user string) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, IdentityFunc(func() string { return user }), 5*time.Second, nil)
}

func TestListDatasetsAll(t *testing.T) {
	r := chi.NewRouter()
	var gotUser, gotAll string
	r.Get("/datasets", func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get(UserHeader)
		gotAll = r.URL.Query().Get("all")
		io.WriteString(w, `{"count":2,"data":[
			{"dataset_id":"d1","user_id":"u1","dataset_name":"sales","original_filename":"sales.csv","table":"u_u1.sales","row_count":10,"created_at":"2025-03-01 10:00:00.123456+00:00"},
			{"dataset_id":"d2","user_id":"u2","dataset_name":"hr","original_filename":"hr.xlsx","table":"u_u2.hr","row_count":3,"created_at":"2025-03-02T09:00:00Z"}
		]}`)
	})
	c := newTestClient(t, r, "alice")

	snap, err := c.ListDatasets(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "true", gotAll)
	require.Len(t, snap.Datasets, 2)
	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, "u2", snap.Datasets[1].Owner)
	assert.Equal(t, 2025, snap.Datasets[0].CreatedAt.Year())
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestListDatasetsOwnOnly(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/datasets", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		io.WriteString(w, `{"count":0,"data":[]}`)
	})
	c := newTestClient(t, r, "alice")

	snap, err := c.ListDatasets(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, snap.Datasets)
}

func TestRunQuerySingleDataset(t *testing.T) {
	r := chi.NewRouter()
	var body map[string]any
	var gotUser, gotType string
	r.Post("/query/", func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get(UserHeader)
		gotType = r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		io.WriteString(w, `{"question":"q","sql":"SELECT 1","safety_passed":true,"count":1,"data":[{"a":1}],"execution_error":null,"execution_time_ms":3.5}`)
	})
	c := newTestClient(t, r, "alice")

	res, err := c.RunQuery(context.Background(), model.QueryRequest{Question: "q", DatasetID: "d1"}, AsUser("bob"))
	require.NoError(t, err)
	assert.Equal(t, "bob", gotUser)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "d1", body["dataset_id"])
	assert.NotContains(t, body, "dataset_ids")
	assert.EqualValues(t, model.DefaultQueryLimit, body["limit"])
	require.NotNil(t, res.ExecutionTimeMS)
	assert.Equal(t, 3.5, *res.ExecutionTimeMS)
	assert.False(t, res.Failed())
	assert.Len(t, res.Rows, 1)
}

func TestRunQueryMultiDatasetWinsOverSingle(t *testing.T) {
	r := chi.NewRouter()
	var body map[string]any
	r.Post("/query/", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		io.WriteString(w, `{"question":"q","count":0,"data":null,"execution_error":"syntax error"}`)
	})
	c := newTestClient(t, r, "alice")

	res, err := c.RunQuery(context.Background(), model.QueryRequest{
		Question: "q", DatasetID: "d1", DatasetIDs: []string{"d1", "d2"}, Limit: 100,
	})
	require.NoError(t, err)
	assert.NotContains(t, body, "dataset_id")
	assert.Equal(t, []any{"d1", "d2"}, body["dataset_ids"])
	assert.EqualValues(t, 100, body["limit"])
	assert.True(t, res.Failed())
	assert.Nil(t, res.Rows)
}

func TestErrorBodyVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind BodyKind
		msg  string
	}{
		{"plain text", "Internal Server Error", PlainText, "Internal Server Error"},
		{"detail string", `{"detail":"Dataset not found"}`, Detail, "Dataset not found"},
		{"nested detail", `{"detail":{"detail":"Agent pipeline failed"}}`, NestedDetail, "Agent pipeline failed"},
		{"validation list", `{"detail":[{"msg":"field required"}]}`, PlainText, `{"detail":[{"msg":"field required"}]}`},
		{"empty detail", `{"detail":""}`, PlainText, `{"detail":""}`},
		{"json without detail", `{"error":"boom"}`, PlainText, `{"error":"boom"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ParseErrorBody([]byte(tt.raw))
			assert.Equal(t, tt.kind, b.Kind)
			assert.Equal(t, tt.msg, b.Message())
		})
	}
}

func TestUploadPrefersDetail(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/datasets/upload", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"detail":"Only CSV or Excel files are supported"}`)
	})
	c := newTestClient(t, r, "alice")

	_, err := c.Upload(context.Background(), "notes.txt", strings.NewReader("x"), "")
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Only CSV or Excel files are supported", err.Error())
}

func TestUploadMultipart(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/datasets/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "alice", r.Header.Get(UserHeader))
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "sales.csv", hdr.Filename)
		assert.Equal(t, "a,b\n1,2\n", string(data))
		assert.Equal(t, "Sales", r.FormValue("dataset_name"))
		io.WriteString(w, `{"dataset_id":"d9","dataset_name":"Sales","row_count":1,"columns":[{"name":"a","pg_type":"BIGINT"},{"name":"b","pg_type":"BIGINT"}]}`)
	})
	c := newTestClient(t, r, "alice")

	res, err := c.Upload(context.Background(), "sales.csv", strings.NewReader("a,b\n1,2\n"), "Sales")
	require.NoError(t, err)
	assert.Equal(t, "d9", res.ID)
	assert.Len(t, res.Columns, 2)
}

func TestUploadOmitsEmptyName(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/datasets/upload", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		_, ok := r.MultipartForm.Value["dataset_name"]
		assert.False(t, ok)
		io.WriteString(w, `{"dataset_id":"d9","dataset_name":"sales","row_count":0,"columns":[]}`)
	})
	c := newTestClient(t, r, "alice")

	_, err := c.Upload(context.Background(), "sales.csv", strings.NewReader(""), "")
	require.NoError(t, err)
}

func TestPreviewAndSchema(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/datasets/{id}/preview", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "d1", chi.URLParam(r, "id"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "u1", r.Header.Get(UserHeader))
		io.WriteString(w, `{"count":1,"columns":["a"],"data":[{"a":"x"}]}`)
	})
	r.Get("/datasets/{id}/schema", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"dataset_id":"d1","columns":[{"name":"a","pg_type":"TEXT","pos":1}]}`)
	})
	c := newTestClient(t, r, "alice")

	p, err := c.Preview(context.Background(), "d1", 0, AsUser("u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, p.Columns)

	s, err := c.Schema(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, s.Columns, 1)
	assert.Equal(t, 1, s.Columns[0].Position)
}

func TestSyncAndFolder(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/datasets/sync", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"synced":1,"added":[{"dataset_id":"d3","user_id":"u1","dataset_name":"x"}]}`)
	})
	r.Get("/datasets/from-folder", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"count":1,"data":[{"dataset_id":"d3","user_id":"u1","dataset_name":"x","original_filename":"x.csv"}],"path":"/srv/uploads"}`)
	})
	c := newTestClient(t, r, "alice")

	sync, err := c.SyncUploads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sync.Synced)
	assert.Equal(t, "d3", sync.Added[0].ID)

	folder, err := c.ListFromFolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/srv/uploads", folder.Path)
	assert.Equal(t, "x.csv", folder.Datasets[0].OriginalFilename)
}

func TestStatusWithoutBody(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c := newTestClient(t, r, "alice")

	_, err := c.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, "GET /health: status 503", err.Error())
}

func TestNilIdentityUsesDefault(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/datasets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, model.DefaultIdentity, r.Header.Get(UserHeader))
		io.WriteString(w, `{"count":0,"data":[]}`)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL+"/", nil, 0, nil)
	_, err := c.ListDatasets(context.Background(), false)
	require.NoError(t, err)
}
