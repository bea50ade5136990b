package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/data-assistant/internal/api"
	"github.com/rcliao/data-assistant/internal/model"
)

type staticSnapshot model.Snapshot

func (s staticSnapshot) Snapshot() model.Snapshot { return model.Snapshot(s).Clone() }

func ptr[T any](v T) *T { return &v }

type dispatcherFixture struct {
	backend    *fakeBackend
	selection  *Selection
	transcript *Transcript
	dispatcher *Dispatcher
}

func newDispatcherFixture(t *testing.T, datasets []model.Dataset, selected ...string) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		backend:    &fakeBackend{datasets: datasets},
		selection:  NewSelection(selected...),
		transcript: NewTranscript(nil, nil),
	}
	snap := staticSnapshot(model.Snapshot{Datasets: datasets, Count: len(datasets)})
	identity := api.IdentityFunc(func() string { return "user1" })
	f.dispatcher = NewDispatcher(f.backend, snap, f.selection, identity, f.transcript, 0, nil)
	return f
}

func TestAskExecutionError(t *testing.T) {
	f := newDispatcherFixture(t, twoOwnerCatalog(), "d1")
	f.backend.queryFn = func(ctx context.Context, q model.QueryRequest) (model.QueryResult, error) {
		return model.QueryResult{Question: q.Question, SQL: ptr("SELEC 1"), ExecutionError: ptr("syntax error")}, nil
	}

	reply, err := f.dispatcher.Ask(context.Background(), "total sales")
	require.NoError(t, err)
	assert.Equal(t, "Error: syntax error", reply.Content)
	require.NotNil(t, reply.Result)
	assert.Equal(t, "syntax error", *reply.Result.ExecutionError)
	assert.Equal(t, 2, f.transcript.Len())
}

func TestAskSuccess(t *testing.T) {
	f := newDispatcherFixture(t, twoOwnerCatalog(), "d1")
	f.backend.queryFn = func(ctx context.Context, q model.QueryRequest) (model.QueryResult, error) {
		return model.QueryResult{Question: q.Question, Count: 5, ExecutionTimeMS: ptr(42.0)}, nil
	}

	reply, err := f.dispatcher.Ask(context.Background(), "  top customers ")
	require.NoError(t, err)
	assert.Equal(t, "Returned 5 row(s) in 42 ms.", reply.Content)
	assert.Equal(t, model.RoleAssistant, reply.Role)

	msgs := f.transcript.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "top customers", msgs[0].Content)
	assert.Equal(t, msgs[0].ID, msgs[1].ReplyTo)
	assert.Equal(t, msgs[0].Seq, msgs[1].Seq)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestAskRequestShape(t *testing.T) {
	datasets := []model.Dataset{
		{ID: "a1", Owner: "alice"},
		{ID: "a2", Owner: "alice"},
		{ID: "b1", Owner: "bob"},
	}

	tests := []struct {
		name     string
		selected []string
		want     model.QueryRequest
		wantUser string
	}{
		{
			name:     "single dataset",
			selected: []string{"a2"},
			want:     model.QueryRequest{Question: "q", DatasetID: "a2", Limit: DefaultChatLimit},
			wantUser: "alice",
		},
		{
			name:     "multiple datasets",
			selected: []string{"a2", "a1"},
			want:     model.QueryRequest{Question: "q", DatasetIDs: []string{"a2", "a1"}, Limit: DefaultChatLimit},
			wantUser: "alice",
		},
		{
			name:     "narrowed to one owner",
			selected: []string{"b1", "a1", "a2"},
			want:     model.QueryRequest{Question: "q", DatasetID: "b1", Limit: DefaultChatLimit},
			wantUser: "bob",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(t, datasets, tt.selected...)
			_, err := f.dispatcher.Ask(context.Background(), "q")
			require.NoError(t, err)

			calls := f.backend.queryCalls()
			require.Len(t, calls, 1)
			if diff := cmp.Diff(tt.want, calls[0].req); diff != "" {
				t.Errorf("request mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantUser, calls[0].user)
		})
	}
}

func TestAskNarrowingIsLogged(t *testing.T) {
	logger, logs := observedLogger()
	backend := &fakeBackend{}
	snap := staticSnapshot(model.Snapshot{Datasets: twoOwnerCatalog()})
	d := NewDispatcher(backend, snap, NewSelection("d1", "d2"), api.IdentityFunc(func() string { return "user1" }),
		NewTranscript(nil, nil), 0, logger)

	_, err := d.Ask(context.Background(), "q")
	require.NoError(t, err)

	entries := logs.FilterMessage("selection narrowed to one owner").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].ContextMap()["owner"])
}

func TestAskTransportFailure(t *testing.T) {
	f := newDispatcherFixture(t, twoOwnerCatalog(), "d1")
	f.backend.queryFn = func(ctx context.Context, q model.QueryRequest) (model.QueryResult, error) {
		return model.QueryResult{}, &api.Error{Method: "POST", Path: "/query/", Status: 404,
			Body: api.ParseErrorBody([]byte(`{"detail":"Dataset not found"}`))}
	}

	reply, err := f.dispatcher.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "Request failed: Dataset not found", reply.Content)
	assert.Nil(t, reply.Result)
	assert.Equal(t, 2, f.transcript.Len())
}

func TestAskUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	client := api.NewClient(url, nil, 2*time.Second, nil)
	defer client.Close()

	snap := staticSnapshot(model.Snapshot{Datasets: twoOwnerCatalog()})
	tr := NewTranscript(nil, nil)
	d := NewDispatcher(client, snap, NewSelection("d1"), api.IdentityFunc(func() string { return "user1" }), tr, 0, nil)

	reply, err := d.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply.Content, "Request failed: "), reply.Content)
	assert.Nil(t, reply.Result)
	assert.Equal(t, 2, tr.Len())
}

func TestAskEmptyTarget(t *testing.T) {
	f := newDispatcherFixture(t, twoOwnerCatalog(), "gone")

	reply, err := f.dispatcher.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply.Content, "Request failed: "), reply.Content)
	assert.Contains(t, reply.Content, `"user1"`)
	assert.Nil(t, reply.Result)
	assert.Empty(t, f.backend.queryCalls())
	assert.Equal(t, 2, f.transcript.Len())
}

func TestAskRejected(t *testing.T) {
	f := newDispatcherFixture(t, twoOwnerCatalog())

	_, err := f.dispatcher.Ask(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNoSelection)

	f.selection.Select("d1")
	_, err = f.dispatcher.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	assert.Equal(t, 0, f.transcript.Len())
	assert.Empty(t, f.backend.queryCalls())
}

func TestAskSerializesTurns(t *testing.T) {
	f := newDispatcherFixture(t, twoOwnerCatalog(), "d1")
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.backend.queryFn = func(ctx context.Context, q model.QueryRequest) (model.QueryResult, error) {
		if q.Question == "first" {
			once.Do(func() { close(entered) })
			<-release
		}
		return model.QueryResult{Question: q.Question, Count: 1}, nil
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.dispatcher.Ask(ctx, "first")
	}()
	<-entered
	go func() {
		defer wg.Done()
		f.dispatcher.Ask(ctx, "second")
	}()

	// The first turn holds the transcript at its question.
	assert.Equal(t, 1, f.transcript.Len())
	close(release)
	wg.Wait()

	msgs := f.transcript.Messages()
	require.Len(t, msgs, 4)
	var got []string
	for _, m := range msgs {
		got = append(got, string(m.Role)+":"+m.Content)
	}
	assert.Equal(t, []string{
		"user:first",
		"assistant:Returned 1 row(s) in 0 ms.",
		"user:second",
		"assistant:Returned 1 row(s) in 0 ms.",
	}, got)
	assert.Equal(t, msgs[0].ID, msgs[1].ReplyTo)
	assert.Equal(t, msgs[2].ID, msgs[3].ReplyTo)
	assert.Less(t, msgs[1].Seq, msgs[3].Seq)
}

func TestAskCanceledWhileWaiting(t *testing.T) {
	f := newDispatcherFixture(t, twoOwnerCatalog(), "d1")
	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.queryFn = func(ctx context.Context, q model.QueryRequest) (model.QueryResult, error) {
		if q.Question == "slow" {
			close(entered)
			<-release
		}
		return model.QueryResult{}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.dispatcher.Ask(context.Background(), "slow")
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.dispatcher.Ask(ctx, "impatient")
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Equal(t, 1, f.transcript.Len())

	close(release)
	<-done
	assert.Equal(t, 2, f.transcript.Len())
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		res  model.QueryResult
		want string
	}{
		{"integer ms", model.QueryResult{Count: 5, ExecutionTimeMS: ptr(42.0)}, "Returned 5 row(s) in 42 ms."},
		{"fractional ms", model.QueryResult{Count: 1, ExecutionTimeMS: ptr(12.5)}, "Returned 1 row(s) in 12.5 ms."},
		{"missing ms", model.QueryResult{Count: 0}, "Returned 0 row(s) in 0 ms."},
		{"execution error", model.QueryResult{ExecutionError: ptr("relation does not exist")}, "Error: relation does not exist"},
		{"empty execution error", model.QueryResult{Count: 2, ExecutionError: ptr("")}, "Returned 2 row(s) in 0 ms."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.res))
		})
	}
}

func TestAskCanceledInFlight(t *testing.T) {
	f := newDispatcherFixture(t, twoOwnerCatalog(), "d1")
	ctx, cancel := context.WithCancel(context.Background())
	f.backend.queryFn = func(ctx context.Context, q model.QueryRequest) (model.QueryResult, error) {
		cancel()
		<-ctx.Done()
		return model.QueryResult{}, ctx.Err()
	}

	reply, err := f.dispatcher.Ask(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "Request failed: context canceled", reply.Content)
	assert.Nil(t, reply.Result)
	assert.Equal(t, 2, f.transcript.Len())
}
