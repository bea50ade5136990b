package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rcliao/data-assistant/internal/api"
	"github.com/rcliao/data-assistant/internal/logging"
	"github.com/rcliao/data-assistant/internal/model"
)

// ErrEmptyQuestion is returned by Ask for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// DefaultChatLimit is the row limit sent with chat questions.
const DefaultChatLimit = 100

// QueryBackend runs questions.
type QueryBackend interface {
	RunQuery(ctx context.Context, q model.QueryRequest, opts ...api.CallOption) (model.QueryResult, error)
}

// SnapshotSource provides the current catalog snapshot.
type SnapshotSource interface {
	Snapshot() model.Snapshot
}

// Dispatcher turns questions into transcript entries. One question is in
// flight at a time; later calls wait their turn.
type Dispatcher struct {
	backend    QueryBackend
	catalog    SnapshotSource
	selection  *Selection
	identity   api.IdentitySource
	transcript *Transcript
	limit      int
	logger     *zap.Logger

	turn *semaphore.Weighted
	seq  atomic.Int64
	now  func() time.Time
}

// NewDispatcher wires a dispatcher. limit <= 0 means DefaultChatLimit.
func NewDispatcher(backend QueryBackend, catalog SnapshotSource, selection *Selection,
	identity api.IdentitySource, transcript *Transcript, limit int, logger *zap.Logger) *Dispatcher {
	if limit <= 0 {
		limit = DefaultChatLimit
	}
	return &Dispatcher{
		backend:    backend,
		catalog:    catalog,
		selection:  selection,
		identity:   identity,
		transcript: transcript,
		limit:      limit,
		logger:     logging.OrNop(logger),
		turn:       semaphore.NewWeighted(1),
		now:        time.Now,
	}
}

// Ask appends the question and its answer to the transcript and returns the
// answer. A blank question or empty selection is rejected before anything is
// appended, as is a context that ends while waiting for an earlier question.
// Every other outcome, including backend failure, is an assistant message and
// a nil error.
func (d *Dispatcher) Ask(ctx context.Context, question string) (model.ChatMessage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return model.ChatMessage{}, ErrEmptyQuestion
	}
	if d.selection.Len() == 0 {
		return model.ChatMessage{}, ErrNoSelection
	}

	if err := d.turn.Acquire(ctx, 1); err != nil {
		return model.ChatMessage{}, err
	}
	defer d.turn.Release(1)

	// The selection may have changed while waiting.
	selected := d.selection.IDs()
	if len(selected) == 0 {
		return model.ChatMessage{}, ErrNoSelection
	}

	seq := d.seq.Add(1)
	asked := model.ChatMessage{
		ID:        newMessageID(),
		Role:      model.RoleUser,
		Content:   question,
		Seq:       seq,
		CreatedAt: d.now(),
	}
	if err := d.transcript.Append(ctx, asked); err != nil {
		return model.ChatMessage{}, fmt.Errorf("append question: %w", err)
	}

	reply := d.answer(ctx, question, selected)
	reply.ID = newMessageID()
	reply.Role = model.RoleAssistant
	reply.ReplyTo = asked.ID
	reply.Seq = seq
	reply.CreatedAt = d.now()
	if err := d.transcript.Append(ctx, reply); err != nil {
		// Only a duplicate ULID gets here.
		d.logger.Error("append answer failed", zap.String("reply_to", asked.ID), zap.Error(err))
	}
	return reply, nil
}

func (d *Dispatcher) answer(ctx context.Context, question string, selected []string) model.ChatMessage {
	target, err := Resolve(selected, d.catalog.Snapshot(), d.identity.Get())
	if err != nil {
		d.logger.Warn("no query target", zap.Strings("selected", selected), zap.Error(err))
		return model.ChatMessage{Content: failureContent(err)}
	}
	if len(target.Dropped) > 0 {
		d.logger.Warn("selection narrowed to one owner",
			zap.String("owner", target.Owner), zap.Strings("dropped", target.Dropped))
	}

	req := target.Request(question, d.limit)
	start := d.now()
	res, err := d.backend.RunQuery(ctx, req, api.AsUser(target.Owner))
	if err != nil {
		d.logger.Error("query failed", zap.String("owner", target.Owner), zap.Error(err))
		return model.ChatMessage{Content: failureContent(err)}
	}
	d.logger.Debug("query answered",
		zap.String("owner", target.Owner),
		zap.Strings("datasets", target.DatasetIDs),
		zap.Int("count", res.Count),
		zap.Duration("elapsed", d.now().Sub(start)))

	return model.ChatMessage{Content: Summarize(res), Result: &res}
}

// Summarize is the assistant text for a structured answer.
func Summarize(res model.QueryResult) string {
	if res.Failed() {
		return "Error: " + *res.ExecutionError
	}
	ms := 0.0
	if res.ExecutionTimeMS != nil {
		ms = *res.ExecutionTimeMS
	}
	return fmt.Sprintf("Returned %d row(s) in %s ms.", res.Count, strconv.FormatFloat(ms, 'f', -1, 64))
}

func failureContent(err error) string {
	return "Request failed: " + err.Error()
}

func newMessageID() string {
	return ulid.Make().String()
}
