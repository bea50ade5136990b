// Package session orchestrates one data assistant session: the acting
// identity, the dataset catalog, the user's selection and the transcript of
// questions and answers.
package session

import (
	"context"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rcliao/data-assistant/internal/logging"
	"github.com/rcliao/data-assistant/internal/model"
)

// Backend is everything a session needs from the server.
type Backend interface {
	CatalogBackend
	QueryBackend
}

// MessageLog persists transcript entries per session.
type MessageLog interface {
	AppendMessage(ctx context.Context, sessionID string, m model.ChatMessage) error
}

// Deps are the collaborators of a session. Backend is required; a nil
// Identity acts as model.DefaultIdentity.
type Deps struct {
	Identity *IdentityContext
	Backend  Backend
	Cache    SnapshotCache
	Log      MessageLog
	Logger   *zap.Logger
}

// Options tune a session.
type Options struct {
	// ID names the session in the message log; empty generates one.
	ID string
	// QueryLimit is the row limit sent with each question.
	QueryLimit int
}

// Session owns the state of one conversation.
type Session struct {
	ID         string
	Identity   *IdentityContext
	Catalog    *Catalog
	Selection  *Selection
	Transcript *Transcript
	Dispatcher *Dispatcher

	logger *zap.Logger
}

// New wires a session.
func New(deps Deps, opts Options) *Session {
	logger := logging.OrNop(deps.Logger)
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger = logger.With(zap.String("session", id))
	if deps.Identity == nil {
		deps.Identity = NewIdentityContext(nil, "", logger)
	}

	var rec Recorder
	if deps.Log != nil {
		rec = logRecorder{log: deps.Log, sessionID: id}
	}

	s := &Session{
		ID:         id,
		Identity:   deps.Identity,
		Catalog:    NewCatalog(deps.Backend, deps.Cache, logger),
		Selection:  NewSelection(),
		Transcript: NewTranscript(rec, logger),
		logger:     logger,
	}
	s.Dispatcher = NewDispatcher(deps.Backend, s.Catalog, s.Selection, deps.Identity, s.Transcript, opts.QueryLimit, logger)
	return s
}

// Open seeds the catalog from the cache and refreshes it.
func (s *Session) Open(ctx context.Context, syncFirst bool) (model.Snapshot, error) {
	if err := s.Catalog.Seed(ctx); err != nil {
		s.logger.Debug("no cached catalog", zap.Error(err))
	}
	return s.Catalog.Refresh(ctx, syncFirst)
}

// Refresh reloads the catalog.
func (s *Session) Refresh(ctx context.Context, syncFirst bool) (model.Snapshot, error) {
	return s.Catalog.Refresh(ctx, syncFirst)
}

// Upload adds a dataset and refreshes the catalog so it can be selected.
func (s *Session) Upload(ctx context.Context, filename string, r io.Reader, name string) (model.UploadResult, error) {
	res, err := s.Catalog.Upload(ctx, filename, r, name)
	if err != nil {
		return res, err
	}
	if _, err := s.Catalog.Refresh(ctx, false); err != nil {
		s.logger.Warn("refresh after upload failed", zap.Error(err))
	}
	return res, nil
}

// Ask sends a question against the current selection.
func (s *Session) Ask(ctx context.Context, question string) (model.ChatMessage, error) {
	return s.Dispatcher.Ask(ctx, question)
}

// Messages returns the transcript.
func (s *Session) Messages() []model.ChatMessage {
	return s.Transcript.Messages()
}

type logRecorder struct {
	log       MessageLog
	sessionID string
}

func (r logRecorder) Record(ctx context.Context, m model.ChatMessage) error {
	return r.log.AppendMessage(ctx, r.sessionID, m)
}
