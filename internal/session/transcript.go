package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rcliao/data-assistant/internal/logging"
	"github.com/rcliao/data-assistant/internal/model"
)

// ErrDuplicateID is returned when appending a message whose id is taken.
var ErrDuplicateID = errors.New("duplicate message id")

// Recorder receives every message appended to a transcript.
type Recorder interface {
	Record(ctx context.Context, m model.ChatMessage) error
}

// Transcript is the append-only conversation log of one session.
type Transcript struct {
	mu       sync.RWMutex
	messages []model.ChatMessage
	ids      map[string]struct{}
	recorder Recorder
	logger   *zap.Logger
}

// NewTranscript returns an empty transcript. recorder may be nil.
func NewTranscript(recorder Recorder, logger *zap.Logger) *Transcript {
	return &Transcript{
		ids:      make(map[string]struct{}),
		recorder: recorder,
		logger:   logging.OrNop(logger),
	}
}

// Append adds m at the end. A recorder failure is logged and does not undo
// the append.
func (t *Transcript) Append(ctx context.Context, m model.ChatMessage) error {
	if m.ID == "" {
		return fmt.Errorf("append message: empty id")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, taken := t.ids[m.ID]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
	}
	t.ids[m.ID] = struct{}{}
	t.messages = append(t.messages, m)

	// Recorded under the lock so the log keeps append order. A cancelled
	// query still gets its terminal message recorded.
	if t.recorder != nil {
		if err := t.recorder.Record(context.WithoutCancel(ctx), m); err != nil {
			t.logger.Warn("record message failed", zap.String("id", m.ID), zap.Error(err))
		}
	}
	return nil
}

// Messages returns a copy of the transcript in append order.
func (t *Transcript) Messages() []model.ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.ChatMessage(nil), t.messages...)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
