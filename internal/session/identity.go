package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/data-assistant/internal/logging"
	"github.com/rcliao/data-assistant/internal/model"
	"github.com/rcliao/data-assistant/internal/store"
)

// KV is durable key-value storage.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// ErrEmptyIdentity is returned when setting a blank identity.
var ErrEmptyIdentity = errors.New("identity must not be empty")

// identityReadTimeout bounds the storage read behind Get.
const identityReadTimeout = 2 * time.Second

// IdentityContext holds the acting identity. Every component that needs it
// is handed the same value; a change applies to requests built afterwards.
type IdentityContext struct {
	kv       KV
	fallback string
	logger   *zap.Logger
}

// NewIdentityContext reads and writes the identity through kv. fallback is
// returned whenever kv has no usable value; empty means model.DefaultIdentity.
func NewIdentityContext(kv KV, fallback string, logger *zap.Logger) *IdentityContext {
	if strings.TrimSpace(fallback) == "" {
		fallback = model.DefaultIdentity
	}
	return &IdentityContext{kv: kv, fallback: fallback, logger: logging.OrNop(logger)}
}

// Get returns the current identity. It never fails.
func (c *IdentityContext) Get() string {
	if c.kv == nil {
		return c.fallback
	}
	ctx, cancel := context.WithTimeout(context.Background(), identityReadTimeout)
	defer cancel()

	id, err := c.kv.Get(ctx, store.IdentityKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("read identity failed, using default", zap.String("default", c.fallback), zap.Error(err))
		}
		return c.fallback
	}
	if id = strings.TrimSpace(id); id == "" {
		return c.fallback
	}
	return id
}

// Set stores a new identity.
func (c *IdentityContext) Set(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyIdentity
	}
	if c.kv == nil {
		return fmt.Errorf("set identity: no storage")
	}
	if err := c.kv.Set(ctx, store.IdentityKey, id); err != nil {
		return fmt.Errorf("set identity: %w", err)
	}
	c.logger.Debug("identity changed", zap.String("identity", id))
	return nil
}
