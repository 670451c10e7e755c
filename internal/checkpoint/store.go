package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/zgpcy/azure-lro-poller/internal/config"
	"github.com/zgpcy/azure-lro-poller/internal/logger"
)

// ErrNotFound is returned by Load when no checkpoint exists for an id
var ErrNotFound = errors.New("checkpoint not found")

// tokenSuffix is appended to ids by the file and blob backends
const tokenSuffix = ".token"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Store persists resume tokens of in-flight operations keyed by id
type Store interface {
	// Save creates or replaces the token stored under id
	Save(ctx context.Context, id, token string) error
	// Load returns the token stored under id, or ErrNotFound
	Load(ctx context.Context, id string) (string, error)
	// Delete removes the checkpoint; deleting a missing id is not an error
	Delete(ctx context.Context, id string) error
	// List returns every stored token keyed by id
	List(ctx context.Context) (map[string]string, error)
	Close() error
}

// ValidateID rejects ids that are unsafe as file or blob names
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid checkpoint id %q", id)
	}
	return nil
}

// Open builds the store selected by cfg.Backend
func Open(ctx context.Context, cfg config.CheckpointConfig, log *logger.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		log.Info("Using file checkpoint store", "dir", cfg.Dir)
		return NewFileStore(cfg.Dir)
	case config.BackendRedis:
		log.Info("Using redis checkpoint store", "key", cfg.RedisKey)
		return OpenRedisStore(ctx, cfg.RedisURL, cfg.RedisKey)
	case config.BackendBlob:
		log.Info("Using blob checkpoint store",
			"account_url", cfg.BlobAccountURL,
			"container", cfg.BlobContainer)
		return OpenBlobStore(cfg.BlobAccountURL, cfg.BlobContainer)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
