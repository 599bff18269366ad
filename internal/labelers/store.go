// Package labelers persists the moderation labeler DIDs a user subscribes
// to, so the app can configure moderation before preferences load.
package labelers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"skyprefs/pkg/config"
	"skyprefs/pkg/redis"
)

type Store interface {
	Save(ctx context.Context, did string, labelers []string) error
	// Load returns nil when nothing has been saved for did.
	Load(ctx context.Context, did string) ([]string, error)
}

// Memory is a process-local store.
type Memory struct {
	mu   sync.RWMutex
	byID map[string][]string
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string][]string)}
}

func (m *Memory) Save(_ context.Context, did string, labelers []string) error {
	m.mu.Lock()
	m.byID[did] = append([]string{}, labelers...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, did string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.byID[did]
	if !ok {
		return nil, nil
	}
	return append([]string{}, v...), nil
}

// File keeps every user's labelers in one JSON object on disk.
type File struct {
	mu   sync.Mutex
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) read() (map[string][]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read labeler store: %w", err)
	}
	out := map[string][]string{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode labeler store: %w", err)
	}
	return out, nil
}

func (f *File) Save(_ context.Context, did string, labelers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return err
	}
	all[did] = append([]string{}, labelers...)
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create labeler store dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write labeler store: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *File) Load(_ context.Context, did string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.read()
	if err != nil {
		return nil, err
	}
	return all[did], nil
}

// Redis stores each user's list as JSON under labelers:<did>.
type Redis struct {
	client goredis.UniversalClient
}

func NewRedis(client goredis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func redisKey(did string) string {
	return "labelers:" + did
}

func (r *Redis) Save(ctx context.Context, did string, labelers []string) error {
	data, err := json.Marshal(append([]string{}, labelers...))
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKey(did), data, 0).Err(); err != nil {
		return fmt.Errorf("save labelers: %w", err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, did string) ([]string, error) {
	data, err := r.client.Get(ctx, redisKey(did)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load labelers: %w", err)
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode labelers: %w", err)
	}
	return out, nil
}

// Open builds the store selected by cfg.LabelerStore. The returned close
// func is never nil.
func Open(ctx context.Context, cfg config.Appview) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.LabelerStore {
	case "", "memory":
		return NewMemory(), noop, nil
	case "file":
		return NewFile(cfg.LabelerStorePath), noop, nil
	case "redis":
		client, err := redis.NewClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return NewRedis(client), client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown labeler store %q", cfg.LabelerStore)
	}
}
