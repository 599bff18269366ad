// Package notifications reads and updates per-reason notification settings.
package notifications

import (
	"context"

	"skyprefs/internal/mutation"
	"skyprefs/internal/toast"
	"skyprefs/pkg/cache"
	"skyprefs/pkg/clients/bsky"
	"skyprefs/pkg/logging"
)

// QueryKey prefixes the cache key of each account's settings.
const QueryKey = "notification-settings"

// Key is the cache key for did's settings.
func Key(did string) string {
	return QueryKey + ":" + did
}

const updateFailedMessage = "Could not update notification settings"

type Agent interface {
	DID() string
	GetNotificationPreferences(ctx context.Context) (bsky.NotificationPreferences, error)
	PutNotificationPreferences(ctx context.Context, update bsky.NotificationPreferences) (bsky.NotificationPreferences, error)
}

type Config struct {
	Agent    Agent
	Cache    *cache.Cache
	Toasts   toast.Notifier
	Observer mutation.Observer
	Logger   logging.Logger
}

type Service struct {
	agent  Agent
	cache  *cache.Cache
	toasts toast.Notifier
	runner mutation.Runner
	logger logging.Logger
}

func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	toasts := cfg.Toasts
	if toasts == nil {
		toasts = toast.LogNotifier{Logger: logger}
	}
	s := &Service{
		agent:  cfg.Agent,
		cache:  cfg.Cache,
		toasts: toasts,
		logger: logger,
	}
	s.runner = mutation.Runner{Cache: cfg.Cache, KeyFunc: s.key, Observer: cfg.Observer, Logger: logger}
	return s
}

func (s *Service) key() string {
	return Key(s.agent.DID())
}

func (s *Service) load(ctx context.Context, key string) (interface{}, bool, error) {
	prefs, err := s.agent.GetNotificationPreferences(ctx)
	if err != nil {
		return nil, false, err
	}
	if s.key() != key {
		return nil, false, bsky.ErrNotAuthenticated
	}
	return prefs, true, nil
}

// Forget drops the cached settings of did.
func (s *Service) Forget(did string) {
	s.cache.Delete(Key(did))
}

func (s *Service) Settings(ctx context.Context) (bsky.NotificationPreferences, error) {
	v, _, err := s.cache.Get(ctx, s.key(), s.load)
	if err != nil {
		return bsky.NotificationPreferences{}, err
	}
	return v.(bsky.NotificationPreferences), nil
}

// Update merges update into the cached settings, then sends it. On success
// the cache holds what the server returned. On failure the error is logged,
// the settings are refetched, the user is notified and the error returned.
func (s *Service) Update(ctx context.Context, update bsky.NotificationPreferences) (bsky.NotificationPreferences, error) {
	const name = "updateNotificationSettings"
	key := s.key()

	s.runner.Optimistic(name, func(old any, ok bool) (any, bool) {
		if !ok {
			return nil, false
		}
		return old.(bsky.NotificationPreferences).Merge(update), true
	})

	stored, err := s.agent.PutNotificationPreferences(ctx, update)
	if err == nil {
		s.cache.Set(key, stored, s.cache.TTL())
		s.runner.Confirm(name)
		return stored, nil
	}

	s.logger.WithFields(logging.Fields{"error": err}).Error(updateFailedMessage)
	_ = s.runner.Run(ctx, name, func(context.Context) error { return err })
	s.toasts.Show(updateFailedMessage, toast.KindError)
	return bsky.NotificationPreferences{}, err
}
