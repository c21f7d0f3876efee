package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	keyPrefix = "session:"

	// DefaultTTL — время жизни сессии без активности.
	DefaultTTL = 24 * time.Hour

	maxUpdateAttempts = 5
)

// SessionStore хранит сессии storefront в Redis (JSON по ключу session:<id>).
// Update использует WATCH/MULTI, поэтому конкурентные изменения одной сессии не теряются.
type SessionStore struct {
	client *goredis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionStore создаёт Redis-хранилище сессий.
func NewSessionStore(client *goredis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SessionStore{
		client: client,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ping проверяет доступность Redis.
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Load возвращает сессию; отсутствующий ключ даёт пустую сессию.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, domain.ErrSessionRequired
	}
	return s.read(ctx, s.client, sessionID)
}

// Update читает, изменяет и сохраняет сессию в одной WATCH-транзакции.
// При конкурентной записи попытка повторяется; после исчерпания попыток: ErrSessionConflict.
func (s *SessionStore) Update(ctx context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, domain.ErrSessionRequired
	}
	key := keyPrefix + sessionID

	var result domain.Session
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			session, err := s.read(ctx, tx, sessionID)
			if err != nil {
				return err
			}
			if err := fn(&session); err != nil {
				return err
			}
			session.ID = sessionID
			session.UpdatedAt = s.now()

			data, err := json.Marshal(session)
			if err != nil {
				return fmt.Errorf("marshal session: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, data, s.ttl)
				return nil
			})
			if err != nil {
				return err
			}
			result = session
			return nil
		}, key)

		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}
		return result, nil
	}
	return domain.Session{}, domain.ErrSessionConflict
}

// Delete удаляет сессию.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, keyPrefix+strings.TrimSpace(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}

func (s *SessionStore) read(ctx context.Context, c goredis.Cmdable, sessionID string) (domain.Session, error) {
	data, err := c.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.NewSession(sessionID), nil
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("redis get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

var _ domain.SessionStore = (*SessionStore)(nil)
