package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aescanero/carecoord/pkg/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sessionKeyPrefix = "carecoord:session:"

// SessionStore implements ports.SessionStore using Redis. Sessions are stored
// as JSON under carecoord:session:<id>.
type SessionStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewSessionStore creates a new Redis session store. A zero ttl keeps
// sessions until they are overwritten.
func NewSessionStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Record stores the session, replacing any previous value
func (s *SessionStore) Record(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session id is required")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Debug("session saved",
		zap.String("session_id", session.ID),
		zap.String("status", string(session.Status)))

	return nil
}

// Fetch returns the stored session
func (s *SessionStore) Fetch(ctx context.Context, sessionID string) (*domain.Session, bool, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Results == nil {
		session.Results = []domain.DispatchResult{}
	}

	return &session, true, nil
}

// List returns all stored session ids in lexical order
func (s *SessionStore) List(ctx context.Context) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if id := strings.TrimPrefix(key, sessionKeyPrefix); id != "" && id != key {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	return ids, nil
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}
