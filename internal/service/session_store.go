package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/llmcompare/internal/dto"
)

// SessionStore keeps the per-client state that outlives a single request: the guard
// that allows one in-flight submission and the last final-answer markdown.
type SessionStore interface {
	AcquireSubmission(ctx context.Context, clientID, submissionID string, ttl time.Duration) (bool, error)
	RefreshSubmission(ctx context.Context, clientID, submissionID string, ttl time.Duration) (bool, error)
	ReleaseSubmission(ctx context.Context, clientID, submissionID string) error
	SaveLatestAnswer(ctx context.Context, clientID string, answer dto.LatestAnswerResponse, ttl time.Duration) error
	LatestAnswer(ctx context.Context, clientID string) (dto.LatestAnswerResponse, bool, error)
}

// releaseScript deletes the lock only while it still belongs to the releasing submission.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only while it still belongs to the running submission.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type redisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore stores session state in redis under the given key prefix.
func NewRedisSessionStore(client *redis.Client, prefix string) SessionStore {
	if prefix == "" {
		prefix = "llmcompare"
	}
	return &redisSessionStore{client: client, prefix: prefix}
}

func (s *redisSessionStore) lockKey(clientID string) string {
	return fmt.Sprintf("%s:submission:lock:%s", s.prefix, clientID)
}

func (s *redisSessionStore) answerKey(clientID string) string {
	return fmt.Sprintf("%s:answer:latest:%s", s.prefix, clientID)
}

func (s *redisSessionStore) AcquireSubmission(ctx context.Context, clientID, submissionID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.lockKey(clientID), submissionID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire submission lock: %w", err)
	}
	return ok, nil
}

func (s *redisSessionStore) RefreshSubmission(ctx context.Context, clientID, submissionID string, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, s.client, []string{s.lockKey(clientID)}, submissionID, ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("refresh submission lock: %w", err)
	}
	return n == 1, nil
}

func (s *redisSessionStore) ReleaseSubmission(ctx context.Context, clientID, submissionID string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.lockKey(clientID)}, submissionID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release submission lock: %w", err)
	}
	return nil
}

func (s *redisSessionStore) SaveLatestAnswer(ctx context.Context, clientID string, answer dto.LatestAnswerResponse, ttl time.Duration) error {
	payload, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.answerKey(clientID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store latest answer: %w", err)
	}
	return nil
}

func (s *redisSessionStore) LatestAnswer(ctx context.Context, clientID string) (dto.LatestAnswerResponse, bool, error) {
	cached, err := s.client.Get(ctx, s.answerKey(clientID)).Result()
	if errors.Is(err, redis.Nil) {
		return dto.LatestAnswerResponse{}, false, nil
	}
	if err != nil {
		return dto.LatestAnswerResponse{}, false, fmt.Errorf("read latest answer: %w", err)
	}

	var answer dto.LatestAnswerResponse
	if err := json.Unmarshal([]byte(cached), &answer); err != nil {
		return dto.LatestAnswerResponse{}, false, fmt.Errorf("decode latest answer: %w", err)
	}
	return answer, true, nil
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type memorySessionStore struct {
	mu      sync.Mutex
	locks   map[string]memoryEntry
	answers map[string]memoryEntry
	now     func() time.Time
}

// NewMemorySessionStore keeps session state in process memory. Used when no redis is configured.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{
		locks:   make(map[string]memoryEntry),
		answers: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *memorySessionStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *memorySessionStore) AcquireSubmission(_ context.Context, clientID, submissionID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.locks[clientID]; ok && !entry.expired(s.now()) {
		return false, nil
	}
	s.locks[clientID] = memoryEntry{value: submissionID, expiresAt: s.expiry(ttl)}
	return true, nil
}

func (s *memorySessionStore) RefreshSubmission(_ context.Context, clientID, submissionID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.locks[clientID]
	if !ok || entry.value != submissionID || entry.expired(s.now()) {
		return false, nil
	}
	entry.expiresAt = s.expiry(ttl)
	s.locks[clientID] = entry
	return true, nil
}

func (s *memorySessionStore) ReleaseSubmission(_ context.Context, clientID, submissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.locks[clientID]; ok && entry.value == submissionID {
		delete(s.locks, clientID)
	}
	return nil
}

func (s *memorySessionStore) SaveLatestAnswer(_ context.Context, clientID string, answer dto.LatestAnswerResponse, ttl time.Duration) error {
	payload, err := json.Marshal(answer)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[clientID] = memoryEntry{value: string(payload), expiresAt: s.expiry(ttl)}
	return nil
}

func (s *memorySessionStore) LatestAnswer(_ context.Context, clientID string) (dto.LatestAnswerResponse, bool, error) {
	s.mu.Lock()
	entry, ok := s.answers[clientID]
	if ok && entry.expired(s.now()) {
		delete(s.answers, clientID)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return dto.LatestAnswerResponse{}, false, nil
	}

	var answer dto.LatestAnswerResponse
	if err := json.Unmarshal([]byte(entry.value), &answer); err != nil {
		return dto.LatestAnswerResponse{}, false, err
	}
	return answer, true, nil
}
