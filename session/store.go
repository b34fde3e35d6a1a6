package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const activeSessionsKey = "active_sessions"

// Store mirrors session status and transcripts into Redis so other tools can
// follow a conversation. A nil *Store, or one without a client, does nothing.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// ConnectRedis dials addr and pings it. It returns nil when Redis is
// unreachable; the daemon runs without the mirror in that case.
func ConnectRedis(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️ Redis unavailable at %s, continuing without it: %v", addr, err)
		client.Close()
		return nil
	}
	log.Printf("✅ Connected to Redis at %s", addr)
	return client
}

// NewStore wraps client; keys expire ttl after their last write.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) enabled() bool {
	return s != nil && s.client != nil
}

func sessionKey(id string) string {
	return "session:" + id
}

func transcriptKey(id string) string {
	return "session:" + id + ":transcript"
}

// Register records a new session.
func (s *Store) Register(ctx context.Context, id string, createdAt time.Time) {
	if !s.enabled() {
		return
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey(id), map[string]interface{}{
			"created_at":    createdAt.Format(time.RFC3339),
			"last_activity": createdAt.Format(time.RFC3339),
			"status":        string(StatusIdle),
		})
		pipe.SAdd(ctx, activeSessionsKey, id)
		pipe.Expire(ctx, sessionKey(id), s.ttl)
		return nil
	})
	s.logErr(id, "register", err)
}

// SetStatus records the session's current status.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) {
	if !s.enabled() {
		return
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey(id), map[string]interface{}{
			"status":        string(status),
			"last_activity": time.Now().Format(time.RFC3339),
		})
		pipe.Expire(ctx, sessionKey(id), s.ttl)
		return nil
	})
	s.logErr(id, "set status", err)
}

// AppendTranscript pushes finalized items, in order, as JSON list entries.
func (s *Store) AppendTranscript(ctx context.Context, id string, items []TranscriptItem) {
	if !s.enabled() || len(items) == 0 {
		return
	}
	values := make([]interface{}, 0, len(items))
	for _, item := range items {
		data, err := sonic.Marshal(item)
		if err != nil {
			s.logErr(id, "encode transcript", err)
			return
		}
		values = append(values, string(data))
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, transcriptKey(id), values...)
		pipe.Expire(ctx, transcriptKey(id), s.ttl)
		return nil
	})
	s.logErr(id, "append transcript", err)
}

// Transcript reads back the mirrored transcript.
func (s *Store) Transcript(ctx context.Context, id string) ([]TranscriptItem, error) {
	if !s.enabled() {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, transcriptKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	items := make([]TranscriptItem, 0, len(raw))
	for _, r := range raw {
		var item TranscriptItem
		if err := sonic.UnmarshalString(r, &item); err != nil {
			return nil, fmt.Errorf("decode transcript item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Remove drops the session from the active set. The transcript is left to
// expire so it can still be read after the conversation ends.
func (s *Store) Remove(ctx context.Context, id string) {
	if !s.enabled() {
		return
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, activeSessionsKey, id)
		return nil
	})
	s.logErr(id, "remove", err)
}

// Close releases the Redis client.
func (s *Store) Close() error {
	if !s.enabled() {
		return nil
	}
	return s.client.Close()
}

func (s *Store) logErr(id, op string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	if len(id) > 8 {
		id = id[:8]
	}
	log.Printf("⚠️ [%s] Redis %s failed: %v", id, op, err)
}
