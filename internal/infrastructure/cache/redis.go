package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	"github.com/johnquangdev/clinical-scribe/pkg/config"
)

// RedisIndex keeps the suggestion index in Redis. Each document is a hash
// (text, terms, metadata) and every term has a set of the sessions that
// mention it.
type RedisIndex struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewRedisIndex creates a suggestion index on top of client
func NewRedisIndex(client *redis.Client, prefix string, logger *zap.Logger) *RedisIndex {
	if prefix == "" {
		prefix = "scribe:suggest"
	}
	return &RedisIndex{client: client, prefix: prefix, logger: logger}
}

func (r *RedisIndex) docKey(sessionID string) string {
	return r.prefix + ":doc:" + sessionID
}

func (r *RedisIndex) termKey(term string) string {
	return r.prefix + ":term:" + term
}

// Upsert stores doc under sessionID, replacing any previous version
func (r *RedisIndex) Upsert(ctx context.Context, sessionID string, doc entities.SuggestionDocument) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode suggestion metadata: %w", err)
	}
	terms, err := json.Marshal(doc.Terms)
	if err != nil {
		return fmt.Errorf("encode suggestion terms: %w", err)
	}

	oldTerms, err := r.terms(ctx, sessionID)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, term := range oldTerms {
			pipe.SRem(ctx, r.termKey(term), sessionID)
		}
		pipe.HSet(ctx, r.docKey(sessionID),
			"text", doc.Text,
			"terms", string(terms),
			"metadata", string(meta),
		)
		for _, term := range doc.Terms {
			pipe.SAdd(ctx, r.termKey(term), sessionID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert suggestion document: %w", err)
	}

	if r.logger != nil {
		r.logger.Debug("📚 Suggestion document indexed",
			zap.String("session_id", sessionID),
			zap.Int("terms", len(doc.Terms)),
		)
	}
	return nil
}

// Query returns the metadata of up to k documents sharing the most terms
// with text
func (r *RedisIndex) Query(ctx context.Context, text string, k int) ([]entities.SuggestionMetadata, error) {
	terms := entities.SuggestionTerms(text)
	if len(terms) == 0 || k <= 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	members := make([]*redis.StringSliceCmd, len(terms))
	for i, term := range terms {
		members[i] = pipe.SMembers(ctx, r.termKey(term))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("query suggestion terms: %w", err)
	}

	hits := make(map[string]int)
	for _, cmd := range members {
		for _, id := range cmd.Val() {
			hits[id]++
		}
	}

	ids := rankHits(hits, k)
	if len(ids) == 0 {
		return nil, nil
	}

	pipe = r.client.Pipeline()
	metas := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		metas[i] = pipe.HGet(ctx, r.docKey(id), "metadata")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load suggestion metadata: %w", err)
	}

	out := make([]entities.SuggestionMetadata, 0, len(ids))
	for i, cmd := range metas {
		raw, err := cmd.Result()
		if err != nil {
			continue
		}
		var meta entities.SuggestionMetadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			if r.logger != nil {
				r.logger.Warn("⚠️ Skipping unreadable suggestion metadata", zap.String("session_id", ids[i]), zap.Error(err))
			}
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

func (r *RedisIndex) terms(ctx context.Context, sessionID string) ([]string, error) {
	raw, err := r.client.HGet(ctx, r.docKey(sessionID), "terms").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load previous terms: %w", err)
	}
	var terms []string
	if err := json.Unmarshal([]byte(raw), &terms); err != nil {
		return nil, nil
	}
	return terms, nil
}
