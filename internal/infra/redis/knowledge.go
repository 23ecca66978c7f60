package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/infra/storage"
)

// KnowledgeRepo implements storage.KnowledgeBaseRepository on Redis.
// Each signature is one hash under kb:entry:<sig>, indexed in a set so
// the whole base stays externally inspectable with plain redis-cli.
type KnowledgeRepo struct {
	client *Client
}

func NewKnowledgeRepo(client *Client) *KnowledgeRepo {
	return &KnowledgeRepo{client: client}
}

func (r *KnowledgeRepo) Get(ctx context.Context, signature string) (*domain.KnowledgeEntry, error) {
	fields, err := r.client.rdb.HGetAll(ctx, entryKey(signature)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", storage.ErrEntryNotFound, signature)
	}
	return fieldsToEntry(signature, fields)
}

func (r *KnowledgeRepo) Put(ctx context.Context, entry *domain.KnowledgeEntry) error {
	pipe := r.client.rdb.TxPipeline()
	pipe.HSet(ctx, entryKey(entry.Signature), map[string]any{
		"playbook":   entry.PlaybookName,
		"success":    entry.SuccessCount,
		"failure":    entry.FailureCount,
		"confidence": strconv.FormatFloat(entry.Confidence, 'f', -1, 64),
		"auto_apply": strconv.FormatBool(entry.AutoApply),
		"last_used":  entry.LastUsed.UnixMilli(),
	})
	pipe.SAdd(ctx, indexKey, entry.Signature)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}
	return nil
}

func (r *KnowledgeRepo) List(ctx context.Context) ([]*domain.KnowledgeEntry, error) {
	sigs, err := r.client.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}

	out := make([]*domain.KnowledgeEntry, 0, len(sigs))
	for _, sig := range sigs {
		entry, err := r.Get(ctx, sig)
		if err != nil {
			// Index can be momentarily ahead of a deleted hash.
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *KnowledgeRepo) Delete(ctx context.Context, signature string) error {
	pipe := r.client.rdb.TxPipeline()
	pipe.Del(ctx, entryKey(signature))
	pipe.SRem(ctx, indexKey, signature)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

func (r *KnowledgeRepo) DeleteAll(ctx context.Context) error {
	sigs, err := r.client.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("smembers failed: %w", err)
	}
	pipe := r.client.rdb.TxPipeline()
	for _, sig := range sigs {
		pipe.Del(ctx, entryKey(sig))
	}
	pipe.Del(ctx, indexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear knowledge base: %w", err)
	}
	return nil
}

func fieldsToEntry(signature string, fields map[string]string) (*domain.KnowledgeEntry, error) {
	entry := &domain.KnowledgeEntry{
		Signature:    signature,
		PlaybookName: fields["playbook"],
	}

	var err error
	if v := fields["success"]; v != "" {
		if entry.SuccessCount, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid success count: %w", err)
		}
	}
	if v := fields["failure"]; v != "" {
		if entry.FailureCount, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid failure count: %w", err)
		}
	}
	if v := fields["confidence"]; v != "" {
		if entry.Confidence, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid confidence: %w", err)
		}
	}
	if v := fields["auto_apply"]; v != "" {
		entry.AutoApply = v == "true" || v == "1"
	}
	if v := fields["last_used"]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid last_used: %w", err)
		}
		if ms > 0 {
			entry.LastUsed = time.UnixMilli(ms)
		}
	}
	return entry, nil
}
