package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps the snapshot in a hash, the batch log in a sorted set scored by
// height and archived games in a hash, all under one key prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. Keys are namespaced by prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) snapshotKey() string { return r.prefix + ":snapshot" }
func (r *Redis) batchesKey() string  { return r.prefix + ":batches" }
func (r *Redis) gamesKey() string    { return r.prefix + ":games" }

type redisRecord struct {
	Data      []byte `json:"data"`
	UpdatedAt int64  `json:"updatedAt"`
}

func (r *Redis) Commit(ctx context.Context, c Commit) error {
	if err := validCommit(c); err != nil {
		return err
	}
	st, err := encodeState(c.State)
	if err != nil {
		return err
	}
	batch, err := json.Marshal(c.batch())
	if err != nil {
		return fmt.Errorf("redis: encode batch: %w", err)
	}

	key := r.snapshotKey()
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, "height").Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if c.Height != cur+1 {
			return ErrHeightConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "id", SnapshotID, "height", c.Height, "state", st)
			if c.Reset {
				pipe.ZRemRangeByScore(ctx, r.batchesKey(), "-inf", "("+strconv.FormatInt(c.Height, 10))
			}
			pipe.ZAdd(ctx, r.batchesKey(), redis.Z{Score: float64(c.Height), Member: batch})
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) || errors.Is(err, ErrHeightConflict) {
		return ErrHeightConflict
	}
	if err != nil {
		return fmt.Errorf("redis: commit: %w", err)
	}
	return nil
}

func (r *Redis) Latest(ctx context.Context) (Snapshot, error) {
	vals, err := r.client.HMGet(ctx, r.snapshotKey(), "height", "state").Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("redis: read snapshot: %w", err)
	}
	hs, ok1 := vals[0].(string)
	data, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return Snapshot{}, ErrNotFound
	}
	height, err := strconv.ParseInt(hs, 10, 64)
	if err != nil {
		return Snapshot{}, fmt.Errorf("redis: snapshot height %q: %w", hs, err)
	}
	st, err := decodeState([]byte(data))
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ID: SnapshotID, Height: height, State: st}, nil
}

func (r *Redis) Batches(ctx context.Context, after int64) ([]Batch, error) {
	members, err := r.client.ZRangeByScore(ctx, r.batchesKey(), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(after, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read batches: %w", err)
	}
	out := make([]Batch, 0, len(members))
	for _, m := range members {
		var b Batch
		if err := json.Unmarshal([]byte(m), &b); err != nil {
			return nil, fmt.Errorf("redis: decode batch: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *Redis) PutRecord(ctx context.Context, id string, data []byte) error {
	b, err := json.Marshal(redisRecord{Data: data, UpdatedAt: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.gamesKey(), id, b).Err(); err != nil {
		return fmt.Errorf("redis: put record %s: %w", id, err)
	}
	return nil
}

func (r *Redis) GetRecord(ctx context.Context, id string) ([]byte, error) {
	raw, err := r.client.HGet(ctx, r.gamesKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get record %s: %w", id, err)
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("redis: decode record %s: %w", id, err)
	}
	return rec.Data, nil
}

func (r *Redis) ListRecords(ctx context.Context) ([]Record, error) {
	all, err := r.client.HGetAll(ctx, r.gamesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list records: %w", err)
	}
	out := make([]Record, 0, len(all))
	for id, raw := range all {
		var rec redisRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			// Unreadable entries surface as corrupt records to the caller.
			out = append(out, Record{ID: id, Data: []byte(raw)})
			continue
		}
		out = append(out, Record{ID: id, Data: rec.Data, UpdatedAt: rec.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Redis) DeleteRecord(ctx context.Context, id string) error {
	n, err := r.client.HDel(ctx, r.gamesKey(), id).Result()
	if err != nil {
		return fmt.Errorf("redis: delete record %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reset deletes every key this backend owns.
func (r *Redis) Reset(ctx context.Context) error {
	return r.client.Del(ctx, r.snapshotKey(), r.batchesKey(), r.gamesKey()).Err()
}

// Close does not close the shared client.
func (r *Redis) Close() error { return nil }
