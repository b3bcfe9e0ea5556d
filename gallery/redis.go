/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-redis/redis/v9"
)

const keyGallery = "corpse-gallery-%s"

var encMode = mustEncMode(cbor.EncOptions{Time: cbor.TimeRFC3339Nano})

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("gallery: cbor encoding options: %v", err))
	}

	return em
}

type RedisSettings struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore keeps each game's records in a redis list of cbor blobs. The list
// expires ttl after the latest save.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(settings RedisSettings) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     settings.Address,
			Password: settings.Password,
			DB:       settings.DB,
		}),
		ttl: settings.TTL,
	}
}

// Ping checks that the server is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Save(ctx context.Context, rec Record) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}

	key := fmt.Sprintf(keyGallery, rec.GameID)

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save gallery record: %w", err)
	}

	return nil
}

func (r *RedisStore) List(ctx context.Context, gameID string) ([]Record, error) {
	blobs, err := r.client.LRange(ctx, fmt.Sprintf(keyGallery, gameID), 0, -1).Result()
	if err != nil && !empty(err) {
		return nil, fmt.Errorf("list gallery records: %w", err)
	}

	out := make([]Record, 0, len(blobs))
	for _, blob := range blobs {
		rec, err := decode([]byte(blob))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	return out, nil
}

// empty reports whether err only says the key holds nothing.
func empty(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func encode(rec Record) ([]byte, error) {
	data, err := encMode.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode gallery record: %w", err)
	}

	return data, nil
}

func decode(data []byte) (Record, error) {
	var rec Record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode gallery record: %w", err)
	}

	return rec, nil
}
