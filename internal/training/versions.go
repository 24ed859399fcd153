package training

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	patternVersionKey = "training:patterns:version"
	patternBumpChan   = "training.patterns.bump"
)

// Versions keeps the pattern store version in redis so every process
// notices when a pattern is learned.
type Versions struct {
	client *redis.Client
}

// NewVersions shares the pattern version through client; nil keeps it in process.
func NewVersions(client *redis.Client) *Versions {
	return &Versions{client: client}
}

// Current returns the pattern store version, initialising it when missing.
func (v *Versions) Current(ctx context.Context) (int64, error) {
	if v == nil || v.client == nil {
		return 0, nil
	}
	ver, err := v.client.Get(ctx, patternVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := v.client.SetNX(ctx, patternVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return v.client.Get(ctx, patternVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump increments the version and announces it on the bump channel.
func (v *Versions) Bump(ctx context.Context) (int64, error) {
	if v == nil || v.client == nil {
		return 0, nil
	}
	ver, err := v.client.Incr(ctx, patternVersionKey).Result()
	if err != nil {
		return 0, err
	}
	return ver, v.client.Publish(ctx, patternBumpChan, strconv.FormatInt(ver, 10)).Err()
}

// Listen calls onBump for every announced version until ctx is done.
func (v *Versions) Listen(ctx context.Context, onBump func(int64)) error {
	if v == nil || v.client == nil || onBump == nil {
		return nil
	}
	pubsub := v.client.Subscribe(ctx, patternBumpChan)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					onBump(ver)
				}
			}
		}
	}()
	return nil
}
