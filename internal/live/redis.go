package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier shares changes between API instances over Redis pub/sub.
// Each unit also keeps a revision counter so readers can tell whether they
// missed anything.
type RedisNotifier struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisNotifier connects to redisURL and checks the connection.
func NewRedisNotifier(redisURL string, logger *slog.Logger) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisNotifierWithClient(client, logger), nil
}

func NewRedisNotifierWithClient(client *redis.Client, logger *slog.Logger) *RedisNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{client: client, prefix: "barangay:requests:", logger: logger}
}

func (n *RedisNotifier) channel(unitID string) string {
	return n.prefix + unitID
}

func (n *RedisNotifier) revisionKey(unitID string) string {
	return n.prefix + unitID + ":rev"
}

func (n *RedisNotifier) Publish(ctx context.Context, change Change) error {
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	pipe := n.client.TxPipeline()
	pipe.Incr(ctx, n.revisionKey(change.UnitID))
	pipe.Publish(ctx, n.channel(change.UnitID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Listen(ctx context.Context, unitID string) (<-chan Change, func(), error) {
	pubsub := n.client.Subscribe(ctx, n.channel(unitID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", unitID, err)
	}

	box := newMailbox[Change]()
	listenCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
		})
	}

	go func() {
		defer stop()
		messages := pubsub.Channel()
		for {
			select {
			case <-listenCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					n.logger.Warn("discarding malformed change", "channel", msg.Channel, "error", err)
					continue
				}
				box.offer(change)
			}
		}
	}()
	return box.ch, stop, nil
}

// Revision returns how many changes have been published for unitID.
func (n *RedisNotifier) Revision(ctx context.Context, unitID string) (int64, error) {
	rev, err := n.client.Get(ctx, n.revisionKey(unitID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read revision: %w", err)
	}
	return rev, nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}
