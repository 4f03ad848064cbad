package notifier

import (
	"context"
	"errors"
	"fmt"

	domrepo "SignalFeed/internal/domain/repository"
	applogger "SignalFeed/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisRelay spreads change hints across instances. Notify publishes on a
// channel; Run subscribes to it and broadcasts to the local hub.
type RedisRelay struct {
	cli     *redis.Client
	channel string
	hub     *Hub
	log     *applogger.Logger
}

func NewRedisRelay(cli *redis.Client, channel string, hub *Hub, log *applogger.Logger) *RedisRelay {
	if log == nil {
		log = applogger.Nop()
	}
	return &RedisRelay{cli: cli, channel: channel, hub: hub, log: log}
}

// Notify publishes the hint. If redis is unreachable the local hub is still
// hinted so viewers on this instance stay current.
func (r *RedisRelay) Notify(ctx context.Context) error {
	if err := r.cli.Publish(ctx, r.channel, HintMessage).Err(); err != nil {
		r.hub.Broadcast(ctx)
		return fmt.Errorf("publish change hint: %w", err)
	}
	return nil
}

// Run relays published hints to the hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.cli.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("change relay subscribed", applogger.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("change relay: subscription closed")
			}
			n := r.hub.Broadcast(ctx)
			r.log.Debug("change hint relayed", applogger.String("payload", msg.Payload), applogger.Int("delivered", n))
		}
	}
}

var _ domrepo.ChangeNotifier = (*RedisRelay)(nil)
