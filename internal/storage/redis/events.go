package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// relayEnvelope 跨实例转发的消息，Origin 用于丢弃本实例发出的消息
type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// EventRelay 通过 Redis Pub/Sub 在多个实例之间转发公文事件
type EventRelay struct {
	rdb        *goredis.Client
	channel    string
	instanceID string
	log        *zap.Logger
}

// NewEventRelay 创建事件转发器
func NewEventRelay(client *Client, channel, instanceID string, log *zap.Logger) *EventRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventRelay{
		rdb:        client.Client(),
		channel:    channel,
		instanceID: instanceID,
		log:        log,
	}
}

// Publish 发布已序列化的事件
func (r *EventRelay) Publish(ctx context.Context, payload []byte) error {
	data, err := json.Marshal(relayEnvelope{Origin: r.instanceID, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}
	return r.rdb.Publish(ctx, r.channel, data).Err()
}

// Run 订阅频道并把其他实例的事件交给 handler，阻塞直到 ctx 取消
func (r *EventRelay) Run(ctx context.Context, handler func(payload []byte)) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	// 等待订阅确认，保证返回前不会漏掉之后发布的消息
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe %s: %w", r.channel, err)
	}
	r.log.Info("event relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("dropping malformed relay message", zap.Error(err))
				continue
			}
			if env.Origin == r.instanceID {
				continue
			}
			handler(env.Payload)
		}
	}
}
