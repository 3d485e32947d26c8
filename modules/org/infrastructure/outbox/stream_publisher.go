package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	gerrors "github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/Dr1DeX/orgtree/modules/org/domain/events"
)

const DefaultMaxLen int64 = 10000

// StreamPublisher appends committed org changes to a Redis stream named after the topic.
type StreamPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

func NewStreamPublisher(client redis.Cmdable, stream string, maxLen int64) *StreamPublisher {
	if stream == "" {
		stream = events.TopicOrgChangedV1
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Stream() string { return p.stream }

// Handle has the eventbus handler signature.
func (p *StreamPublisher) Handle(ctx context.Context, ev events.OrgEventV1) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("org stream publisher: client is nil")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return gerrors.Wrap(err, "encode org event")
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":    ev.EventID.String(),
			"change_type": ev.ChangeType,
			"entity_type": ev.EntityType,
			"entity_id":   ev.EntityID,
			"payload":     string(payload),
		},
	}).Err()
	if err != nil {
		return gerrors.Wrapf(err, "xadd %s", p.stream)
	}
	return nil
}

// Recent returns up to count events, newest first.
func (p *StreamPublisher) Recent(ctx context.Context, count int64) ([]events.OrgEventV1, error) {
	msgs, err := p.client.XRevRangeN(ctx, p.stream, "+", "-", count).Result()
	if err != nil {
		return nil, gerrors.Wrapf(err, "xrevrange %s", p.stream)
	}
	out := make([]events.OrgEventV1, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			return nil, fmt.Errorf("org stream publisher: message %s has no payload", msg.ID)
		}
		var ev events.OrgEventV1
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, gerrors.Wrapf(err, "decode message %s", msg.ID)
		}
		out = append(out, ev)
	}
	return out, nil
}
