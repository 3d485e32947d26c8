package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Dr1DeX/orgtree/modules/org/domain/events"
	"github.com/Dr1DeX/orgtree/modules/org/infrastructure/outbox"
	"github.com/Dr1DeX/orgtree/pkg/eventbus"
)

type OrgEventsHandler struct {
	log    *logrus.Logger
	stream *outbox.StreamPublisher
}

// RegisterOrgEventHandlers subscribes the audit logger and, when stream is
// non-nil, the Redis stream publisher to bus.
func RegisterOrgEventHandlers(bus *eventbus.Bus[events.OrgEventV1], log *logrus.Logger, stream *outbox.StreamPublisher) *OrgEventsHandler {
	h := &OrgEventsHandler{log: log, stream: stream}
	bus.Subscribe("audit_log", h.onOrgEventV1)
	if stream != nil {
		bus.Subscribe("redis_stream", stream.Handle)
	}
	return h
}

func (h *OrgEventsHandler) onOrgEventV1(_ context.Context, ev events.OrgEventV1) error {
	if h == nil || h.log == nil {
		return nil
	}
	h.log.WithFields(logrus.Fields{
		"event_id":    ev.EventID.String(),
		"request_id":  ev.RequestID,
		"change_type": ev.ChangeType,
		"entity_type": ev.EntityType,
		"entity_id":   ev.EntityID,
		"tx_time":     ev.TransactionTime,
	}).Info("org.changed.v1")
	return nil
}
