package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dr1DeX/orgtree/modules/org/domain/events"
	"github.com/Dr1DeX/orgtree/pkg/composables"
)

// EventSink receives change events after the owning transaction committed.
type EventSink interface {
	Publish(ctx context.Context, event events.OrgEventV1) error
}

func emitEvent(ctx context.Context, sink EventSink, changeType, entityType string, entityID int64, oldValues, newValues any) events.OrgEventV1 {
	event := events.New(composables.UseRequestID(ctx), time.Now(), changeType, entityType, entityID, oldValues, newValues)
	logWithFields(ctx, logrus.DebugLevel, "org change committed", logrus.Fields{
		"event_id":    event.EventID.String(),
		"change_type": changeType,
		"entity_id":   entityID,
	})
	if sink == nil {
		return event
	}
	if err := sink.Publish(context.WithoutCancel(ctx), event); err != nil {
		logWithFields(ctx, logrus.WarnLevel, "org change event not published", logrus.Fields{
			"event_id":    event.EventID.String(),
			"change_type": changeType,
			"error":       err.Error(),
		})
	}
	return event
}
