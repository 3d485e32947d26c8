package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Dr1DeX/orgtree/pkg/composables"
)

func logWithFields(ctx context.Context, level logrus.Level, msg string, fields logrus.Fields) {
	logger, ok := composables.UseLogger(ctx)
	if !ok {
		return
	}
	if requestID := composables.UseRequestID(ctx); requestID != "" {
		if fields == nil {
			fields = logrus.Fields{}
		}
		fields["request_id"] = requestID
	}
	logger.WithFields(fields).Log(level, msg)
}

func logServiceError(ctx context.Context, op string, err error, fields logrus.Fields) {
	if err == nil {
		return
	}
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["op"] = op
	fields["error"] = err.Error()
	level := logrus.ErrorLevel
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		fields["code"] = svcErr.Code
		if svcErr.Status < 500 {
			level = logrus.InfoLevel
		}
	}
	logWithFields(ctx, level, "org operation rejected", fields)
}
