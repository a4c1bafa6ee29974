package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// StartNotificationWorker builds the notification service over sink and
// subscribes it to dispatcher. A nil sink disables notifications.
func StartNotificationWorker(dispatcher events.Dispatcher, sink notify.Sink, metrics *observability.Metrics, logger *zap.Logger) *service.NotificationService {
	if dispatcher == nil || sink == nil {
		logger.Warn("notification worker disabled")
		return nil
	}
	notificationService := service.NewNotificationService(dispatcher, sink, metrics, logger.Named("notify"))
	notificationService.RegisterHandlers()
	logger.Info("notification worker started")
	return notificationService
}
