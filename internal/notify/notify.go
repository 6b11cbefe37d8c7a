package notify

import (
	"context"

	"github.com/longbark/sitewatch/internal/domain"
)

// Notifier delivers one alert to one channel. Delivery is best-effort: a
// false return means the attempt failed and will not be retried. Channels
// log their own failures.
type Notifier interface {
	Name() string
	Send(ctx context.Context, a *domain.Alert) bool
}
