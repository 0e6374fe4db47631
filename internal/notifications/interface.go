package notifications

import (
	"context"

	"github.com/brandradar/brandradar/internal/models"
)

// Notifier delivers the alerts raised by a monitoring run
type Notifier interface {
	IsEnabled() bool
	SendRunReport(ctx context.Context, summary *models.RunSummary) error
}
