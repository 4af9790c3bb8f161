// Package notifier mirrors reservation outcomes to external sinks: a
// WeCom group-bot webhook and SMTP email. Delivery is fire-and-forget;
// a failed notification never changes a reservation result.
package notifier

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/likewindccc/seatgrab/internal/config"
	"github.com/likewindccc/seatgrab/internal/models"
)

// Notifier delivers outcome summaries.
type Notifier interface {
	Notify(ctx context.Context, outcome models.Outcome) error
	NotifyReport(ctx context.Context, report *models.RunReport) error
}

// Multi fans one notification out to several sinks. All sinks are
// attempted; errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, outcome models.Outcome) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, outcome); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) NotifyReport(ctx context.Context, report *models.RunReport) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyReport(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig assembles the enabled sinks. Returns nil when none are
// configured.
func FromConfig(cfg config.NotifyConfig, room string, logger *zap.Logger) Notifier {
	var sinks Multi
	if cfg.WeChat.Enabled {
		sinks = append(sinks, NewWeChat(cfg.WeChat, room, logger))
	}
	if cfg.Email.Enabled {
		sinks = append(sinks, NewEmail(cfg.Email, room))
	}
	if len(sinks) == 0 {
		return nil
	}
	return sinks
}
