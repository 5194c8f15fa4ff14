// Package jobs holds the background jobs run by the queue workers.
package jobs

import (
	"context"
	"fmt"

	"github.com/shashiranjanraj/kashvi-shop/config"
	"github.com/shashiranjanraj/kashvi-shop/pkg/logger"
	"github.com/shashiranjanraj/kashvi-shop/pkg/metrics"
	"github.com/shashiranjanraj/kashvi-shop/pkg/notification"
	"github.com/shashiranjanraj/kashvi-shop/pkg/queue"
)

const LowStockAlertName = "low_stock_alert"

// LowStockAlert tells staff that a stock record fell to or below the
// configured threshold after an order or a write-off.
type LowStockAlert struct {
	ProductID   uint   `json:"product_id"`
	VariantID   *uint  `json:"variant_id,omitempty"`
	ProductName string `json:"product_name"`
	Label       string `json:"label"`
	Remaining   int    `json:"remaining"`
	Threshold   int    `json:"threshold"`
}

func (*LowStockAlert) JobName() string { return LowStockAlertName }

// Register adds every job in this package to the queue registry.
func Register() {
	queue.Register(LowStockAlertName, func() queue.Job { return &LowStockAlert{} })
}

// Handle counts and logs the alert, then notifies staff on whichever
// channels are configured. A failed delivery is returned so the queue
// retries it.
func (j *LowStockAlert) Handle(ctx context.Context) error {
	metrics.LowStockAlerts.Inc()
	logger.WithCtx(ctx).Warn("low stock",
		"product_id", j.ProductID,
		"product", j.ProductName,
		"variant", j.Label,
		"remaining", j.Remaining,
		"threshold", j.Threshold,
	)

	if len(j.Via()) == 0 {
		return nil
	}
	return notification.Send(ctx, config.LowStockAlertEmail(), j)
}

func (j *LowStockAlert) title() string {
	if j.Remaining == 0 {
		return fmt.Sprintf("Sold out: %s (%s)", j.ProductName, j.Label)
	}
	return fmt.Sprintf("Low stock: %s (%s), %d left", j.ProductName, j.Label, j.Remaining)
}

// Via lists the channels that have a destination configured.
func (j *LowStockAlert) Via() []string {
	var via []string
	if config.LowStockAlertEmail() != "" {
		via = append(via, notification.ChannelMail)
	}
	if config.SlackWebhookURL() != "" {
		via = append(via, notification.ChannelSlack)
	}
	return via
}

func (j *LowStockAlert) ToMail() notification.MailData {
	return notification.MailData{
		Subject: j.title(),
		Text: fmt.Sprintf("Product #%d %s, variant %s, has %d units left (threshold %d).",
			j.ProductID, j.ProductName, j.Label, j.Remaining, j.Threshold),
	}
}

func (j *LowStockAlert) ToSlack() notification.SlackData {
	color := "warning"
	if j.Remaining == 0 {
		color = "danger"
	}
	return notification.SlackData{
		WebhookURL: config.SlackWebhookURL(),
		Text:       j.title(),
		Attachments: []notification.SlackAttachment{{
			Color:  color,
			Title:  j.ProductName,
			Text:   fmt.Sprintf("%s: %d left", j.Label, j.Remaining),
			Footer: "kashvi-shop inventory",
		}},
	}
}
