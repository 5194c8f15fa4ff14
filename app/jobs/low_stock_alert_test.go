package jobs_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/kashvi-shop/app/jobs"
	"github.com/shashiranjanraj/kashvi-shop/config"
)

func TestLowStockAlertWithoutChannels(t *testing.T) {
	config.Set("SLACK_WEBHOOK_URL", "")
	config.Set("LOW_STOCK_ALERT_EMAIL", "")

	job := &jobs.LowStockAlert{ProductID: 7, ProductName: "USB-C Cable", Label: "Standard", Remaining: 2, Threshold: 5}

	require.NoError(t, job.Handle(context.Background()))
	assert.Empty(t, job.Via())
}

func TestLowStockAlertPostsToSlack(t *testing.T) {
	var payload struct {
		Text        string `json:"text"`
		Attachments []struct {
			Color string `json:"color"`
		} `json:"attachments"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	config.Set("SLACK_WEBHOOK_URL", srv.URL)
	t.Cleanup(func() { config.Set("SLACK_WEBHOOK_URL", "") })

	job := &jobs.LowStockAlert{ProductID: 3, ProductName: "Galaxy S24", Label: "Black - 256GB", Remaining: 0, Threshold: 5}
	require.NoError(t, job.Handle(context.Background()))

	assert.Equal(t, "Sold out: Galaxy S24 (Black - 256GB)", payload.Text)
	require.Len(t, payload.Attachments, 1)
	assert.Equal(t, "danger", payload.Attachments[0].Color)
}

func TestLowStockAlertMailFailureIsRetried(t *testing.T) {
	config.Set("LOW_STOCK_ALERT_EMAIL", "ops@example.com")
	t.Cleanup(func() { config.Set("LOW_STOCK_ALERT_EMAIL", "") })

	job := &jobs.LowStockAlert{ProductID: 3, ProductName: "Galaxy S24", Label: "Black - 256GB", Remaining: 1}
	assert.Error(t, job.Handle(context.Background()), "no SMTP credentials in tests")
}
