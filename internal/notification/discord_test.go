package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhook(t *testing.T, status int, got *[]DiscordMessage) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var msg DiscordMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		*got = append(*got, msg)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNotifyRunPicksWebhook(t *testing.T) {
	var ok, failed []DiscordMessage
	d := &Discord{
		SuccessURL: webhook(t, http.StatusNoContent, &ok).URL,
		ErrorURL:   webhook(t, http.StatusOK, &failed).URL,
	}

	require.NoError(t, d.NotifyRun(context.Background(), RunSummary{RunID: "r1", Processed: 2, Duration: 90 * time.Second}))
	require.NoError(t, d.NotifyRun(context.Background(), RunSummary{RunID: "r2", Processed: 1, Failed: []string{"T32TQM"}}))

	require.Len(t, ok, 1)
	assert.Equal(t, colorGreen, ok[0].Embeds[0].Color)
	assert.Contains(t, ok[0].Embeds[0].Description, "Tiles processed: 2")
	require.Len(t, failed, 1)
	assert.Equal(t, colorRed, failed[0].Embeds[0].Color)
	assert.Contains(t, failed[0].Embeds[0].Description, "Failed: T32TQM")
}

func TestNotifyReportsBadStatus(t *testing.T) {
	var got []DiscordMessage
	d := &Discord{ErrorURL: webhook(t, http.StatusBadRequest, &got).URL}
	err := d.NotifyError(context.Background(), "boom")
	assert.ErrorContains(t, err, "status code: 400")
}

func TestDisabledWebhookIsNoop(t *testing.T) {
	d := &Discord{}
	assert.False(t, d.Enabled())
	assert.NoError(t, d.NotifyRun(context.Background(), RunSummary{Failed: []string{"x"}}))
}
