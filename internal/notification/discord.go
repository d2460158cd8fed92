package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/regen-network/open-science/internal/properties"
)

const (
	colorRed   = 16711680
	colorGreen = 65280
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// RunSummary is what a finished batch reports.
type RunSummary struct {
	RunID     string
	Processed int
	Failed    []string
	Skipped   []string
	Mosaics   int
	Duration  time.Duration
}

func (s RunSummary) OK() bool {
	return len(s.Failed) == 0
}

func (s RunSummary) describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished in %s.\n", s.RunID, s.Duration.Round(time.Second))
	fmt.Fprintf(&b, "Tiles processed: %d", s.Processed)
	if s.Mosaics > 0 {
		fmt.Fprintf(&b, "\nMosaics built: %d", s.Mosaics)
	}
	if len(s.Skipped) > 0 {
		fmt.Fprintf(&b, "\nSkipped (no input directory): %s", strings.Join(s.Skipped, ", "))
	}
	if len(s.Failed) > 0 {
		fmt.Fprintf(&b, "\nFailed: %s", strings.Join(s.Failed, ", "))
	}
	return b.String()
}

// Discord posts run summaries to the success or error webhook. An empty
// webhook URL disables that kind of notification.
type Discord struct {
	SuccessURL string
	ErrorURL   string
	Client     *http.Client
}

func NewDiscordFromProperties() *Discord {
	return &Discord{
		SuccessURL: properties.DiscordSuccessNotificationUrl(),
		ErrorURL:   properties.DiscordErrorNotificationUrl(),
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *Discord) Enabled() bool {
	return d.SuccessURL != "" || d.ErrorURL != ""
}

func (d *Discord) NotifyRun(ctx context.Context, s RunSummary) error {
	if s.OK() {
		return d.send(ctx, d.SuccessURL, DiscordEmbed{
			Title:       "✅ ARD run finished",
			Description: s.describe(),
			Color:       colorGreen,
		})
	}
	return d.send(ctx, d.ErrorURL, DiscordEmbed{
		Title:       "🚨 ARD run finished with errors",
		Description: s.describe(),
		Color:       colorRed,
	})
}

func (d *Discord) NotifyError(ctx context.Context, errorMessage string) error {
	return d.send(ctx, d.ErrorURL, DiscordEmbed{
		Title:       "🚨 Error Notification",
		Description: fmt.Sprintf("An error occurred: %s", errorMessage),
		Color:       colorRed,
	})
}

func (d *Discord) send(ctx context.Context, url string, embed DiscordEmbed) error {
	if url == "" {
		return nil
	}
	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}
	return nil
}
