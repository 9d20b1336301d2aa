package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/domain"
)

// DiscordService posts domain events to a Discord webhook
type DiscordService struct {
	log        zerolog.Logger
	webhookURL string
	httpClient *http.Client
}

// NewDiscordService creates a new Discord notification service
func NewDiscordService(log zerolog.Logger, webhookURL string) *DiscordService {
	return &DiscordService{
		log:        log.With().Str("module", "notification").Str("type", "discord").Logger(),
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendEvent sends one domain event as an embed
func (s *DiscordService) SendEvent(ctx context.Context, event domain.Event) error {
	if s.webhookURL == "" {
		return nil // No webhook configured, skip silently
	}

	embed, ok := embedFor(event)
	if !ok {
		return nil
	}

	payload := discordWebhook{
		Embeds: []discordEmbed{embed},
	}

	return s.sendWebhook(ctx, payload)
}

func embedFor(event domain.Event) (discordEmbed, bool) {
	switch e := event.(type) {
	case domain.StructureStateChanged:
		title := "Structure State Changed"
		color := 0xffa500 // Orange
		if !e.Exists {
			title = "Structure Removed"
			color = 0xff0000 // Red
		}
		fields := []discordField{
			{Name: "Structure", Value: fmt.Sprintf("%d", e.StructureID), Inline: true},
			{Name: "State", Value: e.State, Inline: true},
		}
		if !e.FuelExpires.IsZero() {
			fields = append(fields, discordField{Name: "Fuel Expires", Value: e.FuelExpires.Format(time.RFC3339), Inline: true})
		}
		return discordEmbed{
			Title:     title,
			Color:     color,
			Timestamp: e.TS.Format(time.RFC3339),
			Fields:    fields,
		}, true

	case domain.MoonExtractionScheduled:
		return discordEmbed{
			Title:     "Moon Extraction Scheduled",
			Color:     0x0000ff, // Blue
			Timestamp: e.TS.Format(time.RFC3339),
			Fields: []discordField{
				{Name: "Structure", Value: fmt.Sprintf("%d", e.StructureID), Inline: true},
				{Name: "Moon", Value: fmt.Sprintf("%d", e.MoonID), Inline: true},
				{Name: "Chunk Arrival", Value: e.ChunkArrivalTime.Format(time.RFC3339), Inline: false},
			},
		}, true

	case domain.MoonExtractionCompleted:
		return discordEmbed{
			Title:     "Moon Extraction Completed",
			Color:     0x00ff00, // Green
			Timestamp: e.TS.Format(time.RFC3339),
			Fields: []discordField{
				{Name: "Structure", Value: fmt.Sprintf("%d", e.StructureID), Inline: true},
				{Name: "Moon", Value: fmt.Sprintf("%d", e.MoonID), Inline: true},
				{Name: "Belt Decays", Value: e.BeltDecayTime.Format(time.RFC3339), Inline: false},
			},
		}, true
	}

	return discordEmbed{}, false
}

// sendWebhook sends a webhook payload to Discord
func (s *DiscordService) sendWebhook(ctx context.Context, payload discordWebhook) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.Wrap(err, "failed to create webhook request")
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send webhook request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	s.log.Debug().Msg("Discord notification sent successfully")
	return nil
}

// discordWebhook represents a Discord webhook payload
type discordWebhook struct {
	Embeds []discordEmbed `json:"embeds"`
}

// discordEmbed represents a Discord embed
type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Timestamp string         `json:"timestamp,omitempty"`
	Fields    []discordField `json:"fields,omitempty"`
}

// discordField represents a Discord embed field
type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}
