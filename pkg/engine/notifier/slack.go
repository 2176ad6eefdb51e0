package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/DrSkyle/faultline/pkg/engine/history"
	"github.com/DrSkyle/faultline/pkg/engine/spof"
)

// maxListed bounds the change lines rendered in one message.
const maxListed = 10

// SlackClient handles Slack notifications.
type SlackClient struct {
	WebhookURL string
	Channel    string // Optional: Override default channel

	client *http.Client
}

// NewSlackClient initializes the Slack integration.
func NewSlackClient(webhookURL string, channel string) *SlackClient {
	return &SlackClient{
		WebhookURL: webhookURL,
		Channel:    channel,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyChanges posts the SPOF changes of one scan. Scans without changes are not posted.
func (s *SlackClient) NotifyChanges(ctx context.Context, snap spof.Snapshot, changes []spof.Change) error {
	if s.WebhookURL == "" || len(changes) == 0 {
		return nil
	}
	return s.send(ctx, s.constructPayload(snap, changes))
}

// SendTrendAlert posts the alerts raised by a trend analysis.
func (s *SlackClient) SendTrendAlert(ctx context.Context, trend history.Trend) error {
	if s.WebhookURL == "" || len(trend.Alerts) == 0 {
		return nil
	}
	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]interface{}{
					"type": "plain_text",
					"text": "📈 SPOF Trend Alert",
				},
			},
			{
				"type": "section",
				"text": map[string]interface{}{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Velocity:* %+.2f SPOFs/hour\n*Acceleration:* %+.2f/hour\n*Projected (24h):* %.0f\n\n%s",
						trend.Velocity, trend.Acceleration, trend.Projected24h, strings.Join(trend.Alerts, "\n")),
				},
			},
		},
	}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	return s.send(ctx, payload)
}

// constructPayload builds the message blocks.
func (s *SlackClient) constructPayload(snap spof.Snapshot, changes []spof.Change) map[string]interface{} {
	var added, resolved []spof.Change
	for _, c := range changes {
		if c.ChangeType == spof.ChangeNew {
			added = append(added, c)
		} else {
			resolved = append(resolved, c)
		}
	}

	statusIcon := "🟢"
	if snap.HighRiskCount > 0 {
		statusIcon = "🔴"
	} else if len(added) > 0 {
		statusIcon = "🟡"
	}

	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{
				"type": "plain_text",
				"text": fmt.Sprintf("%s Single Point of Failure Changes", statusIcon),
			},
		},
		{
			"type": "context",
			"elements": []map[string]interface{}{
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Scan:* %s | *Duration:* %s", snap.Timestamp.UTC().Format(time.RFC3339), snap.ScanDuration.Round(time.Millisecond)),
				},
			},
		},
		{
			"type": "divider",
		},
		{
			"type": "section",
			"fields": []map[string]interface{}{
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Active SPOFs:*\n%d", snap.TotalCount),
				},
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*High Risk:*\n%d", snap.HighRiskCount),
				},
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*New:*\n%d", len(added)),
				},
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Resolved:*\n%d", len(resolved)),
				},
			},
		},
	}

	if len(added) > 0 {
		blocks = append(blocks, listSection("🚨 *New SPOFs*", added))
	}
	if len(resolved) > 0 {
		blocks = append(blocks, listSection("✅ *Resolved SPOFs*", resolved))
	}

	payload := map[string]interface{}{
		"blocks": blocks,
	}

	if s.Channel != "" {
		payload["channel"] = s.Channel
	}

	return payload
}

func listSection(title string, changes []spof.Change) map[string]interface{} {
	var b strings.Builder
	b.WriteString(title)
	for i, c := range changes {
		if i == maxListed {
			fmt.Fprintf(&b, "\n_…and %d more_", len(changes)-maxListed)
			break
		}
		fmt.Fprintf(&b, "\n• `%s` (%s) risk %.1f, blast radius %d", c.ResourceID, c.ResourceType, c.RiskScore, c.BlastRadius)
	}
	return map[string]interface{}{
		"type": "section",
		"text": map[string]interface{}{
			"type": "mrkdwn",
			"text": b.String(),
		},
	}
}

func (s *SlackClient) send(ctx context.Context, payload map[string]interface{}) error {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-200 status from slack: %d", resp.StatusCode)
	}

	return nil
}
