package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/talentmatch/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// maxListedTalents caps the talent lines in one Slack message.
const maxListedTalents = 10

// SlackNotifier sends recommendation alerts to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
	pause      time.Duration
}

// NewSlackNotifier returns a notifier that posts one message per job to Slack.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
		pause:      500 * time.Millisecond,
	}
}

// Notify groups events by job and sends one Block Kit message per job.
// Returns an error only if ALL messages fail. Individual failures are logged.
func (s *SlackNotifier) Notify(ctx context.Context, events []model.RecommendationEvent) error {
	groups := groupByJob(events)
	if len(groups) == 0 {
		return nil
	}

	failures := 0
	for i, g := range groups {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.pause):
			}
		}

		if err := s.sendMessage(ctx, g); err != nil {
			s.logger.Error("slack notification failed", "job_id", g[0].JobID, "error", err)
			failures++
		}
	}

	if failures == len(groups) {
		return fmt.Errorf("all %d slack notifications failed", failures)
	}
	s.logger.Info("slack notifications complete", "sent", len(groups)-failures, "failed", failures)
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.httpClient.Do(req)
}

func (s *SlackNotifier) sendMessage(ctx context.Context, events []model.RecommendationEvent) error {
	body, err := json.Marshal(buildPayload(events))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	resp, err := s.post(ctx, body)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		if secs <= 0 {
			secs = 1
		}
		s.logger.Warn("slack rate limited, retrying", "retry_after_secs", secs)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(secs) * time.Second):
		}

		resp2, err := s.post(ctx, body)
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		defer resp2.Body.Close()

		if resp2.StatusCode != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", resp2.StatusCode)
		}
		s.logger.Info("slack message sent", "job_id", events[0].JobID, "retried", true)
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	s.logger.Info("slack message sent", "job_id", events[0].JobID, "recommendations", len(events))
	return nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendTestMessage sends a dummy recommendation to verify the integration works.
func SendTestMessage(ctx context.Context, n model.Notifier) error {
	testEvent := model.RecommendationEvent{
		RecommendationID: "test-001",
		JobID:            "test-job",
		JobTitle:         "Test Notification: Integration Verified",
		TalentID:         "test-talent",
		Score:            99,
		CreatedAt:        time.Now().UTC(),
	}
	return n.Notify(ctx, []model.RecommendationEvent{testEvent})
}

// groupByJob splits events into per-job groups, keeping first-seen order.
func groupByJob(events []model.RecommendationEvent) [][]model.RecommendationEvent {
	index := make(map[string]int)
	var groups [][]model.RecommendationEvent
	for _, e := range events {
		i, ok := index[e.JobID]
		if !ok {
			i = len(groups)
			index[e.JobID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}
	return groups
}

func buildPayload(events []model.RecommendationEvent) slackPayload {
	first := events[0]
	title := first.JobTitle
	if title == "" {
		title = first.JobID
	}

	noun := "recommendations"
	if len(events) == 1 {
		noun = "recommendation"
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("🎯 %d new %s: %s", len(events), noun, title)},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Job:*\n" + first.JobID},
				{Type: "mrkdwn", Text: "*Matched:*\n" + first.CreatedAt.Format(time.RFC1123)},
			},
		},
	}

	var lines bytes.Buffer
	for i, e := range events {
		if i == maxListedTalents {
			fmt.Fprintf(&lines, "_…and %d more_", len(events)-maxListedTalents)
			break
		}
		fmt.Fprintf(&lines, "• `%s` score *%d*\n", e.TalentID, e.Score)
	}
	blocks = append(blocks,
		slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: lines.String()}},
		slackBlock{Type: "divider"},
	)

	return slackPayload{Blocks: blocks}
}
