package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/domain"
)

// Slack posts alerts to an incoming-webhook URL.
type Slack struct {
	Webhook string
	Client  *http.Client
	Log     *zap.Logger
}

func NewSlack(log *zap.Logger, webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Log:     log,
	}
}

func (s *Slack) Name() string { return "slack" }

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Send(ctx context.Context, a *domain.Alert) bool {
	body, _ := json.Marshal(slackPayload{Text: "*" + a.Title + "*\n" + a.Message})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		s.Log.Warn("slack_request_error", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		s.Log.Warn("slack_send_error", zap.String("alert_id", string(a.ID)), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		s.Log.Warn("slack_send_rejected",
			zap.String("alert_id", string(a.ID)),
			zap.Int("status", resp.StatusCode),
		)
		return false
	}
	s.Log.Info("slack_sent", zap.String("alert_id", string(a.ID)))
	return true
}
