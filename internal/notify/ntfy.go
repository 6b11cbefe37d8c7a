package notify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/domain"
)

// severity and alert-type emoji shortcodes, joined into the Tags header.
var ntfySeverityTags = map[domain.Severity][]string{
	domain.SeverityInfo:     {"information_source"},
	domain.SeverityWarning:  {"warning"},
	domain.SeverityError:    {"x"},
	domain.SeverityCritical: {"rotating_light", "x"},
}

var ntfyTypeTags = map[domain.AlertType][]string{
	domain.AlertUptime:      {"globe_with_meridians"},
	domain.AlertSSL:         {"lock"},
	domain.AlertPerformance: {"chart_with_downwards_trend"},
	domain.AlertBrokenLinks: {"broken_heart"},
	domain.AlertWordPress:   {"gear"},
	domain.AlertSEO:         {"mag"},
}

// Ntfy pushes alerts to an ntfy server, one topic per alert type with a
// shared fallback topic.
type Ntfy struct {
	ServerURL    string
	DefaultTopic string
	Topics       map[string]string
	Priority     string
	Client       *http.Client
	Log          *zap.Logger
}

func NewNtfy(log *zap.Logger, serverURL, defaultTopic string, topics map[string]string, priority string) *Ntfy {
	if defaultTopic == "" {
		return nil
	}
	return &Ntfy{
		ServerURL:    strings.TrimRight(serverURL, "/"),
		DefaultTopic: defaultTopic,
		Topics:       topics,
		Priority:     priority,
		Client:       &http.Client{Timeout: 10 * time.Second},
		Log:          log,
	}
}

func (n *Ntfy) Name() string { return "ntfy" }

func (n *Ntfy) topicFor(t domain.AlertType) string {
	if topic, ok := n.Topics[string(t)]; ok && topic != "" {
		return topic
	}
	return n.DefaultTopic
}

func (n *Ntfy) Send(ctx context.Context, a *domain.Alert) bool {
	topic := n.topicFor(a.Type)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.ServerURL+"/"+topic, strings.NewReader(a.Message))
	if err != nil {
		n.Log.Warn("ntfy_request_error", zap.Error(err))
		return false
	}
	req.Header.Set("Title", a.Title)
	req.Header.Set("Priority", n.Priority)

	tags := append([]string{}, ntfySeverityTags[a.Severity]...)
	tags = append(tags, ntfyTypeTags[a.Type]...)
	if len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}

	resp, err := n.Client.Do(req)
	if err != nil {
		n.Log.Warn("ntfy_send_error", zap.String("topic", topic), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		n.Log.Warn("ntfy_send_rejected",
			zap.String("topic", topic),
			zap.Int("status", resp.StatusCode),
		)
		return false
	}
	n.Log.Info("ntfy_sent",
		zap.String("topic", topic),
		zap.String("alert_id", string(a.ID)),
	)
	return true
}
