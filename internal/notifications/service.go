package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vdiff/internal/config"
)

const userAgent = "vdiff/0.1.0"

// Event identifies a notification kind.
type Event string

const (
	EventRunCompleted Event = "run_completed"
	EventRunFailed    Event = "run_failed"
	EventTest         Event = "test"
)

// Payload carries event fields. Known keys: runID, candidate, intervals,
// duration, report, error, stage.
type Payload map[string]any

// Service defines the notification surface used by the CLI.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: cfg.Notifications,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) render(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunCompleted:
		if !n.settings.RunCompleted {
			return message{}, false
		}
		count := payloadInt(payload, "intervals")
		if count < n.settings.MinIntervals {
			return message{}, false
		}
		candidate := payloadString(payload, "candidate")
		body := fmt.Sprintf("✅ %s: no divergence", candidate)
		tags := []string{"vdiff", "run", "clean"}
		if count > 0 {
			body = fmt.Sprintf("⚠️ %s: %d divergence interval(s)", candidate, count)
			tags = []string{"vdiff", "run", "divergent"}
		}
		if d := payloadDuration(payload, "duration"); d > 0 {
			body += fmt.Sprintf(" in %s", d.Round(time.Second))
		}
		if runID := payloadString(payload, "runID"); runID != "" {
			body += "\nRun: " + runID
		}
		if report := payloadString(payload, "report"); report != "" {
			body += "\n\n" + report
		}
		return message{title: "vdiff - Run Complete", body: body, tags: tags}, true
	case EventRunFailed:
		if !n.settings.RunFailed {
			return message{}, false
		}
		var builder strings.Builder
		builder.WriteString("❌ Run failed")
		if stage := payloadString(payload, "stage"); stage != "" {
			builder.WriteString(" during ")
			builder.WriteString(stage)
		}
		builder.WriteString(": ")
		if errText := payloadString(payload, "error"); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		if candidate := payloadString(payload, "candidate"); candidate != "" {
			builder.WriteString("\nCandidate: ")
			builder.WriteString(candidate)
		}
		return message{
			title:    "vdiff - Run Failed",
			body:     builder.String(),
			tags:     []string{"vdiff", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "vdiff - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"vdiff", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func payloadString(p Payload, key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case error:
		return strings.TrimSpace(v.Error())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func payloadInt(p Payload, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func payloadDuration(p Payload, key string) time.Duration {
	if d, ok := p[key].(time.Duration); ok {
		return d
	}
	return 0
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
