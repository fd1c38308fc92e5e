package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "casetrack/0.1.0"

type ntfyService struct {
	endpoint string
	client   *http.Client
}

// NewNtfyService posts notifications to an ntfy topic URL.
func NewNtfyService(topic string, timeout time.Duration) Service {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return noopService{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{endpoint: topic, client: &http.Client{Timeout: timeout}}
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	data := render(event, payload, time.Now())
	message := data.Message
	if data.Target != "" {
		message = fmt.Sprintf("%s\n%s", message, data.Target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.Title != "" {
		req.Header.Set("Title", data.Title)
	}
	if len(data.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.Tags, ","))
	}
	if data.Priority != "" && data.Priority != "default" {
		req.Header.Set("Priority", data.Priority)
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
