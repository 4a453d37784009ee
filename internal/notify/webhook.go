package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const webhookTimeout = 5 * time.Second

// WebhookSink POSTs each event as JSON to a configured URL. Delivery
// is best effort; failures are counted and otherwise ignored.
type WebhookSink struct {
	url    string
	client *http.Client
	failed func()
}

// NewWebhookSink builds a sink for the given endpoint. onFailure may
// be nil; when set it is called once per failed delivery.
func NewWebhookSink(url string, onFailure func()) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		failed: onFailure,
	}
}

func (s *WebhookSink) Emit(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		s.fail()
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		s.fail()
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.fail()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.fail()
	}
}

func (s *WebhookSink) fail() {
	if s.failed != nil {
		s.failed()
	}
}
