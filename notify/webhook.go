package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// WebhookHandler POSTs the notification content as JSON to a configured
// URL, the wire-level equivalent of the original's HTTP notification
// handler.
type WebhookHandler struct {
	name   string
	url    string
	client *http.Client
}

// NewWebhookHandler returns a WebhookHandler that posts to url.
func NewWebhookHandler(name, url string) *WebhookHandler {
	return &WebhookHandler{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookHandler) Name() string { return w.name }

func (w *WebhookHandler) Notify(content interface{}) error {
	body, err := json.Marshal(content)
	if err != nil {
		return errors.Wrap(err, "encoding webhook payload")
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "posting to webhook %q", w.url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Errorf("webhook %q returned status %d", w.url, resp.StatusCode)
	}
	return nil
}
