package notification

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dedupfs/dfm/pkg/config"
)

type webhookMessage struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	RunTime     string  `json:"run_time"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

type webhookSender struct {
	log    *logrus.Entry
	config config.NotificationsConfig

	httpClient *retryablehttp.Client
}

// NewWebhookSender posts run summaries as JSON to a configured URL.
// Transient HTTP failures are retried with backoff.
func NewWebhookSender(log *logrus.Entry, cfg config.NotificationsConfig) Sender {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	return &webhookSender{
		log:        log.WithField("sender", "webhook"),
		config:     cfg,
		httpClient: client,
	}
}

func (w *webhookSender) Name() string {
	return "webhook"
}

func (w *webhookSender) CanSend() bool {
	return w.config.WebhookURL != ""
}

func (w *webhookSender) Send(title string, description string, runTime time.Duration, fields []Field) error {
	if len(fields) == 0 && w.config.SkipEmptyRun {
		return nil
	}

	msg := webhookMessage{
		Title:       title,
		Description: description,
		RunTime:     runTime.Truncate(time.Millisecond).String(),
		Fields:      fields,
		Timestamp:   time.Now().Format(time.RFC3339),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal webhook payload")
	}

	res, err := w.httpClient.Post(w.config.WebhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNoContent {
		body, readErr := io.ReadAll(res.Body)
		if readErr != nil {
			return errors.Wrap(readErr, "read webhook response body")
		}
		return errors.Errorf("unexpected webhook status: %d body: %s", res.StatusCode, string(body))
	}

	w.log.Debug("Notification successfully sent")
	return nil
}
