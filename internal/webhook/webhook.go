// Package webhook delivers signed submission notifications over HTTP.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/marcus/formsync/internal/models"
)

// Header names set on every delivery.
const (
	HeaderTimestamp = "X-Formsync-Timestamp"
	HeaderSignature = "X-Formsync-Signature"
)

// EventSubmissionCreated is the only event currently delivered.
const EventSubmissionCreated = "submission.created"

// Payload is the webhook POST body.
type Payload struct {
	Event        string            `json:"event"`
	FormID       string            `json:"form_id"`
	FormTitle    string            `json:"form_title"`
	SubmissionID string            `json:"submission_id"`
	SubmittedAt  string            `json:"submitted_at"`
	Data         models.FormValues `json:"data"`
}

// BuildPayload describes a stored submission of form.
func BuildPayload(form *models.Form, sub *models.Submission) Payload {
	data := sub.Data
	if data == nil {
		data = models.FormValues{}
	}
	return Payload{
		Event:        EventSubmissionCreated,
		FormID:       form.ID,
		FormTitle:    form.Title,
		SubmissionID: sub.ID,
		SubmittedAt:  sub.SubmittedAt.UTC().Format(time.RFC3339),
		Data:         data,
	}
}

// Sign returns the signature header value for body sent at unixTS.
func Sign(secret, unixTS string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unixTS))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Dispatcher posts payloads to one configured endpoint.
type Dispatcher struct {
	URL    string
	Secret string
	HTTP   *http.Client
}

// NewDispatcher returns a dispatcher for url, or nil when url is empty.
func NewDispatcher(url, secret string) *Dispatcher {
	if url == "" {
		return nil
	}
	return &Dispatcher{URL: url, Secret: secret, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// Dispatch performs a synchronous HTTP POST of payload.
// Returns nil on a 2xx status.
func (d *Dispatcher) Dispatch(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "formsync-webhook/1")

	unixTS := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(HeaderTimestamp, unixTS)
	if d.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(d.Secret, unixTS, body))
	}

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", d.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d", d.URL, resp.StatusCode)
	}
	return nil
}
