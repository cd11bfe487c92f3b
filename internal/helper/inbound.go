// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package helper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/bcem/mailverify/internal/metrics"
)

// Signature header names used by the inbound email provider.
const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

// EventEmailReceived is the event type delivered for an inbound message.
const EventEmailReceived = "email.received"

// ErrInvalidSignature is returned by VerifySignature.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// InboundEmail is a synthetic inbound message.
type InboundEmail struct {
	From    string
	To      string
	Subject string
	Text    string
}

// InboundEvent is the webhook body the application's inbound processor
// receives from the email provider.
type InboundEvent struct {
	Type      string      `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
	Data      InboundData `json:"data"`
}

// InboundData carries the received message.
type InboundData struct {
	EmailID   string    `json:"email_id"`
	MessageID string    `json:"message_id"`
	From      string    `json:"from"`
	To        []string  `json:"to"`
	Subject   string    `json:"subject"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Forwarder signs inbound events with the webhook secret and delivers them
// to the application's inbound webhook.
type Forwarder struct {
	httpClient *http.Client
	url        string
	webhook    *svix.Webhook
	now        func() time.Time
}

// NewForwarder creates a forwarder. secret is in whsec_<base64> form.
func NewForwarder(url, secret string, httpClient *http.Client) (*Forwarder, error) {
	wh, err := newWebhook(secret)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Forwarder{httpClient: httpClient, url: url, webhook: wh, now: time.Now}, nil
}

// Forward delivers msg as a signed email.received event and returns the
// synthetic email id.
func (f *Forwarder) Forward(ctx context.Context, msg InboundEmail) (string, error) {
	now := f.now().UTC()
	emailID := uuid.NewString()
	event := InboundEvent{
		Type:      EventEmailReceived,
		CreatedAt: now,
		Data: InboundData{
			EmailID:   emailID,
			MessageID: fmt.Sprintf("<%s@simulated.mailverify>", emailID),
			From:      msg.From,
			To:        []string{msg.To},
			Subject:   msg.Subject,
			Text:      msg.Text,
			CreatedAt: now,
		},
	}
	body, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal inbound event: %w", err)
	}

	msgID := "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	sig, err := f.webhook.Sign(msgID, now, body)
	if err != nil {
		return "", fmt.Errorf("sign inbound event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build inbound request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderID, msgID)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(HeaderSignature, sig)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		metrics.InboundForwarded.WithLabelValues("error").Inc()
		return "", fmt.Errorf("deliver inbound event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.InboundForwarded.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("inbound webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	metrics.InboundForwarded.WithLabelValues("ok").Inc()
	slog.Info("inbound event delivered", "email_id", emailID, "from", msg.From, "to", msg.To)
	return emailID, nil
}

// Sign returns the v1 signature header value for one delivery.
func Sign(secret, msgID string, ts time.Time, body []byte) (string, error) {
	wh, err := newWebhook(secret)
	if err != nil {
		return "", err
	}
	return wh.Sign(msgID, ts, body)
}

// VerifySignature checks the signature headers of a delivery against
// secret. Deliveries whose timestamp is further than tolerance from now are
// rejected.
func VerifySignature(secret string, header http.Header, body []byte, tolerance time.Duration, now time.Time) error {
	wh, err := newWebhook(secret)
	if err != nil {
		return err
	}

	msgID := header.Get(HeaderID)
	tsRaw := header.Get(HeaderTimestamp)
	sigs := header.Get(HeaderSignature)
	if msgID == "" || tsRaw == "" || sigs == "" {
		return fmt.Errorf("%w: missing headers", ErrInvalidSignature)
	}

	sec, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	if d := now.Sub(time.Unix(sec, 0)); d > tolerance || d < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	if err := wh.VerifyIgnoringTimestamp(body, header); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// newWebhook accepts a whsec_<base64> secret.
func newWebhook(secret string) (*svix.Webhook, error) {
	if strings.TrimPrefix(secret, "whsec_") == "" {
		return nil, errors.New("webhook secret is empty")
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("decode webhook secret: %w", err)
	}
	return wh, nil
}
