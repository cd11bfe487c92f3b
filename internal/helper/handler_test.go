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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/bcem/mailverify/internal/bridge"
	"github.com/bcem/mailverify/internal/config"
	"github.com/bcem/mailverify/internal/errs"
	"github.com/bcem/mailverify/internal/helperapi"
	"github.com/bcem/mailverify/internal/models"
	"github.com/bcem/mailverify/internal/verify"
)

const (
	jwtSecret      = "super-secret-jwt-token-with-at-least-32-characters"
	publishableKey = "sb_publishable_test123"
	webhookSecret  = "whsec_c2VjcmV0LWtleS1mb3ItdGVzdHM=" // "secret-key-for-tests"
)

// fakeStore is an in-memory SubmissionStore.
type fakeStore struct {
	mu          sync.Mutex
	submissions []models.ContactFormSubmission
	replies     []models.ContactFormReply
}

func (s *fakeStore) LatestSubmissionByEmail(_ context.Context, email string, since time.Time) (*models.ContactFormSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.ContactFormSubmission
	for i := range s.submissions {
		r := s.submissions[i]
		if r.Email != email || r.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = &r
		}
	}
	return latest, nil
}

func (s *fakeStore) GetSubmission(_ context.Context, id string) (*models.ContactFormSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.submissions {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListReplies(_ context.Context, submissionID string) ([]models.ContactFormReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ContactFormReply
	for _, r := range s.replies {
		if r.SubmissionID == submissionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) LatestReply(_ context.Context, submissionID, senderType string, since time.Time) (*models.ContactFormReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.ContactFormReply
	for i := range s.replies {
		r := s.replies[i]
		if r.SubmissionID != submissionID || (senderType != "" && r.SenderType != senderType) || r.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = &r
		}
	}
	return latest, nil
}

func (s *fakeStore) DeleteSubmissionsLike(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "%")
	var kept []models.ContactFormSubmission
	var n int64
	for _, r := range s.submissions {
		if strings.HasPrefix(r.Email, prefix) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.submissions = kept
	return n, nil
}

func (s *fakeStore) addReply(r models.ContactFormReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, r)
}

func signedJWT(t *testing.T, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": role,
		"iss":  "supabase",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return s
}

func call(t *testing.T, h http.Handler, key string, body string) (*httptest.ResponseRecorder, helperapi.Status) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/test-helper", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var st helperapi.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("response not JSON: %q", rec.Body.String())
	}
	return rec, st
}

func newTestHandler(store *fakeStore, inbound InboundSender) *Handler {
	return NewHandler(store, NewKeyVerifier(jwtSecret, publishableKey), inbound)
}

func TestKeyVerification(t *testing.T) {
	h := newTestHandler(&fakeStore{}, nil)
	body := `{"action":"getSubmission","email":"nobody@example.com"}`

	otherSecret := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "anon"})
	forged, _ := otherSecret.SignedString([]byte("not-the-project-secret-not-the-project"))

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{name: "missing key", key: "", wantStatus: http.StatusUnauthorized},
		{name: "garbage", key: "nope", wantStatus: http.StatusUnauthorized},
		{name: "forged jwt", key: forged, wantStatus: http.StatusUnauthorized},
		{name: "jwt with disallowed role", key: signedJWT(t, "authenticated"), wantStatus: http.StatusUnauthorized},
		{name: "anon jwt", key: signedJWT(t, "anon"), wantStatus: http.StatusOK},
		{name: "publishable key", key: publishableKey, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := call(t, h, tt.key, body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestApikeyHeaderAccepted(t *testing.T) {
	h := newTestHandler(&fakeStore{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"getSubmission","email":"x@example.com"}`))
	req.Header.Set("apikey", publishableKey)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestBadRequests(t *testing.T) {
	h := newTestHandler(&fakeStore{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{{{`},
		{name: "missing action", body: `{}`},
		{name: "unknown action", body: `{"action":"dropDatabase"}`},
		{name: "wait without email", body: `{"action":"waitForSubmission"}`},
		{name: "reply without id", body: `{"action":"waitForReply"}`},
		{name: "bad sender type", body: `{"action":"waitForReply","submissionId":"s","senderType":"bot"}`},
		{name: "wildcard-only cleanup", body: `{"action":"cleanup","emailPattern":"%"}`},
		{name: "simulate without recipient", body: `{"action":"simulateInboundEmail","from":"a@example.com"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, st := call(t, h, publishableKey, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if st.Success || st.Kind != helperapi.KindInvalid || st.Error == "" {
				t.Errorf("unexpected status body: %+v", st)
			}
		})
	}
}

func TestWaitForSubmission(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{submissions: []models.ContactFormSubmission{
		{ID: "s-1", Email: "test-1@example.com", Subject: "Hi", Status: models.StatusNew, CreatedAt: created},
	}}
	h := newTestHandler(store, nil)

	t.Run("found", func(t *testing.T) {
		rec, _ := call(t, h, publishableKey, `{"action":"waitForSubmission","email":"test-1@example.com","timeoutMs":1000,"pollIntervalMs":10}`)
		var resp helperapi.SubmissionResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if !resp.Success || resp.Submission == nil || resp.Submission.ID != "s-1" {
			t.Fatalf("unexpected response: %s", rec.Body.String())
		}
	})

	t.Run("stale row times out", func(t *testing.T) {
		rec, st := call(t, h, publishableKey, `{"action":"waitForSubmission","email":"test-1@example.com",
			"timeoutMs":50,"pollIntervalMs":10,"since":"2026-03-01T12:00:01Z"}`)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if st.Success || st.Kind != helperapi.KindTimeout {
			t.Errorf("unexpected status body: %+v", st)
		}
	})
}

func TestGetSubmission(t *testing.T) {
	store := &fakeStore{
		submissions: []models.ContactFormSubmission{{ID: "s-1", Email: "a@example.com"}},
		replies:     []models.ContactFormReply{{ID: "r-1", SubmissionID: "s-1", SenderType: models.SenderAdmin}},
	}
	h := newTestHandler(store, nil)

	rec, _ := call(t, h, publishableKey, `{"action":"getSubmission","submissionId":"s-1"}`)
	var resp helperapi.SubmissionResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || len(resp.Replies) != 1 {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}

	_, st := call(t, h, publishableKey, `{"action":"getSubmission","email":"missing@example.com"}`)
	if st.Success || st.Kind != helperapi.KindNotFound {
		t.Errorf("unexpected status body: %+v", st)
	}
}

func TestCleanupAction(t *testing.T) {
	store := &fakeStore{submissions: []models.ContactFormSubmission{
		{ID: "s-1", Email: "test-run1-a@example.com"},
		{ID: "s-2", Email: "test-run1-b@example.com"},
		{ID: "s-3", Email: "real@example.com"},
	}}
	h := newTestHandler(store, nil)

	rec, _ := call(t, h, publishableKey, `{"action":"cleanup","emailPattern":"test-run1-%"}`)
	var resp helperapi.CleanupResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || resp.Deleted != 2 {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
	if len(store.submissions) != 1 || store.submissions[0].ID != "s-3" {
		t.Errorf("remaining rows = %+v", store.submissions)
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	now := time.Unix(1767000000, 0)
	body := []byte(`{"type":"email.received"}`)

	sig, err := Sign(webhookSecret, "msg_1", now, body)
	if err != nil {
		t.Fatal(err)
	}
	header := http.Header{}
	header.Set(HeaderID, "msg_1")
	header.Set(HeaderTimestamp, "1767000000")
	header.Set(HeaderSignature, "v1,bogus "+sig)

	if err := VerifySignature(webhookSecret, header, body, 5*time.Minute, now); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
	if err := VerifySignature(webhookSecret, header, []byte(`{"type":"other"}`), 5*time.Minute, now); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered body: got %v, want ErrInvalidSignature", err)
	}
	if err := VerifySignature(webhookSecret, header, body, 5*time.Minute, now.Add(time.Hour)); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("stale timestamp: got %v, want ErrInvalidSignature", err)
	}
	if err := VerifySignature("whsec_b3RoZXI=", header, body, 5*time.Minute, now); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("wrong secret: got %v, want ErrInvalidSignature", err)
	}
	if err := VerifySignature("whsec_", header, body, 5*time.Minute, now); err == nil {
		t.Error("empty secret accepted")
	}
}

// TestSignatureWireFormat pins the signed content to
// base64(HMAC-SHA256(key, "<id>.<unix>.<body>")) so receivers that verify
// independently accept simulated deliveries.
func TestSignatureWireFormat(t *testing.T) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(webhookSecret, "whsec_"))
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Unix(1767000000, 0)
	body := []byte(`{"type":"email.received","data":{"from":"a@example.com"}}`)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("msg_2.1767000000."))
	mac.Write(body)
	want := "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	got, err := Sign(webhookSecret, "msg_2", ts, body)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Sign = %q, want %q", got, want)
	}
}

func TestForwarderSignsDelivery(t *testing.T) {
	var got InboundEvent
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := VerifySignature(webhookSecret, r.Header, body, time.Minute, time.Now()); err != nil {
			t.Errorf("receiver rejected signature: %v", err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	f, err := NewForwarder(receiver.URL, webhookSecret, receiver.Client())
	if err != nil {
		t.Fatal(err)
	}
	id, err := f.Forward(context.Background(), InboundEmail{From: "a@example.com", To: "contact@app.test", Subject: "Re: S", Text: "thanks"})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if got.Type != EventEmailReceived || got.Data.EmailID != id || got.Data.Text != "thanks" {
		t.Errorf("unexpected event: %+v", got)
	}
	if len(got.Data.To) != 1 || got.Data.To[0] != "contact@app.test" {
		t.Errorf("to = %v", got.Data.To)
	}
}

func TestForwarderRejected(t *testing.T) {
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad signature"))
	}))
	defer receiver.Close()

	f, _ := NewForwarder(receiver.URL, webhookSecret, receiver.Client())
	if _, err := f.Forward(context.Background(), InboundEmail{From: "a@example.com", To: "b@example.com"}); err == nil {
		t.Fatal("expected error for rejected delivery")
	}
}

// TestInboundReplyScenario drives the bridge client against the helper: a
// submission is found, a simulated inbound reply is delivered to a fake
// application webhook that records a user reply, and waitForReply sees it.
func TestInboundReplyScenario(t *testing.T) {
	store := &fakeStore{submissions: []models.ContactFormSubmission{
		{ID: "s-1", Email: "test-run9@example.com", Subject: "S", Status: models.StatusNew, CreatedAt: time.Now()},
	}}

	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := VerifySignature(webhookSecret, r.Header, body, time.Minute, time.Now()); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var ev InboundEvent
		json.Unmarshal(body, &ev)
		sub, _ := store.LatestSubmissionByEmail(r.Context(), ev.Data.From, time.Time{})
		if sub == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		store.addReply(models.ContactFormReply{
			ID: "r-" + ev.Data.EmailID, SubmissionID: sub.ID, SenderType: models.SenderUser,
			SenderEmail: ev.Data.From, Message: ev.Data.Text, CreatedAt: time.Now(),
		})
		w.WriteHeader(http.StatusOK)
	}))
	defer app.Close()

	fwd, err := NewForwarder(app.URL, webhookSecret, app.Client())
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	mux.Handle("/functions/v1/test-helper", newTestHandler(store, fwd))
	helperSrv := httptest.NewServer(mux)
	defer helperSrv.Close()

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, helperSrv.Client())
	client, err := bridge.NewClient(ctx, config.SupabaseConfig{URL: helperSrv.URL, PublishableKey: publishableKey})
	if err != nil {
		t.Fatal(err)
	}

	sub, err := client.WaitForSubmission(ctx, "test-run9@example.com", bridge.WithTimeout(time.Second), bridge.WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("wait for submission: %v", err)
	}

	_, err = client.WaitForReply(ctx, sub.ID, bridge.WithSenderType(models.SenderUser),
		bridge.WithTimeout(50*time.Millisecond), bridge.WithPollInterval(10*time.Millisecond))
	var timeoutErr *errs.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected timeout before any reply, got %v", err)
	}

	if _, err := client.SimulateInboundEmail(ctx, bridge.InboundEmail{
		From: sub.Email, To: "contact@app.test", Subject: "Re: S", Text: "thanks",
	}); err != nil {
		t.Fatalf("simulate inbound: %v", err)
	}

	reply, err := client.WaitForReply(ctx, sub.ID, bridge.WithSenderType(models.SenderUser),
		bridge.WithTimeout(time.Second), bridge.WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("wait for reply: %v", err)
	}
	if err := verify.VerifyReply(reply, verify.ReplyExpectations{SenderType: models.SenderUser, MessageContains: "thanks"}); err != nil {
		t.Error(err)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(&fakeStore{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestMiddleware(t *testing.T) {
	v := NewKeyVerifier(jwtSecret, publishableKey)
	reached := false
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/functions/v1/cleanup-test-data-unified", nil))
	if rec.Code != http.StatusUnauthorized || reached {
		t.Fatalf("unauthenticated call: status %d, reached %v", rec.Code, reached)
	}

	req := httptest.NewRequest(http.MethodPost, "/functions/v1/cleanup-test-data-unified", nil)
	req.Header.Set("Authorization", "Bearer "+signedJWT(t, "service_role"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !reached {
		t.Fatalf("authenticated call: status %d, reached %v", rec.Code, reached)
	}
}
