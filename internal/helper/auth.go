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
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for a missing or unrecognised key.
var ErrUnauthorized = errors.New("invalid api key")

// Roles accepted in a legacy JWT-format project key.
var allowedRoles = map[string]bool{"anon": true, "service_role": true}

// KeyVerifier accepts the project's public keys: HS256 JWTs signed with the
// project secret and carrying an allowed role, or an exact configured
// non-JWT publishable key.
type KeyVerifier struct {
	secret []byte
	keys   []string
}

// NewKeyVerifier creates a verifier. An empty jwtSecret disables JWT keys.
func NewKeyVerifier(jwtSecret string, publishableKeys ...string) *KeyVerifier {
	v := &KeyVerifier{}
	if jwtSecret != "" {
		v.secret = []byte(jwtSecret)
	}
	for _, k := range publishableKeys {
		if k != "" {
			v.keys = append(v.keys, k)
		}
	}
	return v
}

// Verify checks one key.
func (v *KeyVerifier) Verify(key string) error {
	if key == "" {
		return ErrUnauthorized
	}
	for _, k := range v.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return nil
		}
	}
	if v.secret == nil || strings.Count(key, ".") != 2 {
		return ErrUnauthorized
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(key, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	role, _ := claims["role"].(string)
	if !allowedRoles[role] {
		return fmt.Errorf("%w: role %q not allowed", ErrUnauthorized, role)
	}
	return nil
}

// requestKey extracts the caller's key from the Authorization bearer or the
// apikey header.
func requestKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("apikey"))
}

// Middleware rejects requests without a valid key with 401 before they
// reach next. Preflight requests pass through.
func (v *KeyVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if err := v.Verify(requestKey(r)); err != nil {
			slog.Warn("request rejected", "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": ErrUnauthorized.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}
