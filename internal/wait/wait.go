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

// Package wait implements the fixed-interval poll used by every
// "wait until it shows up" operation in the harness.
package wait

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultInterval = 2 * time.Second
)

// ErrTimedOut is returned by Until when the check never reported a match.
var ErrTimedOut = errors.New("wait: timed out")

// Options bounds a poll. Zero values fall back to the defaults.
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// Check makes one attempt. It returns found=true with the value when the
// awaited state has been reached. A non-nil error stops the poll.
type Check[T any] func(ctx context.Context) (value T, found bool, err error)

// Until runs check, sleeping Interval between attempts, while less than
// Timeout has elapsed since the call started. It returns within
// Timeout + Interval plus the duration of one check.
func Until[T any](ctx context.Context, opts Options, check Check[T]) (T, error) {
	opts = opts.withDefaults()
	start := time.Now()

	var zero T
	for time.Since(start) < opts.Timeout {
		v, found, err := check(ctx)
		if err != nil {
			return zero, err
		}
		if found {
			return v, nil
		}

		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, ErrTimedOut
}
