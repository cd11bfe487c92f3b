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

package wait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUntil_FoundAfterRetries(t *testing.T) {
	calls := 0
	got, err := Until(context.Background(), Options{Timeout: time.Second, Interval: 5 * time.Millisecond},
		func(context.Context) (string, bool, error) {
			calls++
			if calls < 3 {
				return "", false, nil
			}
			return "ready", true, nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ready", got)
	assert.Equal(t, 3, calls)
}

func TestUntil_TimeoutIsBounded(t *testing.T) {
	timeout := 60 * time.Millisecond
	interval := 20 * time.Millisecond

	start := time.Now()
	_, err := Until(context.Background(), Options{Timeout: timeout, Interval: interval},
		func(context.Context) (int, bool, error) { return 0, false, nil })
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimedOut)
	assert.GreaterOrEqual(t, elapsed, timeout)
	// Generous slack for slow CI schedulers.
	assert.Less(t, elapsed, timeout+interval+200*time.Millisecond)
}

func TestUntil_CheckErrorStops(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Until(context.Background(), Options{Timeout: time.Second, Interval: time.Millisecond},
		func(context.Context) (int, bool, error) {
			calls++
			return 0, false, boom
		})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Until(ctx, Options{Timeout: time.Minute, Interval: time.Second},
		func(context.Context) (int, bool, error) { return 0, false, nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultTimeout, o.Timeout)
	assert.Equal(t, DefaultInterval, o.Interval)
}
