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

package mailtrap

import (
	"context"
	"fmt"
	"net/textproto"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// FetchHeaders downloads the raw source of a message and returns its
// top-level headers keyed by canonical name. Repeated headers keep their
// first value.
func (c *Client) FetchHeaders(ctx context.Context, id int64) (map[string]string, error) {
	path := fmt.Sprintf("/messages/%d/body.eml", id)
	resp, err := c.fetch(ctx, path, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	entity, err := message.Read(resp.Body)
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	headers := make(map[string]string)
	fields := entity.Header.Fields()
	for fields.Next() {
		key := textproto.CanonicalMIMEHeaderKey(fields.Key())
		if _, seen := headers[key]; seen {
			continue
		}
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		headers[key] = value
	}
	return headers, nil
}
