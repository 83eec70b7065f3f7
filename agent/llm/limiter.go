// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Throttled wraps a Client with a request rate limit.
//
// Description:
//
//	Throttled blocks in Complete until the limiter grants a slot, then
//	delegates to the wrapped client. Share one Throttled instance across
//	every caller that talks to the same provider so the process as a whole
//	stays under the configured request budget.
//
// Thread Safety:
//
//	Throttled is safe for concurrent use.
type Throttled struct {
	inner   Client
	limiter *rate.Limiter
}

// Compile-time interface check.
var _ Client = (*Throttled)(nil)

// NewThrottled wraps client with a requests-per-minute budget.
//
// Inputs:
//
//	client - The client to wrap. Must not be nil.
//	perMinute - Sustained request budget. Zero or negative disables
//	            throttling.
//	burst - Requests that may go out back to back. Values below 1 are
//	        raised to 1.
//
// Outputs:
//
//	*Throttled - The wrapped client.
func NewThrottled(client Client, perMinute, burst int) *Throttled {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		inner:   client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Complete implements Client. It waits for the limiter before delegating.
//
// Thread Safety: This method is safe for concurrent use.
func (t *Throttled) Complete(ctx context.Context, request *Request) (*Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return t.inner.Complete(ctx, request)
}

// Name implements Client.
func (t *Throttled) Name() string {
	return t.inner.Name()
}

// Model implements Client.
func (t *Throttled) Model() string {
	return t.inner.Model()
}
