// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay publishes canonicalized CheckRequest envelopes from
// front to wherever the runner will actually pick them up: a managed
// event bus, an HTTP relay endpoint, or directly to a runner's own
// /run endpoint. Publication is fire-and-forget from front's
// perspective — front does not retry and maintains no durable queue
// of its own.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/Finatext/orgu/lib/events"
)

// ErrRelayFailed wraps any failure to hand a CheckRequest off to its
// destination, whatever that destination is. front maps it to a 500
// response to the platform, which will redeliver the webhook.
var ErrRelayFailed = errors.New("relay: publish failed")

// Publisher hands a CheckRequest off to exactly one destination.
type Publisher interface {
	Publish(ctx context.Context, request *events.CheckRequest) error
}

func wrapFailure(destination string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRelayFailed, destination, err)
}
