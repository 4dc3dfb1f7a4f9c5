// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/Finatext/orgu/lib/events"
)

// eventSource and eventDetailType identify orgu's events on a shared
// bus, so consumers can filter on them without inspecting the detail
// payload.
const (
	eventSource     = "orgu-front"
	eventDetailType = "orgu.CheckRequest"
)

// busAPI is the subset of the EventBridge client relay needs, so
// tests can substitute a fake without spinning up a real AWS SDK
// client.
type busAPI interface {
	PutEvents(ctx context.Context, input *eventbridge.PutEventsInput, opts ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// BusPublisher submits the envelope as a single PutEvents entry on a
// managed event bus.
type BusPublisher struct {
	client  busAPI
	busName string
	logger  *slog.Logger
}

// NewBusPublisher creates a Publisher backed by an EventBridge client
// already configured with the ambient AWS credentials and region.
func NewBusPublisher(client *eventbridge.Client, busName string, logger *slog.Logger) *BusPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusPublisher{client: client, busName: busName, logger: logger}
}

func (publisher *BusPublisher) Publish(ctx context.Context, request *events.CheckRequest) error {
	detail, err := json.Marshal(request)
	if err != nil {
		return wrapFailure(publisher.busName, fmt.Errorf("marshaling check request: %w", err))
	}

	output, err := publisher.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				EventBusName: aws.String(publisher.busName),
				Source:       aws.String(eventSource),
				DetailType:   aws.String(eventDetailType),
				Detail:       aws.String(string(detail)),
			},
		},
	})
	if err != nil {
		return wrapFailure(publisher.busName, fmt.Errorf("PutEvents: %w", err))
	}
	if output.FailedEntryCount > 0 {
		reason := "unknown"
		if len(output.Entries) > 0 && output.Entries[0].ErrorMessage != nil {
			reason = *output.Entries[0].ErrorMessage
		}
		return wrapFailure(publisher.busName, fmt.Errorf("entry rejected: %s", reason))
	}

	eventID := ""
	if len(output.Entries) > 0 && output.Entries[0].EventId != nil {
		eventID = *output.Entries[0].EventId
	}
	publisher.logger.Debug("published check request to event bus", "bus", publisher.busName, "event_id", eventID)
	return nil
}
