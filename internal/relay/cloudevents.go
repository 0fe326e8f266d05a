package relay

import (
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/mr1hm/disaster-sentinel/internal/models"
)

const eventSource = "disaster-sentinel"

type eventSender interface {
	Send(ctx context.Context, event cloudevents.Event) cloudevents.Result
}

// CloudEventsSink POSTs each alert payload as a structured CloudEvent.
type CloudEventsSink struct {
	client   eventSender
	endpoint string
}

func NewCloudEventsSink(endpoint string) (*CloudEventsSink, error) {
	c, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("error creating cloudevents client: %w", err)
	}
	return &CloudEventsSink{client: c, endpoint: endpoint}, nil
}

func (c *CloudEventsSink) Name() string { return "cloudevents" }

func eventFor(p models.AlertPayload) (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	event.SetID(p.ID)
	event.SetSource(eventSource)
	event.SetType(EventTypeAlert)
	event.SetSubject(p.DisasterID)
	event.SetTime(p.Timestamp)
	if err := event.SetData(cloudevents.ApplicationJSON, p); err != nil {
		return event, fmt.Errorf("serialize alert payload: %w", err)
	}
	return event, nil
}

func (c *CloudEventsSink) Send(ctx context.Context, p models.AlertPayload) error {
	event, err := eventFor(p)
	if err != nil {
		return err
	}

	result := c.client.Send(cloudevents.ContextWithTarget(ctx, c.endpoint), event)
	if cloudevents.IsUndelivered(result) {
		return fmt.Errorf("failed to send event to %s: %w", c.endpoint, result)
	}
	if !cloudevents.IsACK(result) {
		return fmt.Errorf("event rejected by %s: %w", c.endpoint, result)
	}
	return nil
}

func (c *CloudEventsSink) Close() error { return nil }
