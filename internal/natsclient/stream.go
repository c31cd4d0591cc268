package natsclient

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// StreamCDCEvents is the durable stream that captures every
	// dispatched ArangoDB document operation, subject-routed by
	// collection.
	StreamCDCEvents = "ARANGODB_CDC"
	// SubjectCDCEvents captures all collection-routed CDC events, e.g.
	// "arangodb.cdc.users.insert_or_replace".
	SubjectCDCEvents = "arangodb.cdc.>"
)

var streamSubjects = []string{SubjectCDCEvents}

// ProvisionStreams idempotently ensures the ARANGODB_CDC JetStream stream
// exists with the correct subject filter. It creates the stream on first
// run and is a no-op if the stream already exists.
func (c *Client) ProvisionStreams() error {
	info, err := c.JS.StreamInfo(StreamCDCEvents)
	if err == nil {
		_ = info
		c.Log.Info("NATS stream already exists", zap.String("stream", StreamCDCEvents))
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      StreamCDCEvents,
		Subjects:  streamSubjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}

	if _, err := c.JS.AddStream(cfg); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	c.Log.Info("NATS stream provisioned",
		zap.String("stream", StreamCDCEvents),
		zap.Strings("subjects", streamSubjects),
	)
	return nil
}
