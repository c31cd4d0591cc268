// Package outbox provides a ready-made arangocdc handler: every
// dispatched DocumentOperation is re-encoded into a stable envelope and
// republished onto a JetStream subject, so other services can subscribe
// to the CDC stream instead of each embedding an arangocdc.Consumer of
// their own.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/arc-self/arangodb-cdc/arangocdc"
	"github.com/arc-self/arangodb-cdc/internal/natsclient"
)

// Row is the JSON envelope published to NATS for every dispatched
// document operation.
type Row struct {
	Collection string          `json:"collection"`
	Key        string          `json:"key,omitempty"`
	Kind       string          `json:"kind"`
	Data       json.RawMessage `json:"data"`
}

// NATSSink republishes dispatched document operations onto the
// ARANGODB_CDC stream, subject-routed as "arangodb.cdc.<collection>.<kind>".
type NATSSink struct {
	client *natsclient.Client
	logger *zap.Logger
}

// NewNATSSink wraps an already-connected NATS client.
func NewNATSSink(client *natsclient.Client, logger *zap.Logger) *NATSSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSSink{client: client, logger: logger}
}

// PublishInsertOrReplace is an arangocdc handler for InsertOrReplace
// events; register it with arangocdc.Subscribe or SubscribeTo.
func PublishInsertOrReplace(ctx context.Context, s *NATSSink, op arangocdc.DocumentOperation) error {
	return s.publish(ctx, "insert_or_replace", op)
}

// PublishRemove is an arangocdc handler for Remove events; register it
// with arangocdc.Subscribe or SubscribeTo.
func PublishRemove(ctx context.Context, s *NATSSink, op arangocdc.DocumentOperation) error {
	return s.publish(ctx, "remove", op)
}

func (s *NATSSink) publish(_ context.Context, kind string, op arangocdc.DocumentOperation) error {
	row := Row{
		Collection: op.Collection,
		Key:        extractKey(op.Data),
		Kind:       kind,
		Data:       op.Data,
	}

	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("outbox: marshal row: %w", err)
	}

	subject := fmt.Sprintf("arangodb.cdc.%s.%s", op.Collection, kind)
	if _, err := s.client.JS.Publish(subject, payload); err != nil {
		s.logger.Error("outbox: NATS publish failed",
			zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("outbox: publish: %w", err)
	}

	s.logger.Debug("outbox: event published",
		zap.String("subject", subject), zap.Int("bytes", len(payload)))
	return nil
}

// extractKey best-effort pulls "_key" out of a document's raw JSON data
// without needing a schema.
func extractKey(data json.RawMessage) string {
	var probe struct {
		Key string `json:"_key"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.Key
}
