// Package arangocdc is a client-side change-data-capture consumer for a
// document database that exposes a replication log over HTTP, modelled
// on ArangoDB's /_api/replication/logger-state and logger-follow
// endpoints. It tails the log forward from a starting tick,
// reconstructs document mutations wrapped inside multi-document
// transactions, and dispatches each mutation to registered handlers.
package arangocdc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// defaultIdleDelay is the back-off applied when the server reports no
// new tick was included. Always non-zero, even when made configurable.
const defaultIdleDelay = 500 * time.Millisecond

const lastIncludedHeader = "X-Arango-Replication-Lastincluded"

// Credentials holds HTTP Basic Auth credentials for the ArangoDB
// instance.
type Credentials struct {
	Username string
	Password string
}

// Consumer owns a single cursor, transaction buffer, and subscription
// registry for one database instance. It is not safe for concurrent
// Listen calls — progress is one cycle at a time — but independent
// Consumers share nothing and may run concurrently.
type Consumer struct {
	host     string
	database string
	creds    *Credentials

	httpClient *http.Client
	logger     *zap.Logger
	metrics    Metrics
	idleDelay  time.Duration

	registry *registry
	buffer   *txBuffer

	lastTick Tick
}

// Option configures a Consumer at construction time.
type Option func(*Consumer)

// WithHTTPClient overrides the default *http.Client. Useful for
// injecting timeouts, custom transports, or a test double.
func WithHTTPClient(c *http.Client) Option {
	return func(cn *Consumer) { cn.httpClient = c }
}

// WithLogger attaches a *zap.Logger. Nil is treated as zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(cn *Consumer) {
		if l != nil {
			cn.logger = l
		}
	}
}

// WithIdleDelay overrides the back-off applied on an idle poll. A
// non-positive value is ignored and the default is kept — the idle
// delay must never be zero.
func WithIdleDelay(d time.Duration) Option {
	return func(cn *Consumer) {
		if d > 0 {
			cn.idleDelay = d
		}
	}
}

// WithMetrics attaches an optional metrics sink.
func WithMetrics(m Metrics) Option {
	return func(cn *Consumer) {
		if m != nil {
			cn.metrics = m
		}
	}
}

// New constructs an unauthenticated Consumer for the given host and
// database. host is the scheme+authority, e.g. "http://localhost:8529".
func New(host, database string, opts ...Option) *Consumer {
	return newConsumer(host, database, nil, opts)
}

// NewAuth constructs a Consumer that sends HTTP Basic Auth credentials
// on every request.
func NewAuth(host, database string, creds Credentials, opts ...Option) *Consumer {
	return newConsumer(host, database, &creds, opts)
}

func newConsumer(host, database string, creds *Credentials, opts []Option) *Consumer {
	c := &Consumer{
		host:       strings.TrimRight(host, "/"),
		database:   database,
		creds:      creds,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
		metrics:    noopMetrics{},
		idleDelay:  defaultIdleDelay,
		buffer:     newTxBuffer(),
		lastTick:   idleTick,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registry = newRegistry(c.logger)
	return c
}

// Tick returns the consumer's current cursor. It only changes between
// Listen calls, never concurrently with dispatch.
func (c *Consumer) Tick() Tick { return c.lastTick }

func (c *Consumer) baseURL() string {
	return fmt.Sprintf("%s/_db/%s", c.host, c.database)
}

func (c *Consumer) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newError(KindHTTP, err)
	}
	if c.creds != nil {
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
	}
	return req, nil
}

// Init issues a one-shot request to GET .../logger-state and seeds the
// cursor from state.lastLogTick. It must be called once before the
// first Listen call.
func (c *Consumer) Init(ctx context.Context) error {
	req, err := c.newRequest(ctx, c.baseURL()+"/_api/replication/logger-state")
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newError(KindHTTP, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newAPIError(resp.StatusCode)
	}

	var body loggerStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return newError(KindIOSerialize, err)
	}

	c.lastTick = body.State.LastLogTick
	c.logger.Info("initialized cursor from logger-state", zap.String("tick", c.lastTick))
	return nil
}

// Listen runs one follow cycle: it issues GET .../logger-follow?from=<tick>,
// advances the cursor from the response header, and — if the cursor
// advanced — feeds the response body through the line reader, record
// parser, and transaction buffer, dispatching commits and standalone
// operations to the registry.
//
// The caller is responsible for cancellation: Listen returns after one
// cycle, including the idle back-off sleep, so a caller loop can stop
// calling it at any point between cycles.
func (c *Consumer) Listen(ctx context.Context) error {
	currentTick := c.lastTick

	followURL := fmt.Sprintf("%s/_api/replication/logger-follow?from=%s",
		c.baseURL(), url.QueryEscape(currentTick))

	req, err := c.newRequest(ctx, followURL)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newError(KindHTTP, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return newAPIError(resp.StatusCode)
	}

	header := resp.Header.Get(lastIncludedHeader)
	if header == "" || header == idleTick {
		// Idle case: drain the (guaranteed empty or irrelevant) body so
		// the connection can be reused, then back off. The sleep is both
		// the admission-control mechanism against an empty stream and
		// the cancellation point for this cycle.
		_, _ = io.Copy(io.Discard, resp.Body)
		return c.idleSleep(ctx)
	}

	newTick := header

	if newTick != currentTick {
		if err := c.drainBody(ctx, resp.Body); err != nil {
			return err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	c.lastTick = newTick
	c.metrics.TickAdvanced(newTick)
	return nil
}

func (c *Consumer) idleSleep(ctx context.Context) error {
	timer := time.NewTimer(c.idleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return newError(KindIOOther, ctx.Err())
	}
}

// drainBody reads the response body line by line and feeds each record
// through the parser and transaction buffer, dispatching as it goes.
func (c *Consumer) drainBody(ctx context.Context, body io.Reader) error {
	reader := newLineReader(body)
	for {
		line, err := reader.readLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		c.processLine(ctx, line)
	}
}

// processLine parses one record and applies the transaction/dispatch
// transition table. Parse failures are logged and skipped rather than
// failing the whole cycle, trading the conservative "retry the batch"
// behavior for liveness.
func (c *Consumer) processLine(ctx context.Context, line string) {
	rec, err := parseRecord(line)
	if err != nil {
		c.logger.Warn("dropping unparseable replication record", zap.Error(err))
		return
	}

	switch rec.logType {
	case LogTypeUnknown:
		return

	case LogTypeStartTransaction:
		c.buffer.start(rec.tid)

	case LogTypeCommitTransaction:
		ops, ok := c.buffer.commit(rec.tid)
		if !ok {
			return
		}
		for _, bop := range ops {
			c.dispatch(ctx, bop.kind, bop.op)
		}
		c.metrics.TransactionCommitted(len(ops))

	case LogTypeAbortTransaction:
		if c.buffer.abort(rec.tid) {
			c.metrics.TransactionAborted()
		}

	case LogTypeInsertOrReplaceDocument, LogTypeRemoveDocument:
		kind := InsertOrReplace
		if rec.logType == LogTypeRemoveDocument {
			kind = Remove
		}
		if rec.tid == idleTick {
			c.dispatch(ctx, kind, rec.op)
			return
		}
		if !c.buffer.append(rec.tid, kind, rec.op) {
			c.logger.Debug("dropping document op for unknown transaction",
				zap.String("tid", rec.tid))
		}

	default:
		// Other known log types (schema/index/view events) are out of
		// scope for this consumer: a documented no-op.
	}
}

func (c *Consumer) dispatch(ctx context.Context, kind EventKind, op DocumentOperation) {
	c.registry.dispatch(ctx, kind, op.Collection, op)
	c.metrics.OperationDispatched(kind, op.Collection)
}
