package arangocdc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeArango serves a scripted sequence of logger-follow responses and a
// fixed logger-state response, standing in for an ArangoDB instance.
type fakeArango struct {
	mu        sync.Mutex
	stateTick string
	follows   []followResponse
	calls     int
}

type followResponse struct {
	status       int
	lastIncluded string // empty means header omitted
	body         string
}

func newFakeArango(stateTick string, follows ...followResponse) *httptest.Server {
	f := &fakeArango{stateTick: stateTick, follows: follows}
	mux := http.NewServeMux()
	mux.HandleFunc("/_db/_system/_api/replication/logger-state", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"state":{"running":true,"lastLogTick":"%s","lastUncommittedLogTick":"%s","totalEvents":0,"time":"2024-01-01T00:00:00Z"}}`,
			f.stateTick, f.stateTick)
	})
	mux.HandleFunc("/_db/_system/_api/replication/logger-follow", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		idx := f.calls
		f.calls++
		f.mu.Unlock()

		if idx >= len(f.follows) {
			w.Header().Set(lastIncludedHeader, "0")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		resp := f.follows[idx]
		if resp.lastIncluded != "" {
			w.Header().Set(lastIncludedHeader, resp.lastIncluded)
		}
		w.WriteHeader(resp.status)
		fmt.Fprint(w, resp.body)
	})
	return httptest.NewServer(mux)
}

func newTestConsumer(t *testing.T, srv *httptest.Server, opts ...Option) *Consumer {
	t.Helper()
	allOpts := append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(srv.URL, "_system", allOpts...)
}

// Scenario A — standalone insert.
func TestListen_StandaloneInsert(t *testing.T) {
	line := `{"tick":"150","type":2300,"tid":"0","cname":"users","data":{"_key":"u1","name":"Ada"}}` + "\n"
	srv := newFakeArango("100", followResponse{status: http.StatusOK, lastIncluded: "200", body: line})
	defer srv.Close()

	c := newTestConsumer(t, srv)
	require.NoError(t, c.Init(context.Background()))
	require.Equal(t, "100", c.Tick())

	var got DocumentOperation
	var gotKind EventKind
	Subscribe(c, InsertOrReplace, struct{}{}, func(_ context.Context, _ struct{}, op DocumentOperation) error {
		got = op
		gotKind = InsertOrReplace
		return nil
	})

	require.NoError(t, c.Listen(context.Background()))

	assert.Equal(t, InsertOrReplace, gotKind)
	assert.Equal(t, "users", got.Collection)
	assert.JSONEq(t, `{"_key":"u1","name":"Ada"}`, string(got.Data))
	assert.Equal(t, "200", c.Tick())
}

// Scenario B — committed transaction with two ops.
func TestListen_CommittedTransactionDispatchesInOrder(t *testing.T) {
	body := strings.Join([]string{
		`{"tick":"151","type":2200,"tid":"T1"}`,
		`{"tick":"152","type":2300,"tid":"T1","cname":"users","data":{"_key":"u2"}}`,
		`{"tick":"153","type":2302,"tid":"T1","cname":"users","data":{"_key":"u2"}}`,
		`{"tick":"154","type":2201,"tid":"T1"}`,
	}, "\n")
	srv := newFakeArango("100", followResponse{status: http.StatusOK, lastIncluded: "200", body: body})
	defer srv.Close()

	c := newTestConsumer(t, srv)
	require.NoError(t, c.Init(context.Background()))

	type call struct {
		kind EventKind
		key  string
	}
	var calls []call
	Subscribe(c, InsertOrReplace, 0, func(_ context.Context, _ int, op DocumentOperation) error {
		calls = append(calls, call{InsertOrReplace, string(op.Data)})
		return nil
	})
	Subscribe(c, Remove, 0, func(_ context.Context, _ int, op DocumentOperation) error {
		calls = append(calls, call{Remove, string(op.Data)})
		return nil
	})

	require.NoError(t, c.Listen(context.Background()))

	require.Len(t, calls, 2)
	assert.Equal(t, InsertOrReplace, calls[0].kind)
	assert.Equal(t, Remove, calls[1].kind)
}

// Scenario C — aborted transaction produces zero dispatches.
func TestListen_AbortedTransactionDispatchesNothing(t *testing.T) {
	body := strings.Join([]string{
		`{"tick":"151","type":2200,"tid":"T1"}`,
		`{"tick":"152","type":2300,"tid":"T1","cname":"users","data":{"_key":"u2"}}`,
		`{"tick":"153","type":2302,"tid":"T1","cname":"users","data":{"_key":"u2"}}`,
		`{"tick":"154","type":2202,"tid":"T1"}`,
	}, "\n")
	srv := newFakeArango("100", followResponse{status: http.StatusOK, lastIncluded: "200", body: body})
	defer srv.Close()

	c := newTestConsumer(t, srv)
	require.NoError(t, c.Init(context.Background()))

	var calls int
	Subscribe(c, InsertOrReplace, 0, func(context.Context, int, DocumentOperation) error { calls++; return nil })
	Subscribe(c, Remove, 0, func(context.Context, int, DocumentOperation) error { calls++; return nil })

	require.NoError(t, c.Listen(context.Background()))
	assert.Zero(t, calls)
}

// Scenario D — interleaved transactions dispatch in commit order.
func TestListen_InterleavedTransactionsDispatchInCommitOrder(t *testing.T) {
	body := strings.Join([]string{
		`{"tick":"1","type":2200,"tid":"A"}`,
		`{"tick":"2","type":2200,"tid":"B"}`,
		`{"tick":"3","type":2300,"tid":"A","cname":"c","data":{"x":1}}`,
		`{"tick":"4","type":2300,"tid":"B","cname":"c","data":{"y":1}}`,
		`{"tick":"5","type":2201,"tid":"B"}`,
		`{"tick":"6","type":2201,"tid":"A"}`,
	}, "\n")
	srv := newFakeArango("100", followResponse{status: http.StatusOK, lastIncluded: "200", body: body})
	defer srv.Close()

	c := newTestConsumer(t, srv)
	require.NoError(t, c.Init(context.Background()))

	var order []string
	Subscribe(c, InsertOrReplace, 0, func(_ context.Context, _ int, op DocumentOperation) error {
		order = append(order, string(op.Data))
		return nil
	})

	require.NoError(t, c.Listen(context.Background()))
	require.Equal(t, []string{`{"y":1}`, `{"x":1}`}, order)
}

// Scenario E — idle poll leaves the cursor unchanged and sleeps.
func TestListen_IdlePollDoesNotAdvanceCursor(t *testing.T) {
	srv := newFakeArango("100", followResponse{status: http.StatusNoContent, lastIncluded: "0"})
	defer srv.Close()

	idleDelay := 30 * time.Millisecond
	c := newTestConsumer(t, srv, WithIdleDelay(idleDelay))
	require.NoError(t, c.Init(context.Background()))

	var called bool
	Subscribe(c, InsertOrReplace, 0, func(context.Context, int, DocumentOperation) error { called = true; return nil })

	start := time.Now()
	require.NoError(t, c.Listen(context.Background()))
	elapsed := time.Since(start)

	assert.Equal(t, "100", c.Tick())
	assert.False(t, called)
	assert.GreaterOrEqual(t, elapsed, idleDelay)
}

// Scenario F — unknown type code mixed with a valid insert.
func TestListen_UnknownTypeCodeIsSkipped(t *testing.T) {
	body := strings.Join([]string{
		`{"tick":"149","type":9999,"tid":"0"}`,
		`{"tick":"150","type":2300,"tid":"0","cname":"users","data":{"_key":"u1"}}`,
	}, "\n")
	srv := newFakeArango("100", followResponse{status: http.StatusOK, lastIncluded: "200", body: body})
	defer srv.Close()

	c := newTestConsumer(t, srv)
	require.NoError(t, c.Init(context.Background()))

	var calls int
	Subscribe(c, InsertOrReplace, 0, func(context.Context, int, DocumentOperation) error { calls++; return nil })

	require.NoError(t, c.Listen(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestListen_APIErrorSurfacesStatusAndDoesNotAdvanceCursor(t *testing.T) {
	srv := newFakeArango("100", followResponse{status: http.StatusInternalServerError})
	defer srv.Close()

	c := newTestConsumer(t, srv)
	require.NoError(t, c.Init(context.Background()))

	err := c.Listen(context.Background())
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindAPI, apiErr.Kind())
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status())
	assert.Equal(t, "100", c.Tick())
}

func TestListen_PollInFlightTransactionSurvivesAcrossCycles(t *testing.T) {
	srv := newFakeArango("100",
		followResponse{status: http.StatusOK, lastIncluded: "150", body: `{"tick":"150","type":2200,"tid":"T1"}`},
		followResponse{status: http.StatusOK, lastIncluded: "200", body: strings.Join([]string{
			`{"tick":"160","type":2300,"tid":"T1","cname":"c","data":{"x":1}}`,
			`{"tick":"200","type":2201,"tid":"T1"}`,
		}, "\n")},
	)
	defer srv.Close()

	c := newTestConsumer(t, srv)
	require.NoError(t, c.Init(context.Background()))

	var calls int
	Subscribe(c, InsertOrReplace, 0, func(context.Context, int, DocumentOperation) error { calls++; return nil })

	require.NoError(t, c.Listen(context.Background()))
	assert.Zero(t, calls, "commit record not seen yet")

	require.NoError(t, c.Listen(context.Background()))
	assert.Equal(t, 1, calls, "commit from the second cycle flushes the transaction opened in the first")
	assert.Equal(t, "200", c.Tick())
}

func TestDefaultIdleDelayIsNonZero(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, defaultIdleDelay)
}

func TestNewAuth_SendsBasicAuthHeader(t *testing.T) {
	var gotAuthHeader string
	mux := http.NewServeMux()
	mux.HandleFunc("/_db/_system/_api/replication/logger-state", func(w http.ResponseWriter, r *http.Request) {
		gotAuthHeader = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"state":{"lastLogTick":"1"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewAuth(srv.URL, "_system", Credentials{Username: "root", Password: "s3cret"},
		WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, c.Init(context.Background()))
	assert.True(t, strings.HasPrefix(gotAuthHeader, "Basic "))
}
