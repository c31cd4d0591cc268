package arangocdc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxBuffer_CommitFlushesInOrder(t *testing.T) {
	b := newTxBuffer()
	b.start("T1")

	op1 := DocumentOperation{Collection: "users", Data: []byte(`{"_key":"u2"}`)}
	op2 := DocumentOperation{Collection: "users", Data: []byte(`{"_key":"u2"}`)}

	require.True(t, b.append("T1", InsertOrReplace, op1))
	require.True(t, b.append("T1", Remove, op2))

	ops, ok := b.commit("T1")
	require.True(t, ok)
	require.Len(t, ops, 2)
	assert.Equal(t, InsertOrReplace, ops[0].kind)
	assert.Equal(t, Remove, ops[1].kind)

	// Committing again is a no-op: the transaction no longer exists.
	_, ok = b.commit("T1")
	assert.False(t, ok)
}

func TestTxBuffer_AbortDiscardsOps(t *testing.T) {
	b := newTxBuffer()
	b.start("T1")
	require.True(t, b.append("T1", InsertOrReplace, DocumentOperation{Collection: "c"}))

	aborted := b.abort("T1")
	assert.True(t, aborted)

	_, ok := b.commit("T1")
	assert.False(t, ok)

	// Aborting a tid with no open transaction is a harmless no-op.
	assert.False(t, b.abort("never-started"))
}

func TestTxBuffer_AppendToUnknownTidDropsSilently(t *testing.T) {
	b := newTxBuffer()
	ok := b.append("ghost", InsertOrReplace, DocumentOperation{Collection: "c"})
	assert.False(t, ok)
}

func TestTxBuffer_RestartOverwritesPendingOps(t *testing.T) {
	b := newTxBuffer()
	b.start("T1")
	require.True(t, b.append("T1", InsertOrReplace, DocumentOperation{Collection: "c"}))

	// A defensive restart (server should not replay this) discards the
	// previously accumulated op.
	b.start("T1")
	ops, ok := b.commit("T1")
	require.True(t, ok)
	assert.Empty(t, ops)
}

func TestTxBuffer_InterleavedTransactionsCommitIndependently(t *testing.T) {
	b := newTxBuffer()
	b.start("A")
	b.start("B")
	require.True(t, b.append("A", InsertOrReplace, DocumentOperation{Collection: "c", Data: []byte(`{"x":1}`)}))
	require.True(t, b.append("B", InsertOrReplace, DocumentOperation{Collection: "c", Data: []byte(`{"y":1}`)}))

	opsB, ok := b.commit("B")
	require.True(t, ok)
	require.Len(t, opsB, 1)
	assert.JSONEq(t, `{"y":1}`, string(opsB[0].op.Data))

	opsA, ok := b.commit("A")
	require.True(t, ok)
	require.Len(t, opsA, 1)
	assert.JSONEq(t, `{"x":1}`, string(opsA[0].op.Data))
}
