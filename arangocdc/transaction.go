package arangocdc

// bufferedOp is one operation recorded against an open transaction,
// awaiting commit or abort.
type bufferedOp struct {
	kind EventKind
	op   DocumentOperation
}

// openTransaction accumulates operations for a single tid between its
// StartTransaction and CommitTransaction/AbortTransaction records.
type openTransaction struct {
	ops []bufferedOp
}

// txBuffer is a flat map from tid to its open transaction. It has no
// concurrency of its own — the follow loop only ever touches it between
// two suspension points: parsing a record and updating the buffer.
type txBuffer struct {
	open map[string]*openTransaction
}

func newTxBuffer() *txBuffer {
	return &txBuffer{open: make(map[string]*openTransaction)}
}

// start begins (or, defensively, restarts) a transaction. The server
// should never replay a StartTransaction for a tid already in the
// buffer, but if it does, the old accumulated ops are discarded rather
// than appended to.
func (b *txBuffer) start(tid string) {
	b.open[tid] = &openTransaction{}
}

// append records an operation against tid's open transaction. It
// reports false (and drops the operation) if tid has no open
// transaction — the StartTransaction record was never observed by this
// consumer, e.g. because the stream began mid-transaction.
func (b *txBuffer) append(tid string, kind EventKind, op DocumentOperation) bool {
	tx, ok := b.open[tid]
	if !ok {
		return false
	}
	tx.ops = append(tx.ops, bufferedOp{kind: kind, op: op})
	return true
}

// commit removes tid's transaction and returns its operations in the
// order they were recorded. It reports false if tid has no open
// transaction, in which case the commit is a no-op.
func (b *txBuffer) commit(tid string) ([]bufferedOp, bool) {
	tx, ok := b.open[tid]
	if !ok {
		return nil, false
	}
	delete(b.open, tid)
	return tx.ops, true
}

// abort discards tid's transaction, if any, without dispatching any of
// its buffered operations. It reports whether a transaction was present.
func (b *txBuffer) abort(tid string) bool {
	_, ok := b.open[tid]
	delete(b.open, tid)
	return ok
}
