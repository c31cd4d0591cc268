package arangocdc

import "encoding/json"

// LogType is the tagged variant over the ArangoDB replication log's
// numeric type codes. Codes outside the known set decode to
// LogTypeUnknown and are skipped by the caller without error.
type LogType uint16

const (
	LogTypeUnknown LogType = 0

	LogTypeCreateDatabase LogType = 1100
	LogTypeDropDatabase   LogType = 1101

	LogTypeCreateCollection   LogType = 2000
	LogTypeDropCollection     LogType = 2001
	LogTypeRenameCollection   LogType = 2002
	LogTypeChangeCollection   LogType = 2003
	LogTypeTruncateCollection LogType = 2004

	LogTypeCreateIndex LogType = 2100
	LogTypeDropIndex   LogType = 2101

	LogTypeCreateView LogType = 2110
	LogTypeDropView   LogType = 2111
	LogTypeChangeView LogType = 2112

	LogTypeStartTransaction  LogType = 2200
	LogTypeCommitTransaction LogType = 2201
	LogTypeAbortTransaction  LogType = 2202

	LogTypeInsertOrReplaceDocument LogType = 2300
	LogTypeRemoveDocument          LogType = 2302
)

// knownLogTypes is used by parseRecord to reject codes outside the
// documented set without maintaining a second source of truth.
var knownLogTypes = map[LogType]struct{}{
	LogTypeCreateDatabase:          {},
	LogTypeDropDatabase:            {},
	LogTypeCreateCollection:        {},
	LogTypeDropCollection:          {},
	LogTypeRenameCollection:        {},
	LogTypeChangeCollection:        {},
	LogTypeTruncateCollection:      {},
	LogTypeCreateIndex:             {},
	LogTypeDropIndex:               {},
	LogTypeCreateView:              {},
	LogTypeDropView:                {},
	LogTypeChangeView:              {},
	LogTypeStartTransaction:        {},
	LogTypeCommitTransaction:       {},
	LogTypeAbortTransaction:        {},
	LogTypeInsertOrReplaceDocument: {},
	LogTypeRemoveDocument:          {},
}

// EventKind is the dispatchable subset of LogType that subscriptions can
// register against.
type EventKind int

const (
	// InsertOrReplace covers both document inserts and replaces — the
	// server's replication log does not distinguish them.
	InsertOrReplace EventKind = iota
	Remove
)

// DocumentOperation is the payload handed to every dispatched handler:
// the collection the mutation applies to and the raw document data.
type DocumentOperation struct {
	Collection string          `json:"cname"`
	Data       json.RawMessage `json:"data"`
}

// loggerStateResponse is the body of GET .../logger-state. Only
// State.LastLogTick is consumed; the rest is kept for completeness
// because the server always sends it.
type loggerStateResponse struct {
	State struct {
		Running                bool   `json:"running"`
		LastLogTick            string `json:"lastLogTick"`
		LastUncommittedLogTick string `json:"lastUncommittedLogTick"`
		TotalEvents            uint64 `json:"totalEvents"`
		Time                   string `json:"time"`
	} `json:"state"`
}
