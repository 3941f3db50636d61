// Package engine implements the tracker's session and command reconciliation.
//
// The host queues events (navigation, product and article interactions,
// profile data, action statuses) and asks for the current result. A flush
// turns the queued commands plus the session state into one tracker request,
// applies the reply, fills the metadata cache for anything not yet known and
// merges the delivered conditions and actions into the result.
//
// CONCURRENCY:
//
// One mutex guards the session state, the command queue, both ledgers, the
// result and every store write. Network calls run outside it; reply handling
// re-acquires it to apply mutations.
//
// Flushes are coalesced: while one is in flight, further callers join it and
// receive its outcome instead of sending a second request. The shared request
// is detached from the starting caller's context, so a joiner that gives up
// waiting never cancels it for the others.
//
// Within a flush the condition and action metadata fetches run concurrently;
// placeholder fetches are nested under the action fetch. The flush completes
// once both finish.
//
// PERSISTENCE:
//
// Session state and ledgers load lazily on first use and are written back
// after every state-changing step. The result is rebuilt from the store when
// it is not in memory.
//
// Errors with no caller to receive them (Done, follow-up flushes, the
// notification poller) are logged and dropped.
package engine
