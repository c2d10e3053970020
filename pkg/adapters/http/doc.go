// Package http exposes the tutor over HTTP.
//
// POST /chat runs one turn on a state the client sends back each time, so the
// server keeps nothing. POST /sessions and friends hold the state server-side.
// GET /events streams state diffs as server-sent events. Requests are checked
// against the embedded OpenAPI document before reaching a handler.
package http
