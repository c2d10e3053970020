// Package redis provides Redis-backed session storage, distributed locking,
// finalization claims and artifact storage, for running several tutor replicas
// against shared state.
package redis
