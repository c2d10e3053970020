/*
Package session implements the stateful side of the tutor.

The engine itself is stateless. When the boundary keeps sessions server-side,
the Manager serializes turns per session (locally, and across replicas through
an optional distributed locker), the Service runs one turn as
lock, load, advance, save, and the Finalizer makes sure the report and virtual
patient of a session are generated and persisted exactly once.
*/
package session
