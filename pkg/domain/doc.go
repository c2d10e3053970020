/*
Package domain contains the core domain models of the tutoring engine.

It defines the fixed clinical-reasoning phase sequence, the session history messages
and the serializable session State exchanged with callers on every turn. This package
is kept pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Phase: closed enumeration of the eight sequence steps (summary through outputs).
  - Message: one append-only history entry (role, content, kind).
  - State: checklist, current phase, history and the two terminal artifacts.
  - StateDiff: the incremental change between two states, used for streaming updates.
*/
package domain
