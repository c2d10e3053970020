/*
Package ports defines the driven ports (interfaces) for the tutoring engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various model backends, storage backends and lock providers.

# Key Interfaces

  - Gateway: synchronous text completion (OpenAI-compatible APIs, Vertex AI endpoints).
  - StateStore: persists session State when the boundary keeps sessions server-side.
  - ArtifactStore: persists the report and virtual patient of finished sessions.
  - Claimer: grants a key once, backing exactly-once artifact generation.
  - DistributedLocker: serializes turns on one session across replicas.
*/
package ports
