/*
Package observability turns engine lifecycle hooks into Prometheus metrics and
structured log lines.

Both adapters produce a domain.LifecycleHooks value; combine them with Merge and
pass the result to the engine and the finalizer.
*/
package observability
