// Package catalog holds the fixed phase prompt templates and system personas.
//
// Templates are read-only and indexed by domain.Phase. Every template accepts the
// same two placeholders: {checklist}, the session checklist serialized with stable
// key order, and {last}, the content of the most recent history entry.
package catalog
