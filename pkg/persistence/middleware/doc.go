// Package middleware decorates a ports.StateStore: AES-GCM encryption of the
// stored session and masking of identifying checklist fields.
package middleware
