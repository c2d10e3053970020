// Package gcs stores session artifacts in a Google Cloud Storage bucket.
package gcs
