// Package file provides filesystem-backed session and artifact stores.
package file
