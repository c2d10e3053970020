// Package mcp exposes the tutor as Model Context Protocol tools and resources,
// over stdio or SSE.
package mcp
