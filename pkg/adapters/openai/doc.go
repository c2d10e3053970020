// Package openai is a model gateway for OpenAI-compatible chat completion APIs.
package openai
