// Package vertex provides model gateways on Google Cloud Vertex AI: a deployed
// endpoint reached through predict (MedGemma) and Gemini through generateContent.
package vertex
