// Package embeddings turns chunk text and queries into vectors.
//
// Providers:
//   - fastembed: local ONNX models through fastembed-go (cgo builds only)
//   - tei: a Text Embeddings Inference server over HTTP
//   - openai: OpenAI or any OpenAI-compatible endpoint through langchaingo
//   - hash: deterministic bag-of-words vectors for tests and offline runs
//
// NewProvider wraps every provider with otel metrics.
package embeddings
