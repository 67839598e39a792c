// Package memory is the agent memory engine: it durably records short
// facts and conversational episodes about a scoped entity, retrieves the
// most relevant subset on demand via hybrid (semantic + keyword + recency)
// ranking, maintains a token-bounded rolling buffer of recent conversation
// with automatic summarization on overflow, and opportunistically extracts
// durable facts from agent turns while suppressing near-duplicates.
//
// Architecture:
//   - SearchBackend: namespace-scoped upsert/query boundary
//     (store/local for in-process, store/pgvector for production)
//   - Embedder: text-to-vector conversion
//     (embedder/mock for testing, embedder/onnx for local models)
//   - Client: remember/recall façade plus the Attach decorator
//   - ShortTermBuffer: bounded conversation window with extractive
//     summarization on overflow
//   - FactExtractor / Summarizer: pluggable heuristics, substitutable by
//     LLM-backed strategies (summarize/anthropic)
//
// All dependencies are constructor-injected; the engine holds no global
// state and performs no environment reads.
package memory
