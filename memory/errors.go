package memory

import "github.com/m-mizutani/goerr/v2"

// Error kinds surfaced by the engine. Callers inspect them with
// goerr.HasTag:
//
//	if goerr.HasTag(err, memory.TagBackendQuery) { ... }
var (
	// TagEmbedding marks failures of the embedding provider: unreachable,
	// or a malformed/empty vector.
	TagEmbedding = goerr.NewTag("embedding_failure")

	// TagBackendWrite marks failed upserts to the search backend.
	TagBackendWrite = goerr.NewTag("backend_write_failure")

	// TagBackendQuery marks failed backend queries, including either
	// sub-query of fusion-mode recall.
	TagBackendQuery = goerr.NewTag("backend_query_failure")

	// TagInvalidScope marks scopes with an empty workspace ID.
	TagInvalidScope = goerr.NewTag("invalid_scope")

	// TagValidation marks malformed inputs such as empty Remember text.
	TagValidation = goerr.NewTag("validation_failure")
)
