// Package snapshot defines the archival pipeline's core types and the pure
// steps around them: URL normalization, self-text anchor extraction, post
// construction, and rendering of the reply comment.
package snapshot
