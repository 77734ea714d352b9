// Package pipeline orchestrates a batch: discover image files under the
// configured roots, map each to its destination, re-encode them with a
// bounded worker pool, and report per-file results and a summary.
//
// The analyze subcommand shares discovery but only reads image headers.
package pipeline
