// Package codec provides document encoding for the storage engines. It
// defines a common interface and multiple implementations for marshaling
// documents to bytes before persistence and back on reads.
//
// Key Components:
//
//   - ICodec: Core interface that all codec implementations must satisfy.
//
//   - jsonCodecImpl: Implementation using JSON encoding. Human-readable on
//     disk and interoperable; numbers decode as float64, which matches the
//     platform key normalization. This is the default codec.
//
//   - gobCodecImpl: Implementation using Go's built-in gob encoding. More
//     compact for large documents but Go-specific and not inspectable.
//
// Thread Safety:
//
//	All codec implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
package codec
