// Package testing provides standardised tests and benchmarks for engine
// implementations that satisfy the platform.Environment interface.
//
// The package contains:
//   - testing: A conformance suite covering open/upgrade semantics, schema
//     lifecycle, record operations, key ordering and index constraints
//   - benchmark: Performance tests for common record operations
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() platform.Environment {
//		return NewMyEngine()
//	}
//
//	// Running the standard test suite
//	enginetest.RunEnvironmentTests(t, "MyEngine", factory)
//
//	// Running performance benchmarks
//	enginetest.RunEnvironmentBenchmarks(b, "MyEngine", factory)
package testing
