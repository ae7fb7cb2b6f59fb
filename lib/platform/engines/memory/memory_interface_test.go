package memory

import (
	"testing"

	"github.com/dylan-green/promise-idb/lib/platform"
	envtesting "github.com/dylan-green/promise-idb/lib/platform/testing"
)

func Test(t *testing.T) {
	envtesting.RunEnvironmentTests(t, "Memory", func() platform.Environment {
		return New(nil)
	})
}

func Benchmark(b *testing.B) {
	envtesting.RunEnvironmentBenchmarks(b, "Memory", func() platform.Environment {
		return New(nil)
	})
}
