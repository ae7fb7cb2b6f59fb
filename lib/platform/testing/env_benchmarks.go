package testing

import (
	"fmt"
	"testing"

	"github.com/dylan-green/promise-idb/lib/platform"
)

// RunEnvironmentBenchmarks runs all benchmarks for an Environment
// implementation.
func RunEnvironmentBenchmarks(b *testing.B, name string, factory EnvFactory) {
	b.Run(name+"/Put", func(b *testing.B) {
		benchmarkPut(b, factory())
	})

	b.Run(name+"/Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run(name+"/PutIndexed", func(b *testing.B) {
		benchmarkPutIndexed(b, factory())
	})

	b.Run(name+"/GetAll", func(b *testing.B) {
		benchmarkGetAll(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkPut(b *testing.B, env platform.Environment) {
	b.Cleanup(func() { env.Close() })

	h := withCollection(b, env, "bench", "docs", platform.CollectionOptions{})
	c := rwTxn(b, h, "docs")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MustSucceed(b, c.Put(fmt.Sprintf("key-%d", i), platform.Document{"i": float64(i)}))
	}
}

func benchmarkGet(b *testing.B, env platform.Environment) {
	b.Cleanup(func() { env.Close() })

	h := withCollection(b, env, "bench", "docs", platform.CollectionOptions{})
	c := rwTxn(b, h, "docs")

	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		MustSucceed(b, c.Put(fmt.Sprintf("key-%d", i), platform.Document{"i": float64(i)}))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MustSucceed(b, c.Get(fmt.Sprintf("key-%d", i%numKeys)))
	}
}

func benchmarkPutIndexed(b *testing.B, env platform.Environment) {
	b.Cleanup(func() { env.Close() })

	h := withCollection(b, env, "bench", "docs", platform.CollectionOptions{},
		platform.IndexSpec{Name: "by-group", KeyPaths: []string{"group"}})
	c := rwTxn(b, h, "docs")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MustSucceed(b, c.Put(fmt.Sprintf("key-%d", i), platform.Document{
			"group": fmt.Sprintf("group-%d", i%100),
		}))
	}
}

func benchmarkGetAll(b *testing.B, env platform.Environment) {
	b.Cleanup(func() { env.Close() })

	h := withCollection(b, env, "bench", "docs", platform.CollectionOptions{})
	c := rwTxn(b, h, "docs")

	for i := 0; i < 1000; i++ {
		MustSucceed(b, c.Put(fmt.Sprintf("key-%d", i), platform.Document{"i": float64(i)}))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MustSucceed(b, c.GetAll(0))
	}
}
