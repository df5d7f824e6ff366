package storage

import (
	"sync"
	"testing"
)

// BenchmarkStoreGetItem benchmarks MemoryStore.GetItem performance.
func BenchmarkStoreGetItem(b *testing.B) {
	store := NewMemoryStore()
	store.SetItem("key1", "value1")
	store.SetItem("key2", "12345")
	store.SetItem("key3", `{"foo":"bar"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.GetItem("key1")
	}
}

// BenchmarkStoreSetItem benchmarks MemoryStore.SetItem performance.
func BenchmarkStoreSetItem(b *testing.B) {
	store := NewMemoryStore()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.SetItem("key", "value")
	}
}

// BenchmarkStoreGetItemParallel benchmarks concurrent GetItem operations.
func BenchmarkStoreGetItemParallel(b *testing.B) {
	store := NewMemoryStore()
	store.SetItem("key", "value")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = store.GetItem("key")
		}
	})
}

// BenchmarkStoreSetItemParallel benchmarks concurrent SetItem operations.
func BenchmarkStoreSetItemParallel(b *testing.B) {
	store := NewMemoryStore()
	vals := [2]string{"a", "b"}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = store.SetItem("key", vals[i%2])
			i++
		}
	})
}

// BenchmarkStoreMixedParallel benchmarks a concurrent GetItem/SetItem mix.
func BenchmarkStoreMixedParallel(b *testing.B) {
	store := NewMemoryStore()
	store.SetItem("key", "initial")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%2 == 0 {
				_, _ = store.GetItem("key")
			} else {
				_ = store.SetItem("key", "updated")
			}
			i++
		}
	})
}

// BenchmarkStoreRemoveItem benchmarks a SetItem/RemoveItem cycle.
func BenchmarkStoreRemoveItem(b *testing.B) {
	store := NewMemoryStore()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.SetItem("key", "value")
		store.RemoveItem("key")
	}
}

// BenchmarkPartitionViewSet benchmarks local-area writes with no subscribers.
func BenchmarkPartitionViewSet(b *testing.B) {
	p := NewPartition()
	defer p.Close()
	view := p.Local("bench")
	vals := [2]string{"a", "b"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = view.SetItem("key", vals[i%2])
	}
}

// BenchmarkPartitionViewSetSubscribed benchmarks local-area writes fanned
// out to a draining subscriber.
func BenchmarkPartitionViewSetSubscribed(b *testing.B) {
	p := NewPartition()
	defer p.Close()

	events, cancel := p.Subscribe("other", 64)
	defer cancel()
	go func() {
		for range events {
		}
	}()

	view := p.Local("bench")
	vals := [2]string{"a", "b"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = view.SetItem("key", vals[i%2])
	}
}

// TestStoreConcurrentAccess tests thread safety under contention.
func TestStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	goroutines := 100
	iterations := 1000

	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				key := "key"
				if i%3 == 0 {
					_ = store.SetItem(key, "value")
				} else if i%3 == 1 {
					_, _ = store.GetItem(key)
				} else {
					_ = store.Len()
				}
			}
		}(g)
	}

	wg.Wait()
	// No panic = success
}
