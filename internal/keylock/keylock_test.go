package keylock

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	s := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("message-1")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()
	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
}

func TestShardIsStable(t *testing.T) {
	if shardFor("alice") != shardFor("alice") {
		t.Error("shard for the same key changed")
	}
	if got := shardFor(""); got >= shardCount {
		t.Errorf("shard = %d out of range", got)
	}
}
