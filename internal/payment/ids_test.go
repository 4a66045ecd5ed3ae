package payment

import (
	"sync"
	"testing"
)

func TestMerchantTransactionIDsAreUnique(t *testing.T) {
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[string]bool, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := NewMerchantTransactionID()
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate id %s", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d ids, got %d", workers*perWorker, len(seen))
	}
	for id := range seen {
		if len(id) > 35 {
			t.Fatalf("id %s is longer than 35 characters", id)
		}
	}
}

func TestMerchantUserID(t *testing.T) {
	id := NewMerchantUserID()
	if len(id) != 20 || id[:4] != "MUID" {
		t.Fatalf("unexpected user id %q", id)
	}
}
