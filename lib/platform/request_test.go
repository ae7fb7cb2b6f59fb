package platform

import (
	"fmt"
	"sync"
	"testing"
)

func TestRequestSettleOnce(t *testing.T) {
	req := NewRequest()

	var got any
	var gotErr error
	req.Listen(
		func(v any) { got = v },
		func(err error) { gotErr = err },
	)

	if !req.Succeed("first") {
		t.Errorf("first settlement should win")
	}
	if req.Succeed("second") {
		t.Errorf("second settlement should be dropped")
	}
	if req.Fail(fmt.Errorf("late error")) {
		t.Errorf("settlement after success should be dropped")
	}

	if got != "first" {
		t.Errorf("expected result 'first', got %v", got)
	}
	if gotErr != nil {
		t.Errorf("error handler must not fire on success, got %v", gotErr)
	}
}

func TestRequestLateListener(t *testing.T) {
	req := NewRequest()
	req.Succeed(uint64(3))

	fired := false
	req.Listen(
		func(v any) {
			fired = true
			if v != uint64(3) {
				t.Errorf("expected buffered result 3, got %v", v)
			}
		},
		func(err error) { t.Errorf("unexpected error: %v", err) },
	)
	if !fired {
		t.Errorf("listener attached after settlement must fire immediately")
	}
}

func TestFailedRequest(t *testing.T) {
	cause := fmt.Errorf("validation failed")
	req := FailedRequest(cause)

	var got error
	req.Listen(
		func(any) { t.Errorf("success handler must not fire") },
		func(err error) { got = err },
	)
	if got != cause {
		t.Errorf("expected the original error, got %v", got)
	}
}

func TestRequestConcurrentSettlement(t *testing.T) {
	req := NewRequest()

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if req.Succeed(i) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("exactly one settlement must win, got %d", wins)
	}
}
