package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestAddRejectsDuplicates(t *testing.T) {
	r := New[string, int]()
	if err := r.Add("a", 1); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	err := r.Add("a", 2)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Add() duplicate error = %v, want ErrDuplicate", err)
	}
	if v, _ := r.Get("a"); v != 1 {
		t.Errorf("Get(a) = %d, want original value 1", v)
	}
}

func TestGetAndHas(t *testing.T) {
	r := New[string, string]()
	if _, ok := r.Get("x"); ok || r.Has("x") {
		t.Fatal("empty registry reports x")
	}
	_ = r.Add("x", "y")
	if v, ok := r.Get("x"); !ok || v != "y" {
		t.Errorf("Get(x) = %q, %v", v, ok)
	}
	if !r.Has("x") {
		t.Error("Has(x) = false")
	}
}

func TestKeysAreSorted(t *testing.T) {
	r := New[string, int]()
	for _, k := range []string{"c", "a", "b"} {
		_ = r.Add(k, 0)
	}
	got := fmt.Sprint(r.Keys())
	if got != "[a b c]" {
		t.Errorf("Keys() = %s, want [a b c]", got)
	}
}

func TestAllIteratesSnapshotInOrder(t *testing.T) {
	r := New[string, int]()
	_ = r.Add("b", 2)
	_ = r.Add("a", 1)

	var seen []string
	for k, v := range r.All() {
		seen = append(seen, fmt.Sprintf("%s=%d", k, v))
		_ = r.Add("z", 26)
	}
	if fmt.Sprint(seen) != "[a=1 b=2]" {
		t.Errorf("All() yielded %v", seen)
	}
	if !r.Has("z") {
		t.Error("mutation during iteration should be applied")
	}
}

func TestAllEarlyStop(t *testing.T) {
	r := New[int, int]()
	for i := range 5 {
		_ = r.Add(i, i)
	}
	count := 0
	for range r.All() {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Errorf("iterated %d times, want 2", count)
	}
}

func TestConcurrentGetOrCreate(t *testing.T) {
	r := New[string, *int]()
	var calls atomic.Int32
	var wg sync.WaitGroup

	results := make([]*int, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.GetOrCreate("shared", func() *int {
				calls.Add(1)
				v := 42
				return &v
			})
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("factory called %d times, want 1", calls.Load())
	}
	for i, p := range results {
		if p != results[0] {
			t.Fatalf("result %d differs from result 0", i)
		}
	}
}

func TestConcurrentAdd(t *testing.T) {
	r := New[int, int]()
	var wg sync.WaitGroup
	var dups atomic.Int32
	for i := range 100 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := r.Add(i%10, i); errors.Is(err, ErrDuplicate) {
				dups.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if n := len(r.Keys()); n != 10 {
		t.Errorf("len(Keys()) = %d, want 10", n)
	}
	if dups.Load() != 90 {
		t.Errorf("duplicates = %d, want 90", dups.Load())
	}
}
