package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMapAllPreservesOrder(t *testing.T) {
	items := []int{5, 4, 3, 2, 1}
	out, err := MapAll(context.Background(), items, 2, func(_ context.Context, i int, v int) (int, error) {
		time.Sleep(time.Duration(v) * time.Millisecond)
		return v * 10, nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for i, v := range items {
		if out[i] != v*10 {
			t.Fatalf("slot %d: want=%d got=%d", i, v*10, out[i])
		}
	}
}

func TestMapAllRespectsLimit(t *testing.T) {
	var inFlight, peak int32
	items := make([]int, 12)
	_, err := MapAll(context.Background(), items, 3, func(context.Context, int, int) (struct{}, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if peak > 3 {
		t.Fatalf("peak in flight: want<=3 got=%d", peak)
	}
}

func TestMapAllFailsFast(t *testing.T) {
	boom := errors.New("boom")
	_, err := MapAll(context.Background(), []int{1, 2, 3}, 1, func(_ context.Context, i int, _ int) (int, error) {
		if i == 1 {
			return 0, boom
		}
		return i, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err: want=%v got=%v", boom, err)
	}
}

func TestMapSettledKeepsGoing(t *testing.T) {
	boom := errors.New("boom")
	out := MapSettled(context.Background(), []string{"a", "b", "c"}, 2, func(_ context.Context, i int, s string) (string, error) {
		if s == "b" {
			return "", boom
		}
		return s + s, nil
	})
	if len(out) != 3 {
		t.Fatalf("len: want=3 got=%d", len(out))
	}
	if out[0].Value != "aa" || out[2].Value != "cc" {
		t.Fatalf("values: got=%q,%q", out[0].Value, out[2].Value)
	}
	if !errors.Is(out[1].Err, boom) {
		t.Fatalf("slot 1 err: want=%v got=%v", boom, out[1].Err)
	}
}
