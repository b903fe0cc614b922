package httpx

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"googleapi 503", &googleapi.Error{Code: 503}, true},
		{"googleapi 404", &googleapi.Error{Code: 404}, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetryableError(tc.err); got != tc.want {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	bad := errors.New("bad")
	err := Retry(context.Background(), RetryPolicy{MaxRetries: 3, Initial: time.Millisecond}, func(context.Context) error {
		calls++
		return bad
	})
	if !errors.Is(err, bad) {
		t.Fatalf("err: want=%v got=%v", bad, err)
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func TestRetryRecoversFromTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxRetries: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return status.Error(codes.Unavailable, "flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls: want=3 got=%d", calls)
	}
}

func TestRetryGivesUpAfterMax(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxRetries: 2, Initial: time.Millisecond, Max: time.Millisecond}, func(context.Context) error {
		calls++
		return status.Error(codes.Unavailable, "down")
	})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("code: want=%v got=%v", codes.Unavailable, status.Code(err))
	}
	if calls != 3 {
		t.Fatalf("calls: want=3 got=%d", calls)
	}
}
