package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
)

func transientErr(message string) error {
	return coreerrors.Wrap(
		fmt.Errorf("%s", message),
		coreerrors.CategoryNetworkTransient,
		"server_error",
		"",
		true,
	)
}

func fatalErr(message string) error {
	return coreerrors.Wrap(
		fmt.Errorf("%s", message),
		coreerrors.CategoryConfiguration,
		"missing_input",
		"",
		false,
	)
}

func testPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxJitter: time.Millisecond}
}

func TestDoSucceedsAfterScriptedFailures(t *testing.T) {
	calls := 0
	err := testPolicy(4).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return transientErr("503")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoStopsOnFatalError(t *testing.T) {
	calls := 0
	err := testPolicy(4).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return fatalErr("bad config")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("fatal error must not be retried, got %d attempts", calls)
	}
	if coreerrors.CategoryOf(err) != coreerrors.CategoryConfiguration {
		t.Fatalf("classification lost: %s", coreerrors.CategoryOf(err))
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	calls := 0
	err := testPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return transientErr("503")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting budget")
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestDoHonorsRateLimitReset(t *testing.T) {
	reset := time.Now().Add(20 * time.Millisecond)
	calls := 0
	started := time.Now()
	err := testPolicy(2).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &RateLimitError{Reset: reset, Err: fmt.Errorf("403 rate limited")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after reset: %v", err)
	}
	if elapsed := time.Since(started); elapsed < 15*time.Millisecond {
		t.Fatalf("retry did not wait for rate-limit reset, elapsed %v", elapsed)
	}
}

func TestDoContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxJitter: time.Millisecond}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := policy.Do(ctx, func(ctx context.Context) error {
		calls++
		return transientErr("503")
	})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancel, got %d", calls)
	}
}

func TestTransientClassification(t *testing.T) {
	if Transient(fatalErr("nope")) {
		t.Fatalf("configuration errors are not transient")
	}
	if !Transient(transientErr("503")) {
		t.Fatalf("network errors are transient")
	}
	if !Transient(&RateLimitError{Err: fmt.Errorf("429")}) {
		t.Fatalf("rate limits are transient")
	}
	if Transient(fmt.Errorf("plain")) {
		t.Fatalf("unclassified errors are not transient")
	}
}
