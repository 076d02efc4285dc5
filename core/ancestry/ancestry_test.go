package ancestry

import (
	"context"
	"fmt"
	"testing"
	"time"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/retry"
)

type scriptedClient struct {
	results []CompareResult
	errs    []error
	calls   int
}

func (c *scriptedClient) CompareCommits(ctx context.Context, base, head string) (CompareResult, error) {
	index := c.calls
	c.calls++
	if index >= len(c.results) {
		index = len(c.results) - 1
	}
	if err := c.errs[index]; err != nil {
		return CompareResult{}, err
	}
	return c.results[index], nil
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxJitter: time.Millisecond}
}

func transientErr() error {
	return coreerrors.Wrap(fmt.Errorf("502 bad gateway"), coreerrors.CategoryNetworkTransient, "server_error", "", true)
}

const officialReferrer = "https://github.com/octo/widgets/tree/0123456789abcdef0123456789abcdef01234567"

func TestExtractCommit(t *testing.T) {
	cases := []struct {
		referrer string
		commit   string
		found    bool
	}{
		{officialReferrer, "0123456789abcdef0123456789abcdef01234567", true},
		{"https://github.com/octo/widgets/commit/abc1234", "abc1234", true},
		{"https://github.com/octo/widgets/commits/deadbeef00", "deadbeef00", true},
		{"https://github.com/octo/widgets/blob/cafe1234/README.md", "cafe1234", true},
		{"https://github.com/octo/widgets/tree/ABC1234", "abc1234", true},
		{"https://github.com/octo/widgets", "", false},
		{"https://github.com/octo/widgets/tree/main", "", false},
		{"https://github.com/octo/widgets/tree/12345", "", false},
		{"", "", false},
	}
	for _, testCase := range cases {
		commit, found := ExtractCommit(testCase.referrer)
		if found != testCase.found || commit != testCase.commit {
			t.Fatalf("%q: got (%q,%v), want (%q,%v)", testCase.referrer, commit, found, testCase.commit, testCase.found)
		}
	}
}

func TestCheckAncestorIsVerified(t *testing.T) {
	for _, status := range []string{ComparisonIdentical, ComparisonAhead} {
		client := &scriptedClient{results: []CompareResult{{Status: status}}, errs: []error{nil}}
		checker := Checker{Client: client, DefaultBranch: "main", Retry: fastRetry()}
		result := checker.Check(context.Background(), officialReferrer)
		if result.Status != StatusVerified {
			t.Fatalf("comparison %s: expected VERIFIED, got %s", status, result.Status)
		}
	}
}

func TestCheckDivergedOrUnknownCommitIsWarning(t *testing.T) {
	for _, status := range []string{ComparisonDiverged, ComparisonBehind, ComparisonUnknown} {
		client := &scriptedClient{results: []CompareResult{{Status: status}}, errs: []error{nil}}
		checker := Checker{Client: client, DefaultBranch: "main", Retry: fastRetry()}
		result := checker.Check(context.Background(), officialReferrer)
		if result.Status != StatusWarning {
			t.Fatalf("comparison %s: expected WARNING, got %s", status, result.Status)
		}
	}
}

func TestCheckNoCommitReference(t *testing.T) {
	client := &scriptedClient{results: []CompareResult{{}}, errs: []error{nil}}
	checker := Checker{Client: client, DefaultBranch: "main", Retry: fastRetry()}
	result := checker.Check(context.Background(), "https://github.com/octo/widgets")
	if result.Status != StatusNoCommitReference {
		t.Fatalf("expected NO_COMMIT_REFERENCE, got %s", result.Status)
	}
	if client.calls != 0 {
		t.Fatalf("host must not be consulted without a commit reference")
	}
}

func TestCheckTransientFailureNeverVerified(t *testing.T) {
	client := &scriptedClient{
		results: []CompareResult{{}, {}, {}},
		errs:    []error{transientErr(), transientErr(), transientErr()},
	}
	checker := Checker{Client: client, DefaultBranch: "main", Retry: fastRetry()}
	result := checker.Check(context.Background(), officialReferrer)
	if result.Status != StatusUnknown {
		t.Fatalf("expected UNKNOWN after exhausted retries, got %s", result.Status)
	}
	if client.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", client.calls)
	}
}

func TestCheckRecoversAfterTransientFailure(t *testing.T) {
	client := &scriptedClient{
		results: []CompareResult{{}, {Status: ComparisonAhead}},
		errs:    []error{transientErr(), nil},
	}
	checker := Checker{Client: client, DefaultBranch: "main", Retry: fastRetry()}
	result := checker.Check(context.Background(), officialReferrer)
	if result.Status != StatusVerified {
		t.Fatalf("expected VERIFIED after recovery, got %s", result.Status)
	}
}
