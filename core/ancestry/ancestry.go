// Package ancestry decides whether an untrusted commit reference, taken
// from the referrer of a verification-page visit, belongs to the
// repository's official history. The decision policy is closed: a
// transient host failure can degrade the answer to UNKNOWN but can
// never promote it to VERIFIED.
package ancestry

import (
	"context"
	"regexp"
	"strings"

	"github.com/repo-trust/repo-trust/core/retry"
)

type Status string

const (
	// StatusVerified: the commit is contained in the default branch's
	// history.
	StatusVerified Status = "VERIFIED"
	// StatusWarning: the host knows nothing of the commit or it sits on
	// a diverged history; the viewer may be looking at a squatted fork.
	StatusWarning Status = "WARNING"
	// StatusUnknown: the host could not be consulted within the retry
	// budget. Never reported as verified.
	StatusUnknown Status = "UNKNOWN"
	// StatusNoCommitReference: the referrer carries no commit-like
	// identifier; the viewer is prompted to check manually.
	StatusNoCommitReference Status = "NO_COMMIT_REFERENCE"
)

// Comparison outcomes reported by the host's commit-comparison
// capability, in "candidate...branch" direction.
const (
	ComparisonIdentical = "identical"
	ComparisonAhead     = "ahead"
	ComparisonBehind    = "behind"
	ComparisonDiverged  = "diverged"
	ComparisonUnknown   = "unknown"
)

type CompareResult struct {
	Status   string
	AheadBy  int
	BehindBy int
}

// CompareClient compares a candidate commit (base) against the default
// branch tip (head). Implementations report ComparisonUnknown for
// commits the host has never seen and return classified errors for
// transport failures.
type CompareClient interface {
	CompareCommits(ctx context.Context, base, head string) (CompareResult, error)
}

type Result struct {
	Status Status
	Commit string
	Detail string
}

// commitPattern matches the commit-like path segments a host embeds in
// tree/commit/blob URLs.
var commitPattern = regexp.MustCompile(`/(?:commit|commits|tree|blob)/([0-9a-f]{7,40})(?:[/?#]|$)`)

// ExtractCommit pulls a commit identifier out of an untrusted referrer
// URL. Absence is a normal outcome, not an error.
func ExtractCommit(referrer string) (string, bool) {
	match := commitPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(referrer)))
	if match == nil {
		return "", false
	}
	return match[1], true
}

type Checker struct {
	Client        CompareClient
	DefaultBranch string
	Retry         retry.Policy
}

// Check runs the full decision for one referrer URL.
func (c Checker) Check(ctx context.Context, referrer string) Result {
	commit, found := ExtractCommit(referrer)
	if !found {
		return Result{
			Status: StatusNoCommitReference,
			Detail: "no commit reference in the viewing context; check the repository address manually",
		}
	}

	branch := c.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	var comparison CompareResult
	err := c.Retry.Do(ctx, func(ctx context.Context) error {
		var compareErr error
		comparison, compareErr = c.Client.CompareCommits(ctx, commit, branch)
		return compareErr
	})
	if err != nil {
		return Result{
			Status: StatusUnknown,
			Commit: commit,
			Detail: "the host could not be consulted: " + err.Error(),
		}
	}

	switch comparison.Status {
	case ComparisonIdentical, ComparisonAhead:
		// The branch tip is at or ahead of the candidate: the candidate
		// is contained in official history.
		return Result{Status: StatusVerified, Commit: commit, Detail: "commit is contained in " + branch}
	case ComparisonUnknown:
		return Result{Status: StatusWarning, Commit: commit, Detail: "commit is unknown to the host"}
	default:
		return Result{Status: StatusWarning, Commit: commit, Detail: "commit is not an ancestor of " + branch}
	}
}
