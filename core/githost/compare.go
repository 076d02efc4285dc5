package githost

import (
	"context"
	"net/http"
	"net/url"

	"github.com/repo-trust/repo-trust/core/ancestry"
)

var _ ancestry.CompareClient = (*Client)(nil)

// CompareCommits compares a candidate commit (base) against the default
// branch (head). A 404 means the host has never seen the candidate,
// which is a definite answer, not a failure.
func (c *Client) CompareCommits(ctx context.Context, base, head string) (ancestry.CompareResult, error) {
	var comparison struct {
		Status   string `json:"status"`
		AheadBy  int    `json:"ahead_by"`
		BehindBy int    `json:"behind_by"`
	}
	compareURL := c.repoURL("compare/" + url.PathEscape(base) + "..." + url.PathEscape(head))
	status, err := c.doJSON(ctx, http.MethodGet, compareURL, nil, &comparison, http.StatusOK)
	if err != nil {
		if status == http.StatusNotFound {
			return ancestry.CompareResult{Status: ancestry.ComparisonUnknown}, nil
		}
		return ancestry.CompareResult{}, err
	}
	return ancestry.CompareResult{
		Status:   comparison.Status,
		AheadBy:  comparison.AheadBy,
		BehindBy: comparison.BehindBy,
	}, nil
}
