package githost

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/pages"
)

// The git data implementation behind the pages publisher. Branch
// updates are fast-forward only, so a racing publisher surfaces as a
// 422 and is classified as a publish conflict rather than retried at
// the transport layer.

var _ pages.RefStore = (*Client)(nil)

type refResponse struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type shaResponse struct {
	SHA string `json:"sha"`
}

func (c *Client) BranchTip(ctx context.Context, branch string) (string, bool, error) {
	var ref refResponse
	refURL := c.repoURL("git/ref/" + refPath(branch))
	status, err := c.doJSON(ctx, http.MethodGet, refURL, nil, &ref, http.StatusOK)
	if err != nil {
		if status == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return ref.Object.SHA, true, nil
}

func (c *Client) CommitTreeSHA(ctx context.Context, commitSHA string) (string, error) {
	var commit struct {
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	}
	commitURL := c.repoURL("git/commits/" + url.PathEscape(commitSHA))
	if _, err := c.doJSON(ctx, http.MethodGet, commitURL, nil, &commit, http.StatusOK); err != nil {
		return "", err
	}
	return commit.Tree.SHA, nil
}

func (c *Client) TreeEntries(ctx context.Context, treeSHA string) ([]pages.TreeEntry, error) {
	var tree struct {
		Tree []struct {
			Path string `json:"path"`
			Mode string `json:"mode"`
			Type string `json:"type"`
			SHA  string `json:"sha"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	treeURL := c.repoURL("git/trees/" + url.PathEscape(treeSHA) + "?recursive=1")
	if _, err := c.doJSON(ctx, http.MethodGet, treeURL, nil, &tree, http.StatusOK); err != nil {
		return nil, err
	}
	if tree.Truncated {
		// A truncated listing would silently drop existing site content
		// on the next publish.
		return nil, coreerrors.Wrap(
			fmt.Errorf("tree %s listing truncated by the host", treeSHA),
			coreerrors.CategoryIOFailure,
			"tree_truncated",
			"the publish branch is too large to merge safely",
			false,
		)
	}
	entries := make([]pages.TreeEntry, 0, len(tree.Tree))
	for _, entry := range tree.Tree {
		entries = append(entries, pages.TreeEntry{
			Path: entry.Path,
			Mode: entry.Mode,
			Type: entry.Type,
			SHA:  entry.SHA,
		})
	}
	return entries, nil
}

func (c *Client) CreateBlob(ctx context.Context, content []byte) (string, error) {
	payload := map[string]string{
		"content":  base64.StdEncoding.EncodeToString(content),
		"encoding": "base64",
	}
	var blob shaResponse
	if _, err := c.doJSON(ctx, http.MethodPost, c.repoURL("git/blobs"), payload, &blob, http.StatusCreated); err != nil {
		return "", err
	}
	return blob.SHA, nil
}

func (c *Client) CreateTree(ctx context.Context, entries []pages.TreeEntry) (string, error) {
	type treeEntryPayload struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	}
	payload := struct {
		Tree []treeEntryPayload `json:"tree"`
	}{Tree: make([]treeEntryPayload, 0, len(entries))}
	for _, entry := range entries {
		payload.Tree = append(payload.Tree, treeEntryPayload{
			Path: entry.Path,
			Mode: entry.Mode,
			Type: entry.Type,
			SHA:  entry.SHA,
		})
	}
	var tree shaResponse
	if _, err := c.doJSON(ctx, http.MethodPost, c.repoURL("git/trees"), payload, &tree, http.StatusCreated); err != nil {
		return "", err
	}
	return tree.SHA, nil
}

func (c *Client) CreateCommit(ctx context.Context, message, treeSHA string, parents []string) (string, error) {
	payload := struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}{Message: message, Tree: treeSHA, Parents: parents}
	if payload.Parents == nil {
		payload.Parents = []string{}
	}
	var commit shaResponse
	if _, err := c.doJSON(ctx, http.MethodPost, c.repoURL("git/commits"), payload, &commit, http.StatusCreated); err != nil {
		return "", err
	}
	return commit.SHA, nil
}

// UpdateBranch advances the branch to commitSHA. An empty expectedTip
// creates the ref; otherwise the update is fast-forward only, so a tip
// that moved since it was read comes back as a 422.
func (c *Client) UpdateBranch(ctx context.Context, branch, commitSHA, expectedTip string) error {
	if expectedTip == "" {
		payload := map[string]string{
			"ref": "refs/heads/" + branch,
			"sha": commitSHA,
		}
		status, err := c.doJSON(ctx, http.MethodPost, c.repoURL("git/refs"), payload, nil, http.StatusCreated)
		if err != nil && status == http.StatusUnprocessableEntity {
			return branchConflict(branch, err)
		}
		return err
	}

	payload := struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}{SHA: commitSHA, Force: false}
	refURL := c.repoURL("git/refs/" + refPath(branch))
	status, err := c.doJSON(ctx, http.MethodPatch, refURL, payload, nil, http.StatusOK)
	if err != nil && status == http.StatusUnprocessableEntity {
		return branchConflict(branch, err)
	}
	return err
}

func branchConflict(branch string, cause error) error {
	return coreerrors.Wrap(
		fmt.Errorf("branch %s moved during publish: %w", branch, cause),
		coreerrors.CategoryPublishConflict,
		"ref_conflict",
		"another publisher advanced the branch; the merge is redone from the new tip",
		false,
	)
}

func refPath(branch string) string {
	return "heads/" + url.PathEscape(branch)
}
