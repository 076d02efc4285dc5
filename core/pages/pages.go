// Package pages merges generated trust artifacts into a shared,
// branch-backed static site. The publisher owns exactly one subtree;
// everything else on the branch passes through untouched, and the
// branch tip is only ever advanced fast-forward.
package pages

import (
	"context"
	"fmt"
	"sort"
	"strings"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
)

// ManagedSubtree is the sole path this system may create, replace, or
// delete on the publish branch.
const ManagedSubtree = "repo-trust"

const defaultPublishAttempts = 3

const commitMessage = "Update repo-trust verification artifacts"

// TreeEntry is one blob in the branch's flattened tree. Unrelated
// entries are carried across publishes by SHA, which guarantees their
// content is preserved byte-identical.
type TreeEntry struct {
	Path string
	Mode string
	Type string
	SHA  string
}

// RefStore is the publisher's view of the host's git data capability.
// UpdateBranch must be atomic: it succeeds only when the branch still
// points at expectedTip (empty string means "create the branch"), and
// reports a publish_conflict classified error otherwise.
type RefStore interface {
	BranchTip(ctx context.Context, branch string) (sha string, found bool, err error)
	CommitTreeSHA(ctx context.Context, commitSHA string) (string, error)
	TreeEntries(ctx context.Context, treeSHA string) ([]TreeEntry, error)
	CreateBlob(ctx context.Context, content []byte) (string, error)
	CreateTree(ctx context.Context, entries []TreeEntry) (string, error)
	CreateCommit(ctx context.Context, message, treeSHA string, parents []string) (string, error)
	UpdateBranch(ctx context.Context, branch, commitSHA, expectedTip string) error
}

type Publisher struct {
	Store  RefStore
	Branch string

	// MaxAttempts bounds the read-merge-commit-update cycle when a
	// concurrent publisher races ahead. Zero means the default.
	MaxAttempts int
}

type PublishResult struct {
	CommitSHA     string
	CreatedBranch bool
	Attempts      int
}

// Publish replaces the managed subtree with the given artifact set.
// Paths in files are relative to the managed subtree. The merge is
// optimistic-concurrency-controlled: read tip, build, attempt an atomic
// fast-forward update, and redo from scratch if the tip moved.
func (p Publisher) Publish(ctx context.Context, files map[string][]byte) (PublishResult, error) {
	if len(files) == 0 {
		return PublishResult{}, coreerrors.Wrap(
			fmt.Errorf("nothing to publish"),
			coreerrors.CategoryInternalFailure,
			"publish_empty",
			"",
			false,
		)
	}
	branch := p.Branch
	if branch == "" {
		branch = "gh-pages"
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = defaultPublishAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := p.publishOnce(ctx, branch, files, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if coreerrors.CategoryOf(err) != coreerrors.CategoryPublishConflict {
			return PublishResult{}, err
		}
	}
	return PublishResult{}, coreerrors.Wrap(
		fmt.Errorf("publish branch %s kept moving after %d attempts: %w", branch, attempts, lastErr),
		coreerrors.CategoryPublishConflict,
		"publish_conflict_exhausted",
		"a concurrent publisher kept racing ahead; re-run the publish",
		false,
	)
}

func (p Publisher) publishOnce(ctx context.Context, branch string, files map[string][]byte, attempt int) (PublishResult, error) {
	tip, found, err := p.Store.BranchTip(ctx, branch)
	if err != nil {
		return PublishResult{}, err
	}

	var kept []TreeEntry
	if found {
		treeSHA, err := p.Store.CommitTreeSHA(ctx, tip)
		if err != nil {
			return PublishResult{}, err
		}
		existing, err := p.Store.TreeEntries(ctx, treeSHA)
		if err != nil {
			return PublishResult{}, err
		}
		for _, entry := range existing {
			if entry.Type != "blob" {
				continue
			}
			if entry.Path == ManagedSubtree || strings.HasPrefix(entry.Path, ManagedSubtree+"/") {
				continue
			}
			kept = append(kept, entry)
		}
	}

	generated := make(map[string][]byte, len(files)+1)
	for relativePath, content := range files {
		generated[ManagedSubtree+"/"+relativePath] = content
	}
	if !found {
		// A fresh branch gets the Jekyll bypass marker; an existing
		// branch's root is not ours to touch.
		generated[".nojekyll"] = []byte{}
	}

	paths := make([]string, 0, len(generated))
	for path := range generated {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	entries := append([]TreeEntry(nil), kept...)
	for _, path := range paths {
		blobSHA, err := p.Store.CreateBlob(ctx, generated[path])
		if err != nil {
			return PublishResult{}, err
		}
		entries = append(entries, TreeEntry{Path: path, Mode: "100644", Type: "blob", SHA: blobSHA})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	treeSHA, err := p.Store.CreateTree(ctx, entries)
	if err != nil {
		return PublishResult{}, err
	}
	var parents []string
	if found {
		parents = []string{tip}
	}
	commitSHA, err := p.Store.CreateCommit(ctx, commitMessage, treeSHA, parents)
	if err != nil {
		return PublishResult{}, err
	}
	if err := p.Store.UpdateBranch(ctx, branch, commitSHA, tip); err != nil {
		return PublishResult{}, err
	}
	return PublishResult{CommitSHA: commitSHA, CreatedBranch: !found, Attempts: attempt}, nil
}
