package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/repo-trust/repo-trust/core/githost"
	"github.com/repo-trust/repo-trust/core/identity"
	"github.com/repo-trust/repo-trust/core/manifest"
	"github.com/repo-trust/repo-trust/core/pages"
	"github.com/repo-trust/repo-trust/core/pipeline"
	"github.com/repo-trust/repo-trust/core/retry"
	"github.com/repo-trust/repo-trust/core/runlog"
	"github.com/repo-trust/repo-trust/core/sign"
	"github.com/repo-trust/repo-trust/core/verify"
)

// fakeHost scripts the subset of the host API the pipeline touches:
// release lookup, asset download, asset upload, and the git data
// endpoints behind the pages publisher.
type fakeHost struct {
	mu sync.Mutex

	baseURL string

	uploads map[string][]byte
	deleted []string

	blobs   map[string][]byte
	trees   map[string][]map[string]string
	commits map[string]string
	tip     string
	nextID  int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		uploads: map[string][]byte{},
		blobs:   map[string][]byte{},
		trees:   map[string][]map[string]string{},
		commits: map[string]string{},
	}
}

func (h *fakeHost) releaseJSON() string {
	return fmt.Sprintf(`{
		"id": 7,
		"tag_name": "v1.0.0",
		"name": "First release",
		"published_at": "2026-08-25T10:00:00Z",
		"html_url": "https://github.com/octo/widgets/releases/tag/v1.0.0",
		"upload_url": "%s/uploads/releases/7/assets{?name,label}",
		"assets": [
			{"id": 1, "name": "app.tar.gz", "size": 5, "url": "%s/assets/1", "browser_download_url": "https://example.com/app.tar.gz"},
			{"id": 31, "name": "repo-trust-manifest.json", "size": 100, "url": "%s/assets/31", "browser_download_url": ""}
		]
	}`, h.baseURL, h.baseURL, h.baseURL)
}

func (h *fakeHost) sha(prefix string) string {
	h.nextID++
	return fmt.Sprintf("%s-%d", prefix, h.nextID)
}

func (h *fakeHost) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		defer h.mu.Unlock()

		path := r.URL.Path
		switch {
		case r.Method == http.MethodGet && path == "/repos/octo/widgets/releases/tags/v1.0.0":
			fmt.Fprint(w, h.releaseJSON())
		case r.Method == http.MethodGet && path == "/repos/octo/widgets/releases/7":
			fmt.Fprint(w, h.releaseJSON())
		case r.Method == http.MethodGet && path == "/assets/1":
			_, _ = w.Write([]byte("hello"))
		case r.Method == http.MethodDelete && strings.HasPrefix(path, "/repos/octo/widgets/releases/assets/"):
			h.deleted = append(h.deleted, strings.TrimPrefix(path, "/repos/octo/widgets/releases/assets/"))
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && path == "/uploads/releases/7/assets":
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, `{"message":"read failed"}`, http.StatusInternalServerError)
				return
			}
			h.uploads[r.URL.Query().Get("name")] = raw
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 99}`))
		case r.Method == http.MethodGet && path == "/repos/octo/widgets/git/ref/heads/gh-pages":
			if h.tip == "" {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
				return
			}
			fmt.Fprintf(w, `{"ref": "refs/heads/gh-pages", "object": {"sha": "%s"}}`, h.tip)
		case r.Method == http.MethodPost && path == "/repos/octo/widgets/git/blobs":
			var payload struct {
				Content string `json:"content"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			sha := h.sha("blob")
			h.blobs[sha] = []byte(payload.Content)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"sha": "%s"}`, sha)
		case r.Method == http.MethodPost && path == "/repos/octo/widgets/git/trees":
			var payload struct {
				Tree []map[string]string `json:"tree"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			sha := h.sha("tree")
			h.trees[sha] = payload.Tree
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"sha": "%s"}`, sha)
		case r.Method == http.MethodPost && path == "/repos/octo/widgets/git/commits":
			var payload struct {
				Tree string `json:"tree"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			sha := h.sha("commit")
			h.commits[sha] = payload.Tree
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"sha": "%s"}`, sha)
		case r.Method == http.MethodPost && path == "/repos/octo/widgets/git/refs":
			var payload struct {
				SHA string `json:"sha"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			h.tip = payload.SHA
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"ref": "refs/heads/gh-pages", "object": {"sha": "%s"}}`, payload.SHA)
		default:
			http.Error(w, fmt.Sprintf(`{"message":"unexpected %s %s"}`, r.Method, path), http.StatusNotFound)
		}
	})
}

func (h *fakeHost) publishedPaths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var paths []string
	for _, entry := range h.trees[h.commits[h.tip]] {
		paths = append(paths, entry["path"])
	}
	return paths
}

func TestFullReleaseFlow(t *testing.T) {
	host := newFakeHost()
	server := httptest.NewServer(host.handler())
	defer server.Close()
	host.baseURL = server.URL

	repo, err := identity.Parse("octo/widgets", "https://github.com")
	if err != nil {
		t.Fatalf("parse identity: %v", err)
	}
	keys, err := sign.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	signers := sign.AllowedSigners{{Identity: "release-ci", Key: keys.Public}}
	client := githost.New(repo, server.URL, "test-token", retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxJitter: time.Millisecond})

	var stderr strings.Builder
	p := pipeline.Pipeline{
		Repository:       repo,
		Source:           client,
		Uploader:         client,
		Store:            client,
		Keys:             keys,
		Signers:          signers,
		GeneratorVersion: "2.0.0",
		APIBaseURL:       server.URL,
		DefaultBranch:    "main",
		PagesBranch:      "gh-pages",
		Log:              &runlog.Logger{Stderr: &stderr, Repository: "octo/widgets", Release: "v1.0.0"},
	}

	result, err := p.Run(context.Background(), "v1.0.0", "abc1234def")
	if err != nil {
		t.Fatalf("pipeline run: %v", err)
	}

	// The previous run's manifest asset is skipped at build time and
	// replaced at upload time.
	if len(result.Manifest.Artifacts) != 1 || result.Manifest.Artifacts[0].Filename != "app.tar.gz" {
		t.Fatalf("unexpected artifacts: %+v", result.Manifest.Artifacts)
	}
	if len(host.deleted) != 1 || host.deleted[0] != "31" {
		t.Fatalf("stale manifest asset not replaced: %v", host.deleted)
	}

	uploadedManifest, ok := host.uploads[manifest.Filename]
	if !ok {
		t.Fatalf("manifest not uploaded")
	}
	uploadedSignature, ok := host.uploads[manifest.SignatureFilename]
	if !ok {
		t.Fatalf("signature not uploaded")
	}

	// The uploaded pair must verify end to end with only the published
	// trust anchors.
	verified, err := verify.Manifest(uploadedManifest, uploadedSignature, signers, repo)
	if err != nil {
		t.Fatalf("uploaded manifest failed verification: %v", err)
	}
	if verified.SignerIdentity != "release-ci" {
		t.Fatalf("unexpected signer: %s", verified.SignerIdentity)
	}
	if verified.Manifest.Release.Commit != "abc1234def" {
		t.Fatalf("manifest must pin the release commit: %+v", verified.Manifest.Release)
	}

	paths := host.publishedPaths()
	for _, want := range []string{
		".nojekyll",
		pages.ManagedSubtree + "/" + pages.BadgePath,
		pages.ManagedSubtree + "/" + pages.PagePath,
		pages.ManagedSubtree + "/" + pages.ReleaseDataPath,
	} {
		found := false
		for _, path := range paths {
			if path == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("published tree missing %s: %v", want, paths)
		}
	}

	for _, stage := range []string{"build_manifest", "sign_manifest", "self_verify", "upload", "render", "publish"} {
		if !strings.Contains(stderr.String(), stage+" ok") {
			t.Fatalf("missing %s stage log: %q", stage, stderr.String())
		}
	}
}
