// Package githost is the GitHub-compatible implementation of the
// capability interfaces the core consumes: release asset listing and
// download, release uploads, commit comparison, and the git data
// operations backing the pages publisher. Nothing outside this package
// talks to the host directly.
package githost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/identity"
	"github.com/repo-trust/repo-trust/core/retry"
)

const (
	apiVersion       = "2022-11-28"
	acceptJSON       = "application/vnd.github+json"
	acceptOctet      = "application/octet-stream"
	userAgent        = "repo-trust/2.0"
	maxResponseBytes = 10 * 1024 * 1024

	jsonTimeout   = 30 * time.Second
	streamTimeout = 5 * time.Minute
)

type Client struct {
	APIBaseURL string
	Token      string
	Repository identity.Repository
	Retry      retry.Policy

	// HTTPClient is overridable for tests; nil means a default client
	// with a bounded timeout.
	HTTPClient *http.Client
}

func New(repo identity.Repository, apiBaseURL, token string, policy retry.Policy) *Client {
	return &Client{
		APIBaseURL: strings.TrimRight(apiBaseURL, "/"),
		Token:      token,
		Repository: repo,
		Retry:      policy,
	}
}

func (c *Client) repoURL(path string) string {
	return c.APIBaseURL + "/repos/" + c.Repository.FullName + "/" + path
}

func (c *Client) jsonClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: jsonTimeout}
}

func (c *Client) streamClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: streamTimeout}
}

func (c *Client) newRequest(ctx context.Context, method, url, accept string, body io.Reader) (*http.Request, error) {
	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("build request %s %s: %w", method, url, err),
			coreerrors.CategoryInternalFailure,
			"request_build_failed",
			"",
			false,
		)
	}
	if c.Token != "" {
		request.Header.Set("Authorization", "Bearer "+c.Token)
	}
	request.Header.Set("Accept", accept)
	request.Header.Set("X-GitHub-Api-Version", apiVersion)
	request.Header.Set("User-Agent", userAgent)
	return request, nil
}

// doJSON performs one JSON API call inside the retry policy. Statuses
// listed in okStatuses are successes; everything else is classified by
// classifyResponse. The decoded body is written into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, url string, payload any, out any, okStatuses ...int) (int, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return 0, coreerrors.Wrap(
				fmt.Errorf("encode %s %s payload: %w", method, url, err),
				coreerrors.CategoryInternalFailure,
				"request_encode_failed",
				"",
				false,
			)
		}
	}

	var status int
	err := c.Retry.Do(ctx, func(ctx context.Context) error {
		var body io.Reader
		if encoded != nil {
			body = bytes.NewReader(encoded)
		}
		request, err := c.newRequest(ctx, method, url, acceptJSON, body)
		if err != nil {
			return err
		}
		if encoded != nil {
			request.Header.Set("Content-Type", "application/json")
		}
		response, err := c.jsonClient().Do(request)
		if err != nil {
			return coreerrors.Wrap(
				fmt.Errorf("%s %s: %w", method, url, err),
				coreerrors.CategoryNetworkTransient,
				"host_unreachable",
				"the host API could not be reached",
				true,
			)
		}
		defer func() {
			_ = response.Body.Close()
		}()
		status = response.StatusCode
		for _, ok := range okStatuses {
			if status == ok {
				if out == nil {
					return nil
				}
				raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
				if err != nil {
					return coreerrors.Wrap(
						fmt.Errorf("read %s %s response: %w", method, url, err),
						coreerrors.CategoryNetworkTransient,
						"response_read_failed",
						"",
						true,
					)
				}
				if err := json.Unmarshal(raw, out); err != nil {
					return coreerrors.Wrap(
						fmt.Errorf("decode %s %s response: %w", method, url, err),
						coreerrors.CategoryInternalFailure,
						"response_decode_failed",
						"",
						false,
					)
				}
				return nil
			}
		}
		return classifyResponse(method, url, response)
	})
	return status, err
}

// classifyResponse maps a non-success status to the error taxonomy.
// Rate limits surface the host's reset time so the retry layer can
// wait for it instead of backing off blindly.
func classifyResponse(method, url string, response *http.Response) error {
	status := response.StatusCode
	snippet := responseSnippet(response.Body)

	if status == http.StatusForbidden || status == http.StatusTooManyRequests {
		if reset, limited := rateLimitReset(response.Header); limited {
			return &retry.RateLimitError{
				Reset: reset,
				Err: coreerrors.Wrap(
					fmt.Errorf("%s %s: status %d: %s", method, url, status, snippet),
					coreerrors.CategoryRateLimited,
					"rate_limited",
					"the host rate limit budget is exhausted",
					true,
				),
			}
		}
	}
	if status >= 500 {
		return coreerrors.Wrap(
			fmt.Errorf("%s %s: status %d: %s", method, url, status, snippet),
			coreerrors.CategoryNetworkTransient,
			"host_server_error",
			"the host API failed transiently",
			true,
		)
	}
	return coreerrors.Wrap(
		fmt.Errorf("%s %s: status %d: %s", method, url, status, snippet),
		coreerrors.CategoryIOFailure,
		"host_status_unexpected",
		"the host API rejected the request",
		false,
	)
}

// rateLimitReset reads the host's rate-limit metadata headers. The
// second return is false when the response is not a rate limit at all.
func rateLimitReset(header http.Header) (time.Time, bool) {
	limited := header.Get("X-RateLimit-Remaining") == "0" || header.Get("Retry-After") != ""
	if !limited {
		return time.Time{}, false
	}
	if retryAfter := header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
			return time.Now().Add(time.Duration(seconds) * time.Second), true
		}
	}
	if reset := header.Get("X-RateLimit-Reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			return time.Unix(epoch, 0), true
		}
	}
	return time.Time{}, true
}

func responseSnippet(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 256))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
