// Package github implements the RemoteReview and ContentProvider ports using
// the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	gocache "github.com/patrickmn/go-cache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/jmswint/marginalia/internal/domain/model"
	"github.com/jmswint/marginalia/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.RemoteReview    = (*Client)(nil)
	_ driven.ContentProvider = (*Client)(nil)
)

// contentCacheTTL bounds how stale served document content can be. Sync
// passes within one TTL window see identical content, which also keys the
// orphan scan debounce upstream.
const contentCacheTTL = 30 * time.Second

// Client implements the driven.RemoteReview and driven.ContentProvider ports
// using the go-github library.
type Client struct {
	gh           *gh.Client
	token        string // Stored for GraphQL Authorization header.
	graphqlURL   string // "https://api.github.com/graphql" in production; derived from baseURL in tests.
	contentCache *gocache.Cache
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{
		gh:           client,
		token:        token,
		graphqlURL:   "https://api.github.com/graphql",
		contentCache: gocache.New(contentCacheTTL, time.Minute),
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	// Derive graphqlURL from baseURL so httptest servers can intercept GraphQL requests.
	graphqlU := *u
	graphqlU.Path = "/graphql"

	return &Client{
		gh:           client,
		token:        token,
		graphqlURL:   graphqlU.String(),
		contentCache: gocache.New(contentCacheTTL, time.Minute),
	}, nil
}

// ListReviewComments retrieves every review comment in the pull request that
// targets the given file path. It handles pagination automatically and maps
// go-github types to the boundary model.
func (c *Client) ListReviewComments(ctx context.Context, repoKey string, prNumber int, path string) ([]model.RemoteComment, error) {
	owner, repo, err := splitRepo(repoKey)
	if err != nil {
		return nil, err
	}

	opts := &gh.PullRequestListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var all []model.RemoteComment

	for {
		comments, resp, err := c.gh.PullRequests.ListComments(ctx, owner, repo, prNumber, opts)
		if err != nil {
			return nil, fmt.Errorf("listing review comments for %s#%d (page %d): %w", repoKey, prNumber, opts.Page, err)
		}

		logRateLimit(resp, repoKey+"/review-comments", opts.Page, len(comments))

		for _, comment := range comments {
			if comment.GetPath() != path {
				continue
			}
			all = append(all, mapRemoteComment(comment))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if all == nil {
		all = []model.RemoteComment{}
	}

	return all, nil
}

// CreateReviewComment posts a new thread-root review comment at the given
// line and returns its remote id. If the commit id is empty, the current PR
// head SHA is fetched first to avoid posting against a stale commit. An HTTP
// 422 from the host maps to driven.ErrOutsideDiff.
func (c *Client) CreateReviewComment(ctx context.Context, repoKey string, prNumber int, input driven.ReviewCommentInput) (string, error) {
	owner, repo, err := splitRepo(repoKey)
	if err != nil {
		return "", err
	}

	commitID := input.CommitID
	if commitID == "" {
		pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, prNumber)
		if err != nil {
			return "", fmt.Errorf("fetching PR head SHA before comment create: %w", err)
		}
		commitID = pr.GetHead().GetSHA()
	}

	comment := &gh.PullRequestComment{
		Body:     gh.Ptr(input.Body),
		Path:     gh.Ptr(input.Path),
		CommitID: gh.Ptr(commitID),
		Line:     gh.Ptr(input.Line),
		Side:     gh.Ptr("RIGHT"),
	}
	if input.StartLine > 0 && input.StartLine < input.Line {
		comment.StartLine = gh.Ptr(input.StartLine)
		comment.StartSide = gh.Ptr("RIGHT")
	}

	created, _, err := c.gh.PullRequests.CreateComment(ctx, owner, repo, prNumber, comment)
	if err != nil {
		if isUnprocessable(err) {
			return "", fmt.Errorf("creating review comment on %s#%d: %w", repoKey, prNumber, driven.ErrOutsideDiff)
		}
		return "", fmt.Errorf("creating review comment on %s#%d: %w", repoKey, prNumber, err)
	}

	return formatRemoteID(created.GetID()), nil
}

// ReplyToComment posts a reply to an existing review thread and returns the
// new comment's remote id. parentID must be the thread root's remote id.
func (c *Client) ReplyToComment(ctx context.Context, repoKey string, prNumber int, parentID, body string) (string, error) {
	owner, repo, err := splitRepo(repoKey)
	if err != nil {
		return "", err
	}

	parent, err := parseRemoteID(parentID)
	if err != nil {
		return "", err
	}

	created, resp, err := c.gh.PullRequests.CreateCommentInReplyTo(ctx, owner, repo, prNumber, body, parent)
	if err != nil {
		return "", fmt.Errorf("replying to comment %s on %s#%d: %w", parentID, repoKey, prNumber, err)
	}

	logRateLimit(resp, repoKey+"/reply-comment", 0, 1)
	return formatRemoteID(created.GetID()), nil
}

// UpdateComment replaces the body of an existing review comment.
func (c *Client) UpdateComment(ctx context.Context, repoKey, commentID, body string) error {
	owner, repo, err := splitRepo(repoKey)
	if err != nil {
		return err
	}

	id, err := parseRemoteID(commentID)
	if err != nil {
		return err
	}

	_, _, err = c.gh.PullRequests.EditComment(ctx, owner, repo, id, &gh.PullRequestComment{
		Body: gh.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("updating comment %s on %s: %w", commentID, repoKey, err)
	}

	return nil
}

// DeleteComment removes a review comment on the remote host.
func (c *Client) DeleteComment(ctx context.Context, repoKey, commentID string) error {
	owner, repo, err := splitRepo(repoKey)
	if err != nil {
		return err
	}

	id, err := parseRemoteID(commentID)
	if err != nil {
		return err
	}

	_, err = c.gh.PullRequests.DeleteComment(ctx, owner, repo, id)
	if err != nil {
		return fmt.Errorf("deleting comment %s on %s: %w", commentID, repoKey, err)
	}

	return nil
}

// mapRemoteComment converts a go-github PullRequestComment to the boundary model.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapRemoteComment(c *gh.PullRequestComment) model.RemoteComment {
	var inReplyTo string
	if c.InReplyTo != nil {
		inReplyTo = formatRemoteID(c.GetInReplyTo())
	}

	return model.RemoteComment{
		ID:          formatRemoteID(c.GetID()),
		Body:        c.GetBody(),
		Path:        c.GetPath(),
		Line:        c.GetLine(),
		StartLine:   c.GetStartLine(),
		DiffHunk:    c.GetDiffHunk(),
		InReplyToID: inReplyTo,
		AuthorLogin: c.GetUser().GetLogin(),
		CreatedAt:   c.GetCreatedAt().Time,
		UpdatedAt:   c.GetUpdatedAt().Time,
	}
}

// isUnprocessable reports whether the error is the host's 422 rejection for
// a comment position outside the pull request diff.
func isUnprocessable(err error) bool {
	var ghErr *gh.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnprocessableEntity
}

// formatRemoteID renders a GitHub numeric comment id as the opaque string id
// used at the port boundary.
func formatRemoteID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// parseRemoteID parses an opaque remote id back to GitHub's numeric form.
func parseRemoteID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid remote comment id %q: %w", id, err)
	}
	return n, nil
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
