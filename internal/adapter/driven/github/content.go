package github

import (
	"context"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v82/github"

	"github.com/jmswint/marginalia/internal/domain/port/driven"
)

// GetContent fetches the document text at the branch head via the repository
// contents API. Results are cached for a short TTL so the several reads per
// sync pass hit the network once. A missing file or branch maps to
// driven.ErrContentUnavailable.
func (c *Client) GetContent(ctx context.Context, repoKey, filePath, branch string) (string, error) {
	cacheKey := repoKey + "\x00" + filePath + "\x00" + branch
	if cached, ok := c.contentCache.Get(cacheKey); ok {
		return cached.(string), nil
	}

	owner, repo, err := splitRepo(repoKey)
	if err != nil {
		return "", err
	}

	opts := &gh.RepositoryContentGetOptions{Ref: branch}
	file, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, filePath, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%s@%s:%s: %w", repoKey, branch, filePath, driven.ErrContentUnavailable)
		}
		return "", fmt.Errorf("fetching content for %s@%s:%s: %w", repoKey, branch, filePath, err)
	}
	if file == nil {
		// Path resolved to a directory listing, not a file.
		return "", fmt.Errorf("%s@%s:%s is not a file: %w", repoKey, branch, filePath, driven.ErrContentUnavailable)
	}

	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding content for %s@%s:%s: %w", repoKey, branch, filePath, err)
	}

	c.contentCache.SetDefault(cacheKey, content)
	return content, nil
}

// InvalidateContent drops the cached document text for a scope, forcing the
// next read to refetch. Callers use this after pushing document changes.
func (c *Client) InvalidateContent(repoKey, filePath, branch string) {
	c.contentCache.Delete(repoKey + "\x00" + filePath + "\x00" + branch)
}
