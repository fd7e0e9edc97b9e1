package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmswint/marginalia/internal/domain/model"
)

// graphqlHTTPClient is the HTTP client used for GraphQL requests.
// It enforces a 30-second timeout as a safety net alongside context cancellation.
var graphqlHTTPClient = &http.Client{Timeout: 30 * time.Second}

const threadMetadataQuery = `query($owner: String!, $repo: String!, $pr: Int!) {
	repository(owner: $owner, name: $repo) {
		pullRequest(number: $pr) {
			reviewThreads(first: 100) {
				pageInfo {
					hasNextPage
				}
				nodes {
					id
					isResolved
					comments(first: 50) {
						nodes {
							databaseId
							reactions(first: 100) {
								nodes {
									content
									user { login }
								}
							}
						}
					}
				}
			}
		}
	}
}`

// graphqlRequest is the JSON body sent to the GitHub GraphQL API.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// graphqlResponse represents the expected shape of a GitHub GraphQL response
// for review thread metadata.
type graphqlResponse struct {
	Data struct {
		Repository struct {
			PullRequest struct {
				ReviewThreads struct {
					PageInfo struct {
						HasNextPage bool `json:"hasNextPage"`
					} `json:"pageInfo"`
					Nodes []struct {
						ID         string `json:"id"`
						IsResolved bool   `json:"isResolved"`
						Comments   struct {
							Nodes []struct {
								DatabaseID int64 `json:"databaseId"`
								Reactions  struct {
									Nodes []struct {
										Content string `json:"content"`
										User    struct {
											Login string `json:"login"`
										} `json:"user"`
									} `json:"nodes"`
								} `json:"reactions"`
							} `json:"nodes"`
						} `json:"comments"`
					} `json:"nodes"`
				} `json:"reviewThreads"`
			} `json:"pullRequest"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchThreadMetadata queries the GitHub GraphQL API for review thread state:
// thread id, resolution flag, and reactions, keyed by the thread root's
// comment id. Reactions across all comments in a thread are attributed to
// the root, which owns reaction state in the local model.
//
// This is a supplementary data source. All error paths return an empty map
// and log a warning; failures never propagate to callers.
func (c *Client) FetchThreadMetadata(ctx context.Context, repoKey string, prNumber int) (map[string]model.ThreadMetadata, error) {
	if c.token == "" {
		return map[string]model.ThreadMetadata{}, nil
	}

	owner, repo, err := splitRepo(repoKey)
	if err != nil {
		return map[string]model.ThreadMetadata{}, nil
	}

	reqBody := graphqlRequest{
		Query: threadMetadataQuery,
		Variables: map[string]any{
			"owner": owner,
			"repo":  repo,
			"pr":    prNumber,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		slog.Warn("graphql: failed to marshal request", "error", err)
		return map[string]model.ThreadMetadata{}, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(bodyBytes))
	if err != nil {
		slog.Warn("graphql: failed to create request", "error", err)
		return map[string]model.ThreadMetadata{}, nil
	}
	httpReq.Header.Set("Authorization", fmt.Sprintf("bearer %s", c.token))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := graphqlHTTPClient.Do(httpReq)
	if err != nil {
		slog.Warn("graphql: request failed", "error", err, "repo", repoKey, "pr", prNumber)
		return map[string]model.ThreadMetadata{}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("graphql: non-200 response", "status", resp.StatusCode, "repo", repoKey, "pr", prNumber)
		return map[string]model.ThreadMetadata{}, nil
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		slog.Warn("graphql: failed to decode response", "error", err, "repo", repoKey, "pr", prNumber)
		return map[string]model.ThreadMetadata{}, nil
	}

	if len(gqlResp.Errors) > 0 {
		slog.Warn("graphql: response contains errors",
			"errors", gqlResp.Errors[0].Message,
			"repo", repoKey,
			"pr", prNumber,
		)
		return map[string]model.ThreadMetadata{}, nil
	}

	threads := gqlResp.Data.Repository.PullRequest.ReviewThreads

	if threads.PageInfo.HasNextPage {
		slog.Warn("graphql: review threads exceed 100, pagination needed",
			"repo", repoKey,
			"pr", prNumber,
		)
	}

	result := make(map[string]model.ThreadMetadata, len(threads.Nodes))
	for _, thread := range threads.Nodes {
		if len(thread.Comments.Nodes) == 0 || thread.Comments.Nodes[0].DatabaseID == 0 {
			continue
		}

		rootID := formatRemoteID(thread.Comments.Nodes[0].DatabaseID)

		var reactions []model.RemoteReaction
		for _, comment := range thread.Comments.Nodes {
			for _, r := range comment.Reactions.Nodes {
				if r.User.Login == "" {
					continue
				}
				reactions = append(reactions, model.RemoteReaction{
					Content:   normalizeReaction(r.Content),
					UserLogin: r.User.Login,
				})
			}
		}

		result[rootID] = model.ThreadMetadata{
			ThreadID:   thread.ID,
			IsResolved: thread.IsResolved,
			Reactions:  reactions,
		}
	}

	return result, nil
}

// normalizeReaction lowercases GitHub's GraphQL reaction enum (THUMBS_UP,
// HEART, ...) into the stable emoji keys used by the local model.
func normalizeReaction(content string) string {
	switch content {
	case "THUMBS_UP":
		return "+1"
	case "THUMBS_DOWN":
		return "-1"
	case "LAUGH":
		return "laugh"
	case "HOORAY":
		return "hooray"
	case "CONFUSED":
		return "confused"
	case "HEART":
		return "heart"
	case "ROCKET":
		return "rocket"
	case "EYES":
		return "eyes"
	default:
		return content
	}
}
