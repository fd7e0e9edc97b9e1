// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// WatchSpec binds one document to the pull request whose review threads
// mirror its comments. Parsed from "owner/repo#<pr>:<path>[@branch]".
type WatchSpec struct {
	RepoKey  string
	PRNumber int
	FilePath string
	Branch   string
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken  string
	SyncInterval time.Duration
	DBPath       string
	Watches      []WatchSpec
}

// Load reads configuration from environment variables and returns a validated Config.
// MARGINALIA_GITHUB_TOKEN is required. Optional variables with defaults:
// MARGINALIA_SYNC_INTERVAL (2m), MARGINALIA_DB_PATH (marginalia.db).
// MARGINALIA_WATCH is a comma-separated list of watch specs, e.g.
// "acme/docs#42:guides/setup.md@feature-1,acme/docs#42:README.md".
func Load() (*Config, error) {
	token := os.Getenv("MARGINALIA_GITHUB_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("MARGINALIA_GITHUB_TOKEN is required")
	}

	syncInterval := 2 * time.Minute
	if v, ok := os.LookupEnv("MARGINALIA_SYNC_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("MARGINALIA_SYNC_INTERVAL has invalid duration %q: %w", v, err)
		}
		syncInterval = parsed
	}

	dbPath := "marginalia.db"
	if v, ok := os.LookupEnv("MARGINALIA_DB_PATH"); ok {
		dbPath = v
	}

	var watches []WatchSpec
	if v, ok := os.LookupEnv("MARGINALIA_WATCH"); ok && v != "" {
		for _, raw := range strings.Split(v, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			spec, err := ParseWatchSpec(raw)
			if err != nil {
				return nil, fmt.Errorf("MARGINALIA_WATCH entry %q: %w", raw, err)
			}
			watches = append(watches, spec)
		}
	}
	if watches == nil {
		watches = []WatchSpec{}
	}

	return &Config{
		GitHubToken:  token,
		SyncInterval: syncInterval,
		DBPath:       dbPath,
		Watches:      watches,
	}, nil
}

// ParseWatchSpec parses one "owner/repo#<pr>:<path>[@branch]" watch entry.
func ParseWatchSpec(raw string) (WatchSpec, error) {
	repoPart, rest, ok := strings.Cut(raw, "#")
	if !ok {
		return WatchSpec{}, fmt.Errorf("missing '#<pr-number>'")
	}
	if !strings.Contains(repoPart, "/") {
		return WatchSpec{}, fmt.Errorf("repo %q: expected owner/repo", repoPart)
	}

	prPart, pathPart, ok := strings.Cut(rest, ":")
	if !ok {
		return WatchSpec{}, fmt.Errorf("missing ':<file-path>'")
	}

	prNumber, err := strconv.Atoi(prPart)
	if err != nil || prNumber <= 0 {
		return WatchSpec{}, fmt.Errorf("invalid PR number %q", prPart)
	}

	filePath, branch, _ := strings.Cut(pathPart, "@")
	if filePath == "" {
		return WatchSpec{}, fmt.Errorf("empty file path")
	}

	return WatchSpec{
		RepoKey:  repoPart,
		PRNumber: prNumber,
		FilePath: filePath,
		Branch:   branch,
	}, nil
}
