package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cli/go-gh/v2/pkg/api"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// AutomationFilePaths are the locations probed for automation files.
var AutomationFilePaths = []string{
	"automations.yaml",
	"automations.yml",
	"config/automations.yaml",
	"config/automations.yml",
	"home-assistant/automations.yaml",
	"home-assistant/automations.yml",
}

// The search API never returns more than this many results per query.
const maxSearchResults = 1000

// Client talks to the GitHub REST API through go-gh.
type Client struct {
	rest   *api.RESTClient
	config *Config
	logger *logrus.Logger
}

// NewClient builds a client. transport may be nil, in which case an
// OpenTelemetry-instrumented default transport is used.
func NewClient(cfg *Config, transport http.RoundTripper, logger *logrus.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.PerPage <= 0 || cfg.PerPage > 100 {
		cfg.PerPage = 100
	}
	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	rest, err := api.NewRESTClient(api.ClientOptions{
		AuthToken: cfg.Token,
		Host:      cfg.Host,
		Timeout:   cfg.Timeout,
		Transport: transport,
		Headers:   map[string]string{"Accept": "application/vnd.github.v3+json"},
	})
	if err != nil {
		return nil, fmt.Errorf("create GitHub client: %w", err)
	}
	return &Client{rest: rest, config: cfg, logger: logger}, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	c.logger.Debugf("GitHub API Request: GET %s", path)
	if err := c.rest.DoWithContext(ctx, http.MethodGet, path, nil, out); err != nil {
		return classify(err)
	}
	return nil
}

// SearchRepositories lists candidate repositories, deduplicated by URL and
// capped at MaxRepositories when that is positive.
func (c *Client) SearchRepositories(ctx context.Context) ([]Repository, error) {
	if c.config.NoTopicSearch {
		return c.searchByFilename(ctx)
	}
	return c.searchByTopic(ctx)
}

func (c *Client) searchByTopic(ctx context.Context) ([]Repository, error) {
	collector := newRepoCollector(c.config.MaxRepositories)
	query := "topic:" + c.config.Topic

	for page := 1; (page-1)*c.config.PerPage < maxSearchResults; page++ {
		var resp searchRepositoriesResponse
		if err := c.get(ctx, searchPath("search/repositories", query, page, c.config.PerPage), &resp); err != nil {
			return collector.repos, fmt.Errorf("search repositories page %d: %w", page, err)
		}
		for _, item := range resp.Items {
			if collector.add(item.toRepository()) {
				return collector.repos, nil
			}
		}
		if len(resp.Items) < c.config.PerPage {
			break
		}
	}

	c.logger.Infof("Found %d repositories with topic '%s'", len(collector.repos), c.config.Topic)
	return collector.repos, nil
}

// searchByFilename finds repositories through code search. Code search items
// lack branch and star data, so each new repository is looked up once.
func (c *Client) searchByFilename(ctx context.Context) ([]Repository, error) {
	collector := newRepoCollector(c.config.MaxRepositories)
	seen := make(map[string]struct{})
	query := "filename:automations.yaml"

	for page := 1; (page-1)*c.config.PerPage < maxSearchResults; page++ {
		var resp codeSearchResponse
		if err := c.get(ctx, searchPath("search/code", query, page, c.config.PerPage), &resp); err != nil {
			return collector.repos, fmt.Errorf("search code page %d: %w", page, err)
		}
		for _, item := range resp.Items {
			owner, name := item.Repository.Owner.Login, item.Repository.Name
			if _, dup := seen[owner+"/"+name]; dup {
				continue
			}
			seen[owner+"/"+name] = struct{}{}

			repo, err := c.GetRepository(ctx, owner, name)
			if err != nil {
				if IsRateLimit(err) {
					return collector.repos, err
				}
				c.logger.Warnf("Skipping %s/%s: %v", owner, name, err)
				continue
			}
			if collector.add(*repo) {
				return collector.repos, nil
			}
		}
		if len(resp.Items) < c.config.PerPage {
			break
		}
	}

	c.logger.Infof("Found %d repositories containing automations.yaml", len(collector.repos))
	return collector.repos, nil
}

// GetRepository fetches repository metadata.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var item repositoryItem
	if err := c.get(ctx, fmt.Sprintf("repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo)), &item); err != nil {
		return nil, err
	}
	r := item.toRepository()
	return &r, nil
}

// GetStarCount returns the stargazer count of owner/repo.
func (c *Client) GetStarCount(ctx context.Context, owner, repo string) (int, error) {
	r, err := c.GetRepository(ctx, owner, repo)
	if err != nil {
		return 0, err
	}
	return r.Stars, nil
}

// FindAutomationFiles probes AutomationFilePaths and returns those present on
// branch. Only rate limiting aborts the probe.
func (c *Client) FindAutomationFiles(ctx context.Context, owner, repo, branch string) ([]string, error) {
	found := []string{}
	for _, path := range AutomationFilePaths {
		var meta contentResponse
		err := c.get(ctx, contentsPath(owner, repo, path, branch), &meta)
		switch {
		case err == nil:
			if meta.Type == "" || meta.Type == "file" {
				found = append(found, path)
				c.logger.Debugf("Found automation file: %s/%s/%s", owner, repo, path)
			}
		case IsRateLimit(err):
			return found, err
		case isNotFound(err):
		default:
			c.logger.Debugf("Probe %s/%s/%s failed: %v", owner, repo, path, err)
		}
	}
	return found, nil
}

// GetFileContent returns the decoded file content, or "" with a nil error
// when the file does not exist.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, branch string) (string, error) {
	var meta contentResponse
	if err := c.get(ctx, contentsPath(owner, repo, path, branch), &meta); err != nil {
		if isNotFound(err) {
			c.logger.Debugf("File not found: %s/%s/%s", owner, repo, path)
			return "", nil
		}
		return "", fmt.Errorf("fetch %s/%s/%s: %w", owner, repo, path, err)
	}
	if meta.Encoding != "" && meta.Encoding != "base64" {
		return "", fmt.Errorf("unsupported content encoding %q for %s", meta.Encoding, path)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(meta.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode %s/%s/%s: %w", owner, repo, path, err)
	}
	return string(raw), nil
}

func searchPath(endpoint, query string, page, perPage int) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("per_page", fmt.Sprint(perPage))
	v.Set("page", fmt.Sprint(page))
	return endpoint + "?" + v.Encode()
}

func contentsPath(owner, repo, path, branch string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	p := fmt.Sprintf("repos/%s/%s/contents/%s", url.PathEscape(owner), url.PathEscape(repo), strings.Join(segments, "/"))
	if branch != "" {
		p += "?ref=" + url.QueryEscape(branch)
	}
	return p
}

type repoCollector struct {
	limit int
	seen  map[string]struct{}
	repos []Repository
}

func newRepoCollector(limit int) *repoCollector {
	return &repoCollector{limit: limit, seen: make(map[string]struct{}), repos: []Repository{}}
}

// add records r unless already seen and reports whether the limit is reached.
func (rc *repoCollector) add(r Repository) bool {
	if _, dup := rc.seen[r.URL]; !dup {
		rc.seen[r.URL] = struct{}{}
		rc.repos = append(rc.repos, r)
	}
	return rc.limit > 0 && len(rc.repos) >= rc.limit
}
