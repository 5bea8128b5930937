package github

import "time"

// Config controls discovery against the GitHub REST API.
type Config struct {
	Token           string
	Host            string
	Topic           string
	NoTopicSearch   bool
	MaxRepositories int
	PerPage         int
	Timeout         time.Duration
}

// DefaultConfig returns topic-mode discovery against github.com.
func DefaultConfig() *Config {
	return &Config{
		Host:    "github.com",
		Topic:   "ha-discover",
		PerPage: 100,
		Timeout: 30 * time.Second,
	}
}

// Repository is a discovered repository.
type Repository struct {
	Name          string `json:"name"`
	Owner         string `json:"owner"`
	Description   string `json:"description"`
	URL           string `json:"url"`
	DefaultBranch string `json:"default_branch"`
	Stars         int    `json:"stars"`
}

// FullName returns owner/name.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

type searchRepositoriesResponse struct {
	TotalCount int              `json:"total_count"`
	Items      []repositoryItem `json:"items"`
}

type repositoryItem struct {
	Name        string  `json:"name"`
	FullName    string  `json:"full_name"`
	Description *string `json:"description"`
	HTMLURL     string  `json:"html_url"`
	Branch      string  `json:"default_branch"`
	Stars       int     `json:"stargazers_count"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
}

func (it repositoryItem) toRepository() Repository {
	r := Repository{
		Name:          it.Name,
		Owner:         it.Owner.Login,
		URL:           it.HTMLURL,
		DefaultBranch: it.Branch,
		Stars:         it.Stars,
	}
	if it.Description != nil {
		r.Description = *it.Description
	}
	if r.DefaultBranch == "" {
		r.DefaultBranch = "main"
	}
	return r
}

type contentResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	Path     string `json:"path"`
}

type codeSearchResponse struct {
	Items []struct {
		Path       string         `json:"path"`
		Repository repositoryItem `json:"repository"`
	} `json:"items"`
}
