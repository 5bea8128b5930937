package services

import (
	"context"
	"time"

	"hadiscover/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultPerPage = 30
	MinPerPage     = 10
	MaxPerPage     = 100
	facetLimit     = 20
)

// SearchService runs substring search, filtering and faceting over stored
// automations. Storage failures are logged and degrade to empty responses.
type SearchService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewSearchService(db *gorm.DB, logger *logrus.Logger) *SearchService {
	if logger == nil {
		logger = logrus.New()
	}
	return &SearchService{db: db, logger: logger}
}

// SearchFilters narrows results. Empty fields are inactive.
type SearchFilters struct {
	Repo         string `form:"repo" json:"repo,omitempty"` // owner/name
	Blueprint    string `form:"blueprint" json:"blueprint,omitempty"`
	Trigger      string `form:"trigger" json:"trigger,omitempty"`
	ActionDomain string `form:"action_domain" json:"action_domain,omitempty"`
	Action       string `form:"action" json:"action,omitempty"`
}

func (f SearchFilters) IsEmpty() bool {
	return f.Repo == "" && f.Blueprint == "" && f.Trigger == "" && f.ActionDomain == "" && f.Action == ""
}

type SearchRequest struct {
	Query   string `form:"q" json:"query"`
	Page    int    `form:"page" json:"page"`
	PerPage int    `form:"per_page" json:"per_page"`
	SearchFilters
}

type RepositoryResult struct {
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Stars       int    `json:"stars"`
}

type AutomationResult struct {
	ID             uint                   `json:"id"`
	Alias          *string                `json:"alias"`
	Description    string                 `json:"description"`
	TriggerTypes   []string               `json:"trigger_types"`
	BlueprintPath  *string                `json:"blueprint_path"`
	BlueprintInput map[string]interface{} `json:"blueprint_input"`
	ActionCalls    []string               `json:"action_calls"`
	SourceFilePath string                 `json:"source_file_path"`
	GithubURL      string                 `json:"github_url"`
	StartLine      *int                   `json:"start_line"`
	EndLine        *int                   `json:"end_line"`
	Repository     RepositoryResult       `json:"repository"`
	IndexedAt      *string                `json:"indexed_at"`
}

type SearchResponse struct {
	Results []AutomationResult `json:"results"`
	Total   int64              `json:"total"`
	Page    int                `json:"page"`
	PerPage int                `json:"per_page"`
}

// automationRow is the flat shape scanned from the automations/repositories join.
type automationRow struct {
	ID              uint
	Alias           *string
	Description     *string
	TriggerTypes    models.StringList
	BlueprintPath   *string
	BlueprintInput  datatypes.JSONMap
	ActionCalls     models.StringList
	SourceFilePath  string
	GithubURL       string
	StartLine       *int
	EndLine         *int
	IndexedAt       *time.Time
	RepoName        *string
	RepoOwner       *string
	RepoDescription *string
	RepoURL         *string
	RepoStars       *int
}

const resultColumns = "automations.id, automations.alias, automations.description, automations.trigger_types, " +
	"automations.blueprint_path, automations.blueprint_input, automations.action_calls, " +
	"automations.source_file_path, automations.github_url, automations.start_line, automations.end_line, " +
	"automations.indexed_at, repositories.name AS repo_name, repositories.owner AS repo_owner, " +
	"repositories.description AS repo_description, repositories.url AS repo_url, repositories.stars AS repo_stars"

// NormalizePage clamps page to >= 1 and perPage into [MinPerPage, MaxPerPage];
// a zero perPage selects DefaultPerPage.
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case perPage == 0:
		perPage = DefaultPerPage
	case perPage < MinPerPage:
		perPage = MinPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return page, perPage
}

// Search returns one page of automations matching the query and filters,
// newest first. An empty query with no filters browses everything.
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) (resp *SearchResponse) {
	if req == nil {
		req = &SearchRequest{}
	}
	page, perPage := NormalizePage(req.Page, req.PerPage)
	resp = emptySearch(page, perPage)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("search panicked: %v", r)
			resp = emptySearch(page, perPage)
		}
	}()

	var total int64
	if err := s.filtered(ctx, req.Query, req.SearchFilters, dimNone).Count(&total).Error; err != nil {
		s.logger.WithError(err).Error("search count failed")
		return resp
	}
	resp.Total = total
	if total == 0 || int64(page-1) >= pageCount(total, perPage) {
		return resp
	}

	var rows []automationRow
	err := s.filtered(ctx, req.Query, req.SearchFilters, dimNone).
		Select(resultColumns).
		Order("automations.indexed_at DESC, automations.id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Scan(&rows).Error
	if err != nil {
		s.logger.WithError(err).Error("search query failed")
		return emptySearch(page, perPage)
	}

	for _, row := range rows {
		resp.Results = append(resp.Results, row.toResult())
	}
	s.logger.Debugf("search q=%q filters=%+v page=%d total=%d", req.Query, req.SearchFilters, page, total)
	return resp
}

// pageCount is the number of non-empty pages. Pages at or past it are empty,
// which also keeps the offset computation clear of overflow.
func pageCount(total int64, perPage int) int64 {
	return (total + int64(perPage) - 1) / int64(perPage)
}

func emptySearch(page, perPage int) *SearchResponse {
	return &SearchResponse{Results: []AutomationResult{}, Page: page, PerPage: perPage}
}

func (r automationRow) toResult() AutomationResult {
	res := AutomationResult{
		ID:             r.ID,
		Alias:          r.Alias,
		Description:    deref(r.Description),
		TriggerTypes:   nonNil(r.TriggerTypes),
		BlueprintPath:  r.BlueprintPath,
		ActionCalls:    nonNil(r.ActionCalls),
		SourceFilePath: r.SourceFilePath,
		GithubURL:      r.GithubURL,
		StartLine:      r.StartLine,
		EndLine:        r.EndLine,
		Repository: RepositoryResult{
			Name:        deref(r.RepoName),
			Owner:       deref(r.RepoOwner),
			Description: deref(r.RepoDescription),
			URL:         deref(r.RepoURL),
		},
	}
	if r.BlueprintPath != nil {
		res.BlueprintInput = map[string]interface{}{}
		for k, v := range r.BlueprintInput {
			res.BlueprintInput[k] = v
		}
	}
	if r.RepoStars != nil {
		res.Repository.Stars = *r.RepoStars
	}
	if r.IndexedAt != nil && !r.IndexedAt.IsZero() {
		ts := r.IndexedAt.UTC().Format(time.RFC3339)
		res.IndexedAt = &ts
	}
	return res
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil(l models.StringList) []string {
	if l == nil {
		return []string{}
	}
	return []string(l)
}
