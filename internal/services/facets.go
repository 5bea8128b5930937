package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"hadiscover/internal/models"
)

type FacetRequest struct {
	Query string `form:"q" json:"query"`
	SearchFilters
}

type RepositoryFacet struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
	Stars int    `json:"stars"`
	Count int64  `json:"count"`
}

type BlueprintFacet struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

type TriggerFacet struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

type ActionDomainFacet struct {
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}

type ActionFacet struct {
	Call  string `json:"call"`
	Count int64  `json:"count"`
}

type FacetResponse struct {
	Repositories  []RepositoryFacet   `json:"repositories"`
	Blueprints    []BlueprintFacet    `json:"blueprints"`
	Triggers      []TriggerFacet      `json:"triggers"`
	ActionDomains []ActionDomainFacet `json:"action_domains"`
	Actions       []ActionFacet       `json:"actions"`
}

func emptyFacets() *FacetResponse {
	return &FacetResponse{
		Repositories:  []RepositoryFacet{},
		Blueprints:    []BlueprintFacet{},
		Triggers:      []TriggerFacet{},
		ActionDomains: []ActionDomainFacet{},
		Actions:       []ActionFacet{},
	}
}

// Facets counts values per dimension. Each dimension honours the text query
// and every active filter except its own, so selecting a value never hides
// its siblings.
func (s *SearchService) Facets(ctx context.Context, req *FacetRequest) (resp *FacetResponse) {
	if req == nil {
		req = &FacetRequest{}
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("facets panicked: %v", r)
			resp = emptyFacets()
		}
	}()

	out := emptyFacets()
	q, f := req.Query, req.SearchFilters

	err := s.filtered(ctx, q, f, dimRepo).
		Select("repositories.owner AS owner, repositories.name AS name, " +
			"MAX(repositories.stars) AS stars, COUNT(automations.id) AS count").
		Where("repositories.id IS NOT NULL").
		Group("repositories.owner, repositories.name").
		Order("COUNT(automations.id) DESC, repositories.owner ASC, repositories.name ASC").
		Limit(facetLimit).
		Scan(&out.Repositories).Error
	if err != nil {
		s.logger.WithError(err).Error("repository facet failed")
		return emptyFacets()
	}

	err = s.filtered(ctx, q, f, dimBlueprint).
		Select("automations.blueprint_path AS path, COUNT(automations.id) AS count").
		Where("automations.blueprint_path IS NOT NULL AND automations.blueprint_path <> ''").
		Group("automations.blueprint_path").
		Order("COUNT(automations.id) DESC, automations.blueprint_path ASC").
		Limit(facetLimit).
		Scan(&out.Blueprints).Error
	if err != nil {
		s.logger.WithError(err).Error("blueprint facet failed")
		return emptyFacets()
	}

	triggers, err := s.listValues(ctx, q, f, dimTrigger, "automations.trigger_types")
	if err != nil {
		s.logger.WithError(err).Error("trigger facet failed")
		return emptyFacets()
	}
	for _, c := range topCounts(countTokens(triggers, identity)) {
		out.Triggers = append(out.Triggers, TriggerFacet{Type: c.value, Count: c.count})
	}

	domainRows, err := s.listValues(ctx, q, f, dimActionDomain, "automations.action_calls")
	if err != nil {
		s.logger.WithError(err).Error("action domain facet failed")
		return emptyFacets()
	}
	for _, c := range topCounts(countTokens(domainRows, actionDomain)) {
		out.ActionDomains = append(out.ActionDomains, ActionDomainFacet{Domain: c.value, Count: c.count})
	}

	actionRows, err := s.listValues(ctx, q, f, dimAction, "automations.action_calls")
	if err != nil {
		s.logger.WithError(err).Error("action facet failed")
		return emptyFacets()
	}
	for _, c := range topCounts(countTokens(actionRows, identity)) {
		out.Actions = append(out.Actions, ActionFacet{Call: c.value, Count: c.count})
	}

	if out.Repositories == nil {
		out.Repositories = []RepositoryFacet{}
	}
	if out.Blueprints == nil {
		out.Blueprints = []BlueprintFacet{}
	}
	return out
}

func (s *SearchService) listValues(ctx context.Context, q string, f SearchFilters, skip facetDimension, column string) ([]string, error) {
	var raw []sql.NullString
	err := s.filtered(ctx, q, f, skip).
		Where(column + " IS NOT NULL AND " + column + " <> ''").
		Pluck(column, &raw).Error
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(raw))
	for _, r := range raw {
		if r.Valid {
			values = append(values, r.String)
		}
	}
	return values, nil
}

type valueCount struct {
	value string
	count int64
}

func identity(token string) string { return token }

// actionDomain is the part before the first dot; calls without one have no domain.
func actionDomain(call string) string {
	domain, _, ok := strings.Cut(call, ".")
	if !ok {
		return ""
	}
	return domain
}

// countTokens counts, per key, the rows containing at least one token mapped
// to that key.
func countTokens(rows []string, key func(string) string) map[string]int64 {
	counts := make(map[string]int64)
	for _, row := range rows {
		seen := make(map[string]struct{})
		for _, token := range models.SplitList(row) {
			k := key(token)
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			counts[k]++
		}
	}
	return counts
}

// topCounts sorts by count descending then value ascending and keeps facetLimit.
func topCounts(counts map[string]int64) []valueCount {
	out := make([]valueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, valueCount{value: v, count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].value < out[j].value
	})
	if len(out) > facetLimit {
		out = out[:facetLimit]
	}
	return out
}
