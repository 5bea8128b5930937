package services

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

// facetDimension names the filter a facet query leaves out.
type facetDimension int

const (
	dimNone facetDimension = iota
	dimRepo
	dimBlueprint
	dimTrigger
	dimActionDomain
	dimAction
)

// filtered builds the automations/repositories join restricted by the text
// query and every filter except the one belonging to skip.
func (s *SearchService) filtered(ctx context.Context, query string, f SearchFilters, skip facetDimension) *gorm.DB {
	db := s.db.WithContext(ctx).
		Table("automations").
		Joins("LEFT JOIN repositories ON repositories.id = automations.repository_id")

	if query != "" {
		db = db.Scopes(textMatch(query))
	}
	if skip != dimRepo && f.Repo != "" {
		if owner, name, ok := strings.Cut(f.Repo, "/"); ok {
			db = db.Where("repositories.owner = ? AND repositories.name = ?", owner, name)
		}
	}
	if skip != dimBlueprint && f.Blueprint != "" {
		db = db.Where("automations.blueprint_path = ?", f.Blueprint)
	}
	if skip != dimTrigger && f.Trigger != "" {
		db = db.Scopes(listContains("automations.trigger_types", f.Trigger))
	}
	if skip != dimActionDomain && f.ActionDomain != "" {
		db = db.Scopes(domainMatch("automations.action_calls", f.ActionDomain))
	}
	if skip != dimAction && f.Action != "" {
		db = db.Scopes(listContains("automations.action_calls", f.Action))
	}
	return db
}

var textColumns = []string{
	"automations.alias",
	"automations.description",
	"automations.trigger_types",
	"automations.action_calls",
	"repositories.owner",
	"repositories.name",
	"repositories.description",
}

// textMatch is a case-insensitive literal substring match over textColumns.
// Both sides are folded by the database so they agree on which letters fold.
func textMatch(query string) func(*gorm.DB) *gorm.DB {
	pattern := "%" + escapeLike(query) + "%"
	clauses := make([]string, len(textColumns))
	args := make([]interface{}, len(textColumns))
	for i, col := range textColumns {
		clauses[i] = "LOWER(" + col + ") LIKE LOWER(?) ESCAPE '\\'"
		args[i] = pattern
	}
	expr := "(" + strings.Join(clauses, " OR ") + ")"
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(expr, args...)
	}
}

// listContains matches value as a whole element of a comma-joined column.
func listContains(column, value string) func(*gorm.DB) *gorm.DB {
	v := escapeLike(value)
	expr := "(" + column + " = ? OR " +
		column + " LIKE ? ESCAPE '\\' OR " +
		column + " LIKE ? ESCAPE '\\' OR " +
		column + " LIKE ? ESCAPE '\\')"
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(expr, value, v+",%", "%,"+v+",%", "%,"+v)
	}
}

// domainMatch matches any element of a comma-joined column that starts with
// "domain.".
func domainMatch(column, domain string) func(*gorm.DB) *gorm.DB {
	d := escapeLike(domain)
	expr := "(" + column + " LIKE ? ESCAPE '\\' OR " + column + " LIKE ? ESCAPE '\\')"
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(expr, d+".%", "%,"+d+".%")
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
