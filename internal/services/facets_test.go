package services

import (
	"context"
	"fmt"
	"testing"

	"hadiscover/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedFacetCorpus(t *testing.T, db *gorm.DB) {
	t.Helper()
	alice := seedRepo(t, db, "alice", "ha-config", 10)
	bob := seedRepo(t, db, "bob", "smart-home", 3)

	seedAutomation(t, db, alice, automationSeed{alias: "a1", triggers: []string{"state", "time"}, actions: []string{"light.turn_on", "light.turn_off", "notify.mobile"}})
	seedAutomation(t, db, alice, automationSeed{alias: "a2", triggers: []string{"state"}, actions: []string{"switch.toggle"}, blueprint: "motion.yaml"})
	seedAutomation(t, db, alice, automationSeed{alias: "a3", triggers: []string{"sun"}, actions: []string{"light.turn_on", "delay"}})
	seedAutomation(t, db, bob, automationSeed{alias: "b1", triggers: []string{"time", "state"}, actions: []string{"notify.mobile"}, blueprint: "motion.yaml"})
	seedAutomation(t, db, bob, automationSeed{alias: "b2", triggers: []string{"zone"}, actions: []string{"light.turn_on"}})
}

func triggerCounts(f *FacetResponse) map[string]int64 {
	out := map[string]int64{}
	for _, tr := range f.Triggers {
		out[tr.Type] = tr.Count
	}
	return out
}

func TestFacets_NoFilters(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestSearch(t, db)
	seedFacetCorpus(t, db)

	f := svc.Facets(context.Background(), &FacetRequest{})

	assert.Equal(t, []RepositoryFacet{
		{Owner: "alice", Name: "ha-config", Stars: 10, Count: 3},
		{Owner: "bob", Name: "smart-home", Stars: 3, Count: 2},
	}, f.Repositories)
	assert.Equal(t, []BlueprintFacet{{Path: "motion.yaml", Count: 2}}, f.Blueprints)
	assert.Equal(t, []TriggerFacet{
		{Type: "state", Count: 3},
		{Type: "time", Count: 2},
		{Type: "sun", Count: 1},
		{Type: "zone", Count: 1},
	}, f.Triggers)
	assert.Equal(t, []ActionDomainFacet{
		{Domain: "light", Count: 3},
		{Domain: "notify", Count: 2},
		{Domain: "switch", Count: 1},
	}, f.ActionDomains)
	assert.Equal(t, []ActionFacet{
		{Call: "light.turn_on", Count: 3},
		{Call: "notify.mobile", Count: 2},
		{Call: "delay", Count: 1},
		{Call: "light.turn_off", Count: 1},
		{Call: "switch.toggle", Count: 1},
	}, f.Actions)
}

func TestFacets_SelfExclusion(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestSearch(t, db)
	seedFacetCorpus(t, db)
	ctx := context.Background()

	all := svc.Facets(ctx, &FacetRequest{})
	filtered := svc.Facets(ctx, &FacetRequest{SearchFilters: SearchFilters{Trigger: "state"}})

	assert.Equal(t, triggerCounts(all), triggerCounts(filtered), "trigger facet ignores its own filter")
	assert.Equal(t, []RepositoryFacet{
		{Owner: "alice", Name: "ha-config", Stars: 10, Count: 2},
		{Owner: "bob", Name: "smart-home", Stars: 3, Count: 1},
	}, filtered.Repositories)
	assert.Equal(t, []BlueprintFacet{{Path: "motion.yaml", Count: 2}}, filtered.Blueprints)
	assert.Equal(t, []ActionFacet{
		{Call: "notify.mobile", Count: 2},
		{Call: "light.turn_off", Count: 1},
		{Call: "light.turn_on", Count: 1},
		{Call: "switch.toggle", Count: 1},
	}, filtered.Actions)
}

func TestFacets_RepoFilterKeepsSiblingRepos(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestSearch(t, db)
	seedFacetCorpus(t, db)

	f := svc.Facets(context.Background(), &FacetRequest{SearchFilters: SearchFilters{Repo: "bob/smart-home"}})
	assert.Len(t, f.Repositories, 2)
	assert.Equal(t, map[string]int64{"time": 1, "state": 1, "zone": 1}, triggerCounts(f))
}

func TestFacets_TextQueryApplies(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestSearch(t, db)
	seedFacetCorpus(t, db)

	f := svc.Facets(context.Background(), &FacetRequest{Query: "SMART"})
	assert.Equal(t, []RepositoryFacet{{Owner: "bob", Name: "smart-home", Stars: 3, Count: 2}}, f.Repositories)
	assert.Equal(t, []ActionDomainFacet{{Domain: "light", Count: 1}, {Domain: "notify", Count: 1}}, f.ActionDomains)
}

func TestFacets_CappedAtLimit(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestSearch(t, db)
	repo := seedRepo(t, db, "alice", "ha-config", 0)
	for i := 0; i < facetLimit+5; i++ {
		seedAutomation(t, db, repo, automationSeed{
			triggers: []string{fmt.Sprintf("t%02d", i)},
			actions:  []string{fmt.Sprintf("d%02d.call", i)},
		})
	}

	f := svc.Facets(context.Background(), &FacetRequest{})
	assert.Len(t, f.Triggers, facetLimit)
	assert.Len(t, f.ActionDomains, facetLimit)
	assert.Len(t, f.Actions, facetLimit)
	assert.Equal(t, "t00", f.Triggers[0].Type)
}

func TestFacets_EmptyStoreReturnsEmptyLists(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestSearch(t, db)

	f := svc.Facets(context.Background(), nil)
	assert.Equal(t, emptyFacets(), f)
}

func TestFacets_DegradesOnStorageError(t *testing.T) {
	db := newTestDB(t)
	svc, hook := newTestSearch(t, db)
	seedFacetCorpus(t, db)
	require.NoError(t, db.Migrator().DropTable(&models.Automation{}))

	f := svc.Facets(context.Background(), &FacetRequest{Query: "light"})
	assert.Equal(t, emptyFacets(), f)
	assert.NotEmpty(t, hook.Entries)
}

func TestCountTokens(t *testing.T) {
	rows := []string{"light.turn_on,light.turn_off", " notify.x , ,delay", "light.dim"}

	assert.Equal(t, map[string]int64{"light": 2, "notify": 1}, countTokens(rows, actionDomain))
	assert.Equal(t, map[string]int64{
		"light.turn_on": 1, "light.turn_off": 1, "notify.x": 1, "delay": 1, "light.dim": 1,
	}, countTokens(rows, identity))
}

func TestTopCounts_OrdersByCountThenValue(t *testing.T) {
	got := topCounts(map[string]int64{"b": 2, "a": 2, "c": 5, "d": 1})
	assert.Equal(t, []valueCount{{"c", 5}, {"a", 2}, {"b", 2}, {"d", 1}}, got)
}

func TestActionDomain(t *testing.T) {
	assert.Equal(t, "light", actionDomain("light.turn_on"))
	assert.Equal(t, "", actionDomain("delay"))
	assert.Equal(t, "media_player", actionDomain("media_player.play.media"))
}
