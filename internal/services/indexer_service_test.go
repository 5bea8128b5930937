package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hadiscover/internal/models"
	"hadiscover/pkg/github"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const morningYAML = `- alias: Morning lights
  trigger:
    - platform: time
  action:
    - service: light.turn_on
- alias: Leak alarm
  triggers:
    - trigger: state
  actions:
    - action: notify.mobile_app
`

const blueprintYAML = `- alias: Hall motion
  use_blueprint:
    path: homeassistant/motion_light.yaml
    input:
      motion_entity: binary_sensor.hall
`

type fakeSource struct {
	mu         sync.Mutex
	repos      []github.Repository
	searchErr  error
	files      map[string][]string
	filesErr   map[string]error
	contents   map[string]string
	contentErr map[string]error
	stars      int
	starsErr   error
	fetched    []string
}

func (f *fakeSource) SearchRepositories(ctx context.Context) ([]github.Repository, error) {
	return f.repos, f.searchErr
}

func (f *fakeSource) FindAutomationFiles(ctx context.Context, owner, repo, branch string) ([]string, error) {
	key := owner + "/" + repo
	if err := f.filesErr[key]; err != nil {
		return nil, err
	}
	return f.files[key], nil
}

func (f *fakeSource) GetFileContent(ctx context.Context, owner, repo, path, branch string) (string, error) {
	key := owner + "/" + repo + ":" + path
	f.mu.Lock()
	f.fetched = append(f.fetched, key)
	f.mu.Unlock()
	if err := f.contentErr[key]; err != nil {
		return "", err
	}
	return f.contents[key], nil
}

func (f *fakeSource) GetStarCount(ctx context.Context, owner, repo string) (int, error) {
	return f.stars, f.starsErr
}

func testRepo(owner, name, branch string) github.Repository {
	return github.Repository{
		Owner:         owner,
		Name:          name,
		Description:   "config of " + owner,
		URL:           "https://github.com/" + owner + "/" + name,
		DefaultBranch: branch,
		Stars:         5,
	}
}

func newTestIndexer(t *testing.T, db *gorm.DB, src RepositorySource) *IndexerService {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	idx := NewIndexerService(db, src, nil, logger)
	idx.now = func() time.Time { return baseTime }
	return idx
}

func automationsOf(t *testing.T, db *gorm.DB, url string) []models.Automation {
	t.Helper()
	var repo models.Repository
	require.NoError(t, db.Where("url = ?", url).First(&repo).Error)
	var out []models.Automation
	require.NoError(t, db.Where("repository_id = ?", repo.ID).Order("id").Find(&out).Error)
	return out
}

func metadataValue(t *testing.T, db *gorm.DB, key string) (string, bool) {
	t.Helper()
	var m models.IndexingMetadata
	err := db.Where(&models.IndexingMetadata{Key: key}).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false
	}
	require.NoError(t, err)
	return m.Value, true
}

func TestIndexRepositories_StoresAutomations(t *testing.T) {
	db := newTestDB(t)
	src := &fakeSource{
		repos: []github.Repository{testRepo("alice", "ha-config", "main"), testRepo("bob", "smart-home", "dev")},
		files: map[string][]string{
			"alice/ha-config": {"automations.yaml"},
			"bob/smart-home":  {"config/automations.yaml"},
		},
		contents: map[string]string{
			"alice/ha-config:automations.yaml":       morningYAML,
			"bob/smart-home:config/automations.yaml": blueprintYAML,
		},
		stars: 42,
	}

	stats := newTestIndexer(t, db, src).IndexRepositories(context.Background())

	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 2, stats.RepositoriesFound)
	assert.Equal(t, 2, stats.RepositoriesIndexed)
	assert.Equal(t, 3, stats.AutomationsIndexed)
	assert.Zero(t, stats.Errors)
	assert.False(t, stats.RateLimited)

	alice := automationsOf(t, db, "https://github.com/alice/ha-config")
	require.Len(t, alice, 2)
	assert.Equal(t, "Morning lights", *alice[0].Alias)
	assert.Equal(t, models.StringList{"time"}, alice[0].TriggerTypes)
	assert.Equal(t, models.StringList{"light.turn_on"}, alice[0].ActionCalls)
	assert.Equal(t, "automations.yaml", alice[0].SourceFilePath)
	assert.Equal(t, "https://github.com/alice/ha-config/blob/main/automations.yaml", alice[0].GithubURL)
	assert.Equal(t, 1, *alice[0].StartLine)
	assert.Equal(t, 5, *alice[0].EndLine)
	assert.Equal(t, 6, *alice[1].StartLine)
	assert.Equal(t, 10, *alice[1].EndLine)
	assert.True(t, alice[0].IndexedAt.Equal(baseTime))
	assert.Nil(t, alice[0].BlueprintPath)

	bob := automationsOf(t, db, "https://github.com/bob/smart-home")
	require.Len(t, bob, 1)
	assert.Equal(t, "https://github.com/bob/smart-home/blob/dev/config/automations.yaml", bob[0].GithubURL)
	require.NotNil(t, bob[0].BlueprintPath)
	assert.Equal(t, "homeassistant/motion_light.yaml", *bob[0].BlueprintPath)
	assert.Equal(t, "binary_sensor.hall", bob[0].BlueprintInput["motion_entity"])

	completed, ok := metadataValue(t, db, models.MetadataLastCompletedAt)
	assert.True(t, ok)
	assert.Equal(t, "2025-06-01T12:00:00Z", completed)
	stars, ok := metadataValue(t, db, models.MetadataRepoStarCount)
	assert.True(t, ok)
	assert.Equal(t, "42", stars)
}

func TestIndexRepositories_ReplacesPreviousAutomations(t *testing.T) {
	db := newTestDB(t)
	src := &fakeSource{
		repos:    []github.Repository{testRepo("alice", "ha-config", "main")},
		files:    map[string][]string{"alice/ha-config": {"automations.yaml"}},
		contents: map[string]string{"alice/ha-config:automations.yaml": morningYAML},
	}
	idx := newTestIndexer(t, db, src)
	idx.IndexRepositories(context.Background())

	src.repos[0].Description = "updated"
	src.repos[0].Stars = 9
	src.contents["alice/ha-config:automations.yaml"] = blueprintYAML
	stats := idx.IndexRepositories(context.Background())
	assert.Equal(t, 1, stats.AutomationsIndexed)

	got := automationsOf(t, db, "https://github.com/alice/ha-config")
	require.Len(t, got, 1)
	assert.Equal(t, "Hall motion", *got[0].Alias)

	var repos []models.Repository
	require.NoError(t, db.Find(&repos).Error)
	require.Len(t, repos, 1)
	assert.Equal(t, "updated", repos[0].Description)
	assert.Equal(t, 9, repos[0].Stars)
}

func TestIndexRepositories_RateLimitHaltsRun(t *testing.T) {
	db := newTestDB(t)
	limited := &github.RateLimitError{StatusCode: 403, Message: "API rate limit exceeded"}
	src := &fakeSource{
		repos: []github.Repository{
			testRepo("alice", "ha-config", "main"),
			testRepo("bob", "smart-home", "main"),
			testRepo("carol", "hass", "main"),
		},
		files: map[string][]string{
			"alice/ha-config": {"automations.yaml"},
			"bob/smart-home":  {"automations.yaml", "automations.yml"},
			"carol/hass":      {"automations.yaml"},
		},
		contents: map[string]string{
			"alice/ha-config:automations.yaml": morningYAML,
			"bob/smart-home:automations.yaml":  blueprintYAML,
			"carol/hass:automations.yaml":      morningYAML,
		},
		contentErr: map[string]error{"bob/smart-home:automations.yml": limited},
	}

	// bob was indexed by an earlier run; the rate limited pass must leave it alone.
	bob := seedRepo(t, db, "bob", "smart-home", 1)
	seedAutomation(t, db, bob, automationSeed{alias: "previous"})

	stats := newTestIndexer(t, db, src).IndexRepositories(context.Background())

	assert.True(t, stats.RateLimited)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.RepositoriesIndexed)
	assert.Equal(t, 2, stats.AutomationsIndexed)

	assert.Len(t, automationsOf(t, db, "https://github.com/alice/ha-config"), 2)
	prior := automationsOf(t, db, "https://github.com/bob/smart-home")
	require.Len(t, prior, 1)
	assert.Equal(t, "previous", *prior[0].Alias)

	var carol int64
	require.NoError(t, db.Model(&models.Repository{}).Where("owner = ?", "carol").Count(&carol).Error)
	assert.Zero(t, carol)
	assert.NotContains(t, src.fetched, "carol/hass:automations.yaml")

	_, ok := metadataValue(t, db, models.MetadataLastCompletedAt)
	assert.False(t, ok)
}

func TestIndexRepositories_SearchRateLimit(t *testing.T) {
	db := newTestDB(t)
	src := &fakeSource{searchErr: &github.RateLimitError{StatusCode: 429}}

	stats := newTestIndexer(t, db, src).IndexRepositories(context.Background())
	assert.True(t, stats.RateLimited)
	assert.Equal(t, 1, stats.Errors)
	assert.Zero(t, stats.RepositoriesFound)

	_, ok := metadataValue(t, db, models.MetadataLastCompletedAt)
	assert.False(t, ok)
}

func TestIndexRepositories_OtherErrorsContinue(t *testing.T) {
	db := newTestDB(t)
	src := &fakeSource{
		repos: []github.Repository{testRepo("alice", "ha-config", "main"), testRepo("bob", "smart-home", "main")},
		files: map[string][]string{
			"bob/smart-home": {"automations.yaml", "broken.yaml", "missing.yaml"},
		},
		filesErr: map[string]error{"alice/ha-config": errors.New("boom")},
		contents: map[string]string{
			"bob/smart-home:automations.yaml": morningYAML,
			"bob/smart-home:broken.yaml":      "- alias: [unclosed",
		},
		contentErr: map[string]error{"bob/smart-home:missing.yaml": errors.New("decode failed")},
		starsErr:   errors.New("unavailable"),
	}

	stats := newTestIndexer(t, db, src).IndexRepositories(context.Background())
	assert.False(t, stats.RateLimited)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.RepositoriesIndexed)
	assert.Equal(t, 2, stats.AutomationsIndexed)

	_, ok := metadataValue(t, db, models.MetadataLastCompletedAt)
	assert.True(t, ok, "non rate limit errors still complete the run")
	_, ok = metadataValue(t, db, models.MetadataRepoStarCount)
	assert.False(t, ok)
}

func TestIndexRepositories_RepositoryWithoutAutomationsIsStored(t *testing.T) {
	db := newTestDB(t)
	src := &fakeSource{repos: []github.Repository{testRepo("alice", "ha-config", "")}}

	stats := newTestIndexer(t, db, src).IndexRepositories(context.Background())
	assert.Equal(t, 1, stats.RepositoriesIndexed)
	assert.Empty(t, automationsOf(t, db, "https://github.com/alice/ha-config"))
}

func TestIndexRepositories_Cancelled(t *testing.T) {
	db := newTestDB(t)
	src := &fakeSource{repos: []github.Repository{testRepo("alice", "ha-config", "main")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := newTestIndexer(t, db, src).IndexRepositories(ctx)
	assert.Equal(t, 1, stats.Errors)
	assert.Zero(t, stats.RepositoriesIndexed)
	_, ok := metadataValue(t, db, models.MetadataLastCompletedAt)
	assert.False(t, ok)
}

func TestIndexRepositories_MetadataUpsert(t *testing.T) {
	db := newTestDB(t)
	src := &fakeSource{stars: 1}
	idx := newTestIndexer(t, db, src)
	idx.IndexRepositories(context.Background())

	src.stars = 2
	idx.now = func() time.Time { return baseTime.Add(time.Hour) }
	idx.IndexRepositories(context.Background())

	stars, _ := metadataValue(t, db, models.MetadataRepoStarCount)
	assert.Equal(t, "2", stars)
	completed, _ := metadataValue(t, db, models.MetadataLastCompletedAt)
	assert.Equal(t, "2025-06-01T13:00:00Z", completed)

	var n int64
	require.NoError(t, db.Model(&models.IndexingMetadata{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestIndexRepositories_SelfRepoDisabled(t *testing.T) {
	db := newTestDB(t)
	idx := newTestIndexer(t, db, &fakeSource{stars: 7})
	idx.SetSelfRepo("")
	idx.IndexRepositories(context.Background())

	_, ok := metadataValue(t, db, models.MetadataRepoStarCount)
	assert.False(t, ok)
}
