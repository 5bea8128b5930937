package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hadiscover/internal/metrics"
	"hadiscover/internal/models"
	"hadiscover/internal/parser"
	"hadiscover/pkg/github"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RepositorySource discovers repositories and serves their automation files.
// *github.Client implements it.
type RepositorySource interface {
	SearchRepositories(ctx context.Context) ([]github.Repository, error)
	FindAutomationFiles(ctx context.Context, owner, repo, branch string) ([]string, error)
	GetFileContent(ctx context.Context, owner, repo, path, branch string) (string, error)
	GetStarCount(ctx context.Context, owner, repo string) (int, error)
}

// IndexStats summarizes one indexing run.
type IndexStats struct {
	RunID               string `json:"run_id"`
	RepositoriesFound   int    `json:"repositories_found"`
	RepositoriesIndexed int    `json:"repositories_indexed"`
	AutomationsIndexed  int    `json:"automations_indexed"`
	Errors              int    `json:"errors"`
	RateLimited         bool   `json:"rate_limited"`
}

// IndexerService replaces each discovered repository's automations with a
// freshly parsed set, one transaction per repository.
type IndexerService struct {
	db       *gorm.DB
	source   RepositorySource
	parser   *parser.Parser
	logger   *logrus.Logger
	selfRepo string
	now      func() time.Time
}

func NewIndexerService(db *gorm.DB, source RepositorySource, p *parser.Parser, logger *logrus.Logger) *IndexerService {
	if logger == nil {
		logger = logrus.New()
	}
	if p == nil {
		p = parser.New(logger)
	}
	return &IndexerService{
		db:       db,
		source:   source,
		parser:   p,
		logger:   logger,
		selfRepo: "DevSecNinja/hadiscover",
		now:      time.Now,
	}
}

// SetSelfRepo sets the owner/name whose star count is published after a run.
// An empty value disables the lookup.
func (s *IndexerService) SetSelfRepo(fullName string) {
	s.selfRepo = fullName
}

// IndexRepositories runs one full indexing pass. A rate limit halts the run,
// leaves the in-flight repository untouched and skips the completion marker.
func (s *IndexerService) IndexRepositories(ctx context.Context) *IndexStats {
	stats := &IndexStats{RunID: uuid.NewString()}
	log := s.logger.WithField("run_id", stats.RunID)
	started := s.now()
	log.Info("Starting indexing run")
	defer func() { metrics.ObserveIndexRun(stats.RateLimited, stats.Errors, stats.AutomationsIndexed) }()

	repos, err := s.source.SearchRepositories(ctx)
	if err != nil {
		stats.Errors++
		if github.IsRateLimit(err) {
			stats.RateLimited = true
			log.WithError(err).Warn("Rate limited during repository search, halting run")
			return stats
		}
		log.WithError(err).Error("Repository search failed")
	}
	stats.RepositoriesFound = len(repos)
	log.Infof("Found %d repositories to index", len(repos))

	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			stats.Errors++
			log.WithError(err).Warn("Indexing run cancelled")
			return stats
		}
		repoLog := log.WithField("repository", repo.FullName())

		n, err := s.indexRepository(ctx, repo, repoLog)
		if err != nil {
			stats.Errors++
			if github.IsRateLimit(err) {
				stats.RateLimited = true
				repoLog.WithError(err).Warn("Rate limited, rolling back repository and halting run")
				break
			}
			repoLog.WithError(err).Error("Error indexing repository")
			continue
		}
		stats.RepositoriesIndexed++
		stats.AutomationsIndexed += n
	}

	if stats.RateLimited {
		log.Warn("Run was rate limited, completion timestamp not stored")
	} else {
		s.recordCompletion(ctx, log)
	}

	log.WithFields(logrus.Fields{
		"repositories_found":   stats.RepositoriesFound,
		"repositories_indexed": stats.RepositoriesIndexed,
		"automations_indexed":  stats.AutomationsIndexed,
		"errors":               stats.Errors,
		"rate_limited":         stats.RateLimited,
		"duration":             s.now().Sub(started).String(),
	}).Info("Indexing run finished")
	return stats
}

// indexRepository fetches and parses every automation file before touching
// the database, then swaps the stored automations in one transaction.
func (s *IndexerService) indexRepository(ctx context.Context, repo github.Repository, log *logrus.Entry) (int, error) {
	branch := repo.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	files, err := s.source.FindAutomationFiles(ctx, repo.Owner, repo.Name, branch)
	if err != nil {
		return 0, fmt.Errorf("find automation files: %w", err)
	}

	now := s.now().UTC()
	var batch []models.Automation
	for _, path := range files {
		content, err := s.source.GetFileContent(ctx, repo.Owner, repo.Name, path, branch)
		if err != nil {
			if github.IsRateLimit(err) {
				return 0, err
			}
			log.WithError(err).WithField("file", path).Warn("Skipping unreadable automation file")
			continue
		}
		if content == "" {
			continue
		}
		records := s.parser.Parse(content)
		log.WithField("file", path).Debugf("Parsed %d automations", len(records))
		for _, rec := range records {
			batch = append(batch, newAutomation(rec, repo, branch, path, now))
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored, err := upsertRepository(tx, repo, now)
		if err != nil {
			return err
		}
		if err := tx.Where("repository_id = ?", stored.ID).Delete(&models.Automation{}).Error; err != nil {
			return fmt.Errorf("delete automations: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		for i := range batch {
			batch[i].RepositoryID = stored.ID
		}
		if err := tx.CreateInBatches(batch, 100).Error; err != nil {
			return fmt.Errorf("insert automations: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Infof("Indexed %d automations from %d files", len(batch), len(files))
	return len(batch), nil
}

func upsertRepository(tx *gorm.DB, repo github.Repository, now time.Time) (*models.Repository, error) {
	var stored models.Repository
	err := tx.Where("url = ?", repo.URL).First(&stored).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		stored = models.Repository{
			Name:        repo.Name,
			Owner:       repo.Owner,
			Description: repo.Description,
			URL:         repo.URL,
			Stars:       repo.Stars,
			IndexedAt:   now,
		}
		if err := tx.Create(&stored).Error; err != nil {
			return nil, fmt.Errorf("create repository: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("load repository: %w", err)
	default:
		err := tx.Model(&stored).Updates(map[string]interface{}{
			"name":        repo.Name,
			"owner":       repo.Owner,
			"description": repo.Description,
			"stars":       repo.Stars,
			"indexed_at":  now,
		}).Error
		if err != nil {
			return nil, fmt.Errorf("update repository: %w", err)
		}
	}
	return &stored, nil
}

func newAutomation(rec parser.AutomationRecord, repo github.Repository, branch, path string, now time.Time) models.Automation {
	a := models.Automation{
		Alias:          rec.Alias,
		Description:    rec.Description,
		TriggerTypes:   models.StringList(rec.TriggerTypes),
		BlueprintPath:  rec.BlueprintPath,
		ActionCalls:    models.StringList(rec.ActionCalls),
		SourceFilePath: path,
		GithubURL:      fmt.Sprintf("%s/blob/%s/%s", strings.TrimRight(repo.URL, "/"), branch, path),
		StartLine:      rec.StartLine,
		EndLine:        rec.EndLine,
		IndexedAt:      now,
	}
	if rec.BlueprintPath != nil {
		a.BlueprintInput = datatypes.JSONMap(rec.BlueprintInput)
		if a.BlueprintInput == nil {
			a.BlueprintInput = datatypes.JSONMap{}
		}
	}
	return a
}

func (s *IndexerService) recordCompletion(ctx context.Context, log *logrus.Entry) {
	if err := s.putMetadata(ctx, models.MetadataLastCompletedAt, s.now().UTC().Format(time.RFC3339)); err != nil {
		log.WithError(err).Error("Failed to store completion timestamp")
	}

	owner, name, ok := strings.Cut(s.selfRepo, "/")
	if !ok {
		return
	}
	stars, err := s.source.GetStarCount(ctx, owner, name)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch project star count")
		return
	}
	if err := s.putMetadata(ctx, models.MetadataRepoStarCount, strconv.Itoa(stars)); err != nil {
		log.WithError(err).Error("Failed to store project star count")
	}
}

func (s *IndexerService) putMetadata(ctx context.Context, key, value string) error {
	row := models.IndexingMetadata{Key: key, Value: value, UpdatedAt: s.now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}
