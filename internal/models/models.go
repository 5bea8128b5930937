package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository is a GitHub repository that published automations.
type Repository struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"size:255;not null;index" json:"name"`
	Owner       string       `gorm:"size:255;not null;index" json:"owner"`
	Description string       `gorm:"type:text" json:"description"`
	URL         string       `gorm:"size:512;not null;uniqueIndex" json:"url"`
	Stars       int          `gorm:"default:0" json:"stars"`
	IndexedAt   time.Time    `json:"indexed_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Automations []Automation `gorm:"foreignKey:RepositoryID;constraint:OnDelete:CASCADE" json:"automations,omitempty"`
}

func (Repository) TableName() string { return "repositories" }

// BeforeDelete removes the automations explicitly so the cascade also holds on
// sqlite connections opened without foreign key enforcement.
func (r *Repository) BeforeDelete(tx *gorm.DB) error {
	if r.ID == 0 {
		return nil
	}
	return tx.Where("repository_id = ?", r.ID).Delete(&Automation{}).Error
}

// Automation is one parsed automation definition.
type Automation struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	RepositoryID   uint              `gorm:"not null;index" json:"repository_id"`
	Alias          *string           `gorm:"size:512;index" json:"alias"`
	Description    string            `gorm:"type:text" json:"description"`
	TriggerTypes   StringList        `gorm:"type:text" json:"trigger_types"`
	BlueprintPath  *string           `gorm:"size:512;index" json:"blueprint_path"`
	BlueprintInput datatypes.JSONMap `json:"blueprint_input"`
	ActionCalls    StringList        `gorm:"type:text" json:"action_calls"`
	SourceFilePath string            `gorm:"size:512;not null" json:"source_file_path"`
	GithubURL      string            `gorm:"size:1024;not null" json:"github_url"`
	StartLine      *int              `json:"start_line"`
	EndLine        *int              `json:"end_line"`
	IndexedAt      time.Time         `gorm:"index" json:"indexed_at"`
	Repository     *Repository       `gorm:"foreignKey:RepositoryID" json:"repository,omitempty"`
}

func (Automation) TableName() string { return "automations" }

// Metadata keys stored in IndexingMetadata.
const (
	MetadataLastCompletedAt = "last_completed_at"
	MetadataRepoStarCount   = "repo_star_count"
)

// IndexingMetadata is a small key/value table for indexer bookkeeping.
type IndexingMetadata struct {
	Key       string    `gorm:"primaryKey;size:255" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (IndexingMetadata) TableName() string { return "indexing_metadata" }

// All lists the models handled by AutoMigrate.
func All() []interface{} {
	return []interface{}{&Repository{}, &Automation{}, &IndexingMetadata{}}
}
