package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/hubs/internal/content"
	"github.com/MarcoPoloResearchLab/hubs/internal/engagement"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeVoteDirections = "2026-09-14_normalize_vote_directions"
	migrationSyncAnswerVoteCounts    = "2026-09-21_sync_answer_vote_counts"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeVoteDirections, apply: normalizeVoteDirections},
		{name: migrationSyncAnswerVoteCounts, apply: syncAnswerVoteCounts},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(migration.apply); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeVoteDirections lowercases imported directions and drops rows that carry no direction.
func normalizeVoteDirections(db *gorm.DB) error {
	if err := db.Model(&engagement.Vote{}).
		Where("direction <> LOWER(TRIM(direction))").
		Update("direction", gorm.Expr("LOWER(TRIM(direction))")).Error; err != nil {
		return err
	}
	return db.Where("direction NOT IN ?", []string{content.DirectionUp.String(), content.DirectionDown.String()}).
		Delete(&engagement.Vote{}).Error
}

// syncAnswerVoteCounts recomputes the denormalized answers.votes column from the votes table.
func syncAnswerVoteCounts(db *gorm.DB) error {
	return db.Exec(
		`UPDATE answers SET votes = COALESCE((
			SELECT SUM(CASE votes.direction WHEN ? THEN 1 WHEN ? THEN -1 ELSE 0 END)
			FROM votes WHERE votes.target_kind = ? AND votes.target_id = answers.id
		), 0)`,
		content.DirectionUp.String(), content.DirectionDown.String(), content.KindAnswer.String(),
	).Error
}
