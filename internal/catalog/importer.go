// Package catalog seeds communities, collections and engageable items from YAML fixtures.
package catalog

import (
	"context"
	"errors"
	"html"
	"strings"

	"github.com/MarcoPoloResearchLab/hubs/internal/engagement"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("catalog: database handle is required")

// Summary counts the rows written by an import.
type Summary struct {
	Communities int
	Collections int
	Resources   int
	Images      int
	Products    int
	Answers     int
}

// Importer writes fixtures into the engagement tables. Re-importing updates display
// fields in place and leaves view and vote counters untouched.
type Importer struct {
	db     *gorm.DB
	policy *bluemonday.Policy
	logger *zap.Logger
}

// NewImporter constructs an Importer. Logger is optional.
func NewImporter(db *gorm.DB, logger *zap.Logger) (*Importer, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		db:     db,
		policy: bluemonday.StrictPolicy(),
		logger: logger,
	}, nil
}

// sanitize strips markup from user-facing text. StrictPolicy escapes entities, which
// are turned back into plain characters for storage.
func (i *Importer) sanitize(value string) string {
	return strings.TrimSpace(html.UnescapeString(i.policy.Sanitize(value)))
}

func upsert(tx *gorm.DB, row any, columns ...string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(row).Error
}

// Import writes the fixture in one transaction.
func (i *Importer) Import(ctx context.Context, fixture Fixture) (Summary, error) {
	var summary Summary
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, community := range fixture.Communities {
			if err := upsert(tx, &engagement.Community{
				ID:               community.ID,
				Name:             i.sanitize(community.Name),
				Description:      i.sanitize(community.Description),
				CreatedAtSeconds: community.CreatedAt,
			}, "name", "description"); err != nil {
				return err
			}
			summary.Communities++

			for _, collection := range community.Collections {
				if err := upsert(tx, &engagement.Collection{
					ID:               collection.ID,
					CommunityID:      community.ID,
					Name:             i.sanitize(collection.Name),
					PreviewRef:       strings.TrimSpace(collection.PreviewRef),
					CreatedAtSeconds: collection.CreatedAt,
				}, "community_id", "name", "preview_ref"); err != nil {
					return err
				}
				summary.Collections++

				for _, resource := range collection.Resources {
					if err := upsert(tx, &engagement.Resource{
						ID:               resource.ID,
						CollectionID:     collection.ID,
						Title:            i.sanitize(resource.Title),
						URL:              strings.TrimSpace(resource.URL),
						Remark:           i.sanitize(resource.Remark),
						CreatedAtSeconds: resource.CreatedAt,
					}, "collection_id", "title", "url", "remark", "created_at_s"); err != nil {
						return err
					}
					summary.Resources++
				}
			}

			for _, image := range community.Images {
				if err := upsert(tx, &engagement.Image{
					ID:               image.ID,
					CommunityID:      community.ID,
					MediaRef:         strings.TrimSpace(image.MediaRef),
					CreatedAtSeconds: image.CreatedAt,
				}, "community_id", "media_ref"); err != nil {
					return err
				}
				summary.Images++
			}

			for _, product := range community.Products {
				if err := upsert(tx, &engagement.Product{
					ID:               product.ID,
					CommunityID:      community.ID,
					Title:            i.sanitize(product.Title),
					URL:              strings.TrimSpace(product.URL),
					Catalogue:        i.sanitize(product.Catalogue),
					CreatedAtSeconds: product.CreatedAt,
				}, "community_id", "title", "url", "catalogue"); err != nil {
					return err
				}
				summary.Products++
			}

			for _, answer := range community.Answers {
				if err := upsert(tx, &engagement.Answer{
					ID:               answer.ID,
					CommunityID:      community.ID,
					QuestionID:       answer.QuestionID,
					Content:          i.sanitize(answer.Content),
					CreatedAtSeconds: answer.CreatedAt,
				}, "community_id", "question_id", "content"); err != nil {
					return err
				}
				summary.Answers++
			}
		}
		return nil
	})
	if err != nil {
		i.logger.Error("catalog import failed", zap.Error(err))
		return Summary{}, err
	}

	i.logger.Info("catalog imported",
		zap.Int("communities", summary.Communities),
		zap.Int("collections", summary.Collections),
		zap.Int("resources", summary.Resources),
		zap.Int("images", summary.Images),
		zap.Int("products", summary.Products),
		zap.Int("answers", summary.Answers))
	return summary, nil
}
