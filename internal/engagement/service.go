package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/hubs/internal/content"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "engagement.service.new"
	opCastVote        = "engagement.cast_vote"
	opToggleBookmark  = "engagement.toggle_bookmark"
	opRecordView      = "engagement.record_view"
	opCollectionStats = "engagement.collection_stats"
	opListBookmarks   = "engagement.list_bookmarks"
	opListResources   = "engagement.list_resources"
	opListAnswers     = "engagement.list_answers"

	reasonMissingDatabase = "missing_database"
	reasonUnsupportedKind = "unsupported_kind"
	reasonTargetNotFound  = "target_not_found"
	reasonInvalidVote     = "invalid_vote"
	reasonQueryFailed     = "query_failed"
	reasonWriteFailed     = "write_failed"

	queryTargetKey     = "target_kind = ? AND target_id = ?"
	queryUserTargetKey = "user_id = ? AND target_kind = ? AND target_id = ?"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the engagement service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service is the authoritative store for votes, bookmarks, views and collection stats.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// CastVote applies the three-way toggle to the caller's vote on target and returns the resulting
// net count and direction.
func (s *Service) CastVote(ctx context.Context, userID UserID, target content.Target, direction content.Direction) (VoteOutcome, error) {
	if s.db == nil {
		s.logError(opCastVote, reasonMissingDatabase, errMissingDatabase)
		return VoteOutcome{}, newServiceError(opCastVote, reasonMissingDatabase, errMissingDatabase)
	}
	if !target.Kind.Votable() {
		return VoteOutcome{}, newServiceError(opCastVote, reasonUnsupportedKind, fmt.Errorf("%w: %s", ErrUnsupportedKind, target.Kind))
	}

	var outcome VoteOutcome
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := targetExists(tx, target)
		if err != nil {
			s.logError(opCastVote, reasonQueryFailed, err, targetFields(target)...)
			return newServiceError(opCastVote, reasonQueryFailed, err)
		}
		if !exists {
			return newServiceError(opCastVote, reasonTargetNotFound, fmt.Errorf("%w: %s", ErrTargetNotFound, target))
		}

		version, err := bumpVersion(tx, target)
		if err != nil {
			s.logError(opCastVote, reasonWriteFailed, err, targetFields(target)...)
			return newServiceError(opCastVote, reasonWriteFailed, err)
		}

		var existing Vote
		current := content.DirectionNone
		err = lockingScope(tx).
			Where(queryUserTargetKey, userID.String(), target.Kind.String(), target.ID.Int64()).
			Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			s.logError(opCastVote, reasonQueryFailed, err, targetFields(target)...)
			return newServiceError(opCastVote, reasonQueryFailed, err)
		default:
			current, err = content.ParseStoredDirection(existing.Direction)
			if err != nil {
				s.logError(opCastVote, reasonInvalidVote, err, targetFields(target)...)
				return newServiceError(opCastVote, reasonInvalidVote, err)
			}
		}

		transition, err := content.ApplyVote(current, direction)
		if err != nil {
			return newServiceError(opCastVote, reasonInvalidVote, err)
		}

		nowSeconds := s.clock().UTC().Unix()
		switch {
		case transition.Next == content.DirectionNone:
			err = tx.Where(queryUserTargetKey, userID.String(), target.Kind.String(), target.ID.Int64()).
				Delete(&Vote{}).Error
		case transition.Previous == content.DirectionNone:
			err = tx.Create(&Vote{
				UserID:           userID.String(),
				TargetKind:       target.Kind.String(),
				TargetID:         target.ID.Int64(),
				Direction:        transition.Next.String(),
				CreatedAtSeconds: nowSeconds,
				UpdatedAtSeconds: nowSeconds,
			}).Error
		default:
			err = tx.Model(&Vote{}).
				Where(queryUserTargetKey, userID.String(), target.Kind.String(), target.ID.Int64()).
				Updates(map[string]any{"direction": transition.Next.String(), "updated_at_s": nowSeconds}).Error
		}
		if err != nil {
			s.logError(opCastVote, reasonWriteFailed, err, targetFields(target)...)
			return newServiceError(opCastVote, reasonWriteFailed, err)
		}

		net, err := netVotes(tx, target)
		if err != nil {
			s.logError(opCastVote, reasonQueryFailed, err, targetFields(target)...)
			return newServiceError(opCastVote, reasonQueryFailed, err)
		}

		if target.Kind == content.KindAnswer {
			if err := tx.Model(&Answer{}).Where("id = ?", target.ID.Int64()).UpdateColumn("votes", net).Error; err != nil {
				s.logError(opCastVote, reasonWriteFailed, err, targetFields(target)...)
				return newServiceError(opCastVote, reasonWriteFailed, err)
			}
		}

		outcome = VoteOutcome{Target: target, Net: net, Direction: transition.Next, Version: version}
		return nil
	})
	if txErr != nil {
		return VoteOutcome{}, txErr
	}

	s.loggerOrDefault().Debug("vote applied",
		zap.String("user_id", userID.String()),
		zap.String("target", target.String()),
		zap.String("direction", outcome.Direction.String()),
		zap.Int64("net", outcome.Net),
		zap.Int64("version", outcome.Version))
	return outcome, nil
}

// ToggleBookmark flips the caller's bookmark on target and reports the resulting status.
func (s *Service) ToggleBookmark(ctx context.Context, userID UserID, target content.Target) (BookmarkOutcome, error) {
	if s.db == nil {
		s.logError(opToggleBookmark, reasonMissingDatabase, errMissingDatabase)
		return BookmarkOutcome{}, newServiceError(opToggleBookmark, reasonMissingDatabase, errMissingDatabase)
	}
	if !target.Kind.Bookmarkable() {
		return BookmarkOutcome{}, newServiceError(opToggleBookmark, reasonUnsupportedKind, fmt.Errorf("%w: %s", ErrUnsupportedKind, target.Kind))
	}

	outcome := BookmarkOutcome{Target: target}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := targetExists(tx, target)
		if err != nil {
			s.logError(opToggleBookmark, reasonQueryFailed, err, targetFields(target)...)
			return newServiceError(opToggleBookmark, reasonQueryFailed, err)
		}
		if !exists {
			return newServiceError(opToggleBookmark, reasonTargetNotFound, fmt.Errorf("%w: %s", ErrTargetNotFound, target))
		}

		outcome.Version, err = bumpVersion(tx, target)
		if err != nil {
			s.logError(opToggleBookmark, reasonWriteFailed, err, targetFields(target)...)
			return newServiceError(opToggleBookmark, reasonWriteFailed, err)
		}

		deleted := tx.Where(queryUserTargetKey, userID.String(), target.Kind.String(), target.ID.Int64()).
			Delete(&Bookmark{})
		if deleted.Error != nil {
			s.logError(opToggleBookmark, reasonWriteFailed, deleted.Error, targetFields(target)...)
			return newServiceError(opToggleBookmark, reasonWriteFailed, deleted.Error)
		}
		if deleted.RowsAffected > 0 {
			outcome.Status = content.BookmarkUnsaved
			return nil
		}

		if err := tx.Create(&Bookmark{
			UserID:         userID.String(),
			TargetKind:     target.Kind.String(),
			TargetID:       target.ID.Int64(),
			SavedAtSeconds: s.clock().UTC().Unix(),
		}).Error; err != nil {
			s.logError(opToggleBookmark, reasonWriteFailed, err, targetFields(target)...)
			return newServiceError(opToggleBookmark, reasonWriteFailed, err)
		}
		outcome.Status = content.BookmarkSaved
		return nil
	})
	if txErr != nil {
		return BookmarkOutcome{}, txErr
	}
	return outcome, nil
}

// RecordView increments the view counter of a collection or resource. Repeated views all count.
func (s *Service) RecordView(ctx context.Context, scope content.Target) error {
	if s.db == nil {
		s.logError(opRecordView, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(opRecordView, reasonMissingDatabase, errMissingDatabase)
	}

	var model any
	switch scope.Kind {
	case content.KindCollection:
		model = &Collection{}
	case content.KindResource:
		model = &Resource{}
	default:
		return newServiceError(opRecordView, reasonUnsupportedKind, fmt.Errorf("%w: %s", ErrUnsupportedKind, scope.Kind))
	}

	result := s.db.WithContext(ctx).Model(model).
		Where("id = ?", scope.ID.Int64()).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if result.Error != nil {
		s.logError(opRecordView, reasonWriteFailed, result.Error, targetFields(scope)...)
		return newServiceError(opRecordView, reasonWriteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opRecordView, reasonTargetNotFound, fmt.Errorf("%w: %s", ErrTargetNotFound, scope))
	}
	return nil
}

// CollectionStats derives resource count, net votes and views for a collection.
func (s *Service) CollectionStats(ctx context.Context, collectionID content.ItemID) (CollectionStats, error) {
	if s.db == nil {
		s.logError(opCollectionStats, reasonMissingDatabase, errMissingDatabase)
		return CollectionStats{}, newServiceError(opCollectionStats, reasonMissingDatabase, errMissingDatabase)
	}

	db := s.db.WithContext(ctx)
	fields := []zap.Field{zap.Int64("collection_id", collectionID.Int64())}

	var collection Collection
	err := db.Where("id = ?", collectionID.Int64()).Take(&collection).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CollectionStats{}, newServiceError(opCollectionStats, reasonTargetNotFound,
			fmt.Errorf("%w: collection:%d", ErrTargetNotFound, collectionID))
	}
	if err != nil {
		s.logError(opCollectionStats, reasonQueryFailed, err, fields...)
		return CollectionStats{}, newServiceError(opCollectionStats, reasonQueryFailed, err)
	}

	stats := CollectionStats{CollectionID: collection.ID}

	if err := db.Model(&Resource{}).Where("collection_id = ?", collection.ID).Count(&stats.ResourceCount).Error; err != nil {
		s.logError(opCollectionStats, reasonQueryFailed, err, fields...)
		return CollectionStats{}, newServiceError(opCollectionStats, reasonQueryFailed, err)
	}

	var resourceViews int64
	if err := db.Model(&Resource{}).
		Where("collection_id = ?", collection.ID).
		Select("COALESCE(SUM(views), 0)").
		Scan(&resourceViews).Error; err != nil {
		s.logError(opCollectionStats, reasonQueryFailed, err, fields...)
		return CollectionStats{}, newServiceError(opCollectionStats, reasonQueryFailed, err)
	}
	stats.TotalViews = collection.Views + resourceViews

	if err := db.Raw(
		`SELECT COALESCE(SUM(CASE votes.direction WHEN ? THEN 1 WHEN ? THEN -1 ELSE 0 END), 0)
		FROM votes JOIN resources ON resources.id = votes.target_id
		WHERE votes.target_kind = ? AND resources.collection_id = ?`,
		content.DirectionUp.String(), content.DirectionDown.String(),
		content.KindResource.String(), collection.ID,
	).Scan(&stats.TotalVotes).Error; err != nil {
		s.logError(opCollectionStats, reasonQueryFailed, err, fields...)
		return CollectionStats{}, newServiceError(opCollectionStats, reasonQueryFailed, err)
	}

	return stats, nil
}

// ListResources returns a collection's resources newest first, each with its net votes and the
// caller's current direction.
func (s *Service) ListResources(ctx context.Context, userID UserID, collectionID content.ItemID) ([]ResourceEntry, error) {
	if s.db == nil {
		s.logError(opListResources, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opListResources, reasonMissingDatabase, errMissingDatabase)
	}

	db := s.db.WithContext(ctx)
	fields := []zap.Field{zap.Int64("collection_id", collectionID.Int64())}

	var collectionCount int64
	if err := db.Model(&Collection{}).Where("id = ?", collectionID.Int64()).Count(&collectionCount).Error; err != nil {
		s.logError(opListResources, reasonQueryFailed, err, fields...)
		return nil, newServiceError(opListResources, reasonQueryFailed, err)
	}
	if collectionCount == 0 {
		return nil, newServiceError(opListResources, reasonTargetNotFound,
			fmt.Errorf("%w: collection:%d", ErrTargetNotFound, collectionID))
	}

	var resources []Resource
	if err := db.Where("collection_id = ?", collectionID.Int64()).
		Order("created_at_s DESC").
		Order("id DESC").
		Find(&resources).Error; err != nil {
		s.logError(opListResources, reasonQueryFailed, err, fields...)
		return nil, newServiceError(opListResources, reasonQueryFailed, err)
	}
	if len(resources) == 0 {
		return []ResourceEntry{}, nil
	}

	resourceIDs := make([]int64, 0, len(resources))
	for _, resource := range resources {
		resourceIDs = append(resourceIDs, resource.ID)
	}

	netByResource, callerVotes, err := s.tallyVotes(db, content.KindResource, resourceIDs, userID)
	if err != nil {
		s.logError(opListResources, reasonQueryFailed, err, fields...)
		return nil, newServiceError(opListResources, reasonQueryFailed, err)
	}
	versions, err := loadVersions(db, content.KindResource, resourceIDs)
	if err != nil {
		s.logError(opListResources, reasonQueryFailed, err, fields...)
		return nil, newServiceError(opListResources, reasonQueryFailed, err)
	}

	entries := make([]ResourceEntry, 0, len(resources))
	for _, resource := range resources {
		entries = append(entries, ResourceEntry{
			Resource: resource,
			Votes:    netByResource[resource.ID],
			UserVote: callerVotes[resource.ID],
			Version:  versions[resource.ID],
		})
	}
	return entries, nil
}

// ListAnswers returns a question's answers newest first, each with its net votes and the
// caller's current direction. A question without answers yields an empty list.
func (s *Service) ListAnswers(ctx context.Context, userID UserID, questionID content.ItemID) ([]AnswerEntry, error) {
	if s.db == nil {
		s.logError(opListAnswers, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opListAnswers, reasonMissingDatabase, errMissingDatabase)
	}

	db := s.db.WithContext(ctx)
	fields := []zap.Field{zap.Int64("question_id", questionID.Int64())}

	var answers []Answer
	if err := db.Where("question_id = ?", questionID.Int64()).
		Order("created_at_s DESC").
		Order("id DESC").
		Find(&answers).Error; err != nil {
		s.logError(opListAnswers, reasonQueryFailed, err, fields...)
		return nil, newServiceError(opListAnswers, reasonQueryFailed, err)
	}
	if len(answers) == 0 {
		return []AnswerEntry{}, nil
	}

	answerIDs := make([]int64, 0, len(answers))
	for _, answer := range answers {
		answerIDs = append(answerIDs, answer.ID)
	}

	netByAnswer, callerVotes, err := s.tallyVotes(db, content.KindAnswer, answerIDs, userID)
	if err != nil {
		s.logError(opListAnswers, reasonQueryFailed, err, fields...)
		return nil, newServiceError(opListAnswers, reasonQueryFailed, err)
	}
	versions, err := loadVersions(db, content.KindAnswer, answerIDs)
	if err != nil {
		s.logError(opListAnswers, reasonQueryFailed, err, fields...)
		return nil, newServiceError(opListAnswers, reasonQueryFailed, err)
	}

	entries := make([]AnswerEntry, 0, len(answers))
	for _, answer := range answers {
		entries = append(entries, AnswerEntry{
			Answer:   answer,
			Votes:    netByAnswer[answer.ID],
			UserVote: callerVotes[answer.ID],
			Version:  versions[answer.ID],
		})
	}
	return entries, nil
}

// ListBookmarks returns the caller's bookmarks of one kind, most recently saved first.
func (s *Service) ListBookmarks(ctx context.Context, userID UserID, kind content.Kind) ([]BookmarkEntry, error) {
	if s.db == nil {
		s.logError(opListBookmarks, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opListBookmarks, reasonMissingDatabase, errMissingDatabase)
	}
	if !kind.Bookmarkable() {
		return nil, newServiceError(opListBookmarks, reasonUnsupportedKind, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind))
	}

	db := s.db.WithContext(ctx)
	fields := []zap.Field{zap.String("user_id", userID.String()), zap.String("kind", kind.String())}

	var bookmarks []Bookmark
	if err := db.Where("user_id = ? AND target_kind = ?", userID.String(), kind.String()).
		Order("saved_at_s DESC").
		Order("target_id DESC").
		Find(&bookmarks).Error; err != nil {
		s.logError(opListBookmarks, reasonQueryFailed, err, fields...)
		return nil, newServiceError(opListBookmarks, reasonQueryFailed, err)
	}
	if len(bookmarks) == 0 {
		return []BookmarkEntry{}, nil
	}

	targetIDs := make([]int64, 0, len(bookmarks))
	for _, bookmark := range bookmarks {
		targetIDs = append(targetIDs, bookmark.TargetID)
	}

	display, err := loadDisplayFields(db, kind, targetIDs)
	if err != nil {
		s.logError(opListBookmarks, reasonQueryFailed, err, fields...)
		return nil, newServiceError(opListBookmarks, reasonQueryFailed, err)
	}

	versions, err := loadVersions(db, kind, targetIDs)
	if err != nil {
		s.logError(opListBookmarks, reasonQueryFailed, err, fields...)
		return nil, newServiceError(opListBookmarks, reasonQueryFailed, err)
	}

	entries := make([]BookmarkEntry, 0, len(bookmarks))
	for _, bookmark := range bookmarks {
		entry, ok := display[bookmark.TargetID]
		if !ok {
			continue
		}
		entry.Target = content.Target{Kind: kind, ID: content.ItemID(bookmark.TargetID)}
		entry.SavedAtSeconds = bookmark.SavedAtSeconds
		entry.Version = versions[bookmark.TargetID]
		entries = append(entries, entry)
	}
	return entries, nil
}

func loadDisplayFields(db *gorm.DB, kind content.Kind, ids []int64) (map[int64]BookmarkEntry, error) {
	display := make(map[int64]BookmarkEntry, len(ids))
	switch kind {
	case content.KindResource:
		var rows []Resource
		if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			display[row.ID] = BookmarkEntry{OwnerID: row.CollectionID, Title: row.Title, URL: row.URL}
		}
	case content.KindImage:
		var rows []Image
		if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			display[row.ID] = BookmarkEntry{OwnerID: row.CommunityID, MediaRef: row.MediaRef}
		}
	case content.KindProduct:
		var rows []Product
		if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			display[row.ID] = BookmarkEntry{OwnerID: row.CommunityID, Title: row.Title, URL: row.URL}
		}
	case content.KindCollection:
		var rows []Collection
		if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			display[row.ID] = BookmarkEntry{OwnerID: row.CommunityID, Title: row.Name, MediaRef: row.PreviewRef}
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	return display, nil
}

func targetExists(tx *gorm.DB, target content.Target) (bool, error) {
	var model any
	switch target.Kind {
	case content.KindResource:
		model = &Resource{}
	case content.KindImage:
		model = &Image{}
	case content.KindProduct:
		model = &Product{}
	case content.KindCollection:
		model = &Collection{}
	case content.KindAnswer:
		model = &Answer{}
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedKind, target.Kind)
	}
	var count int64
	if err := tx.Model(model).Where("id = ?", target.ID.Int64()).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func netVotes(tx *gorm.DB, target content.Target) (int64, error) {
	var upvotes int64
	if err := tx.Model(&Vote{}).
		Where(queryTargetKey+" AND direction = ?", target.Kind.String(), target.ID.Int64(), content.DirectionUp.String()).
		Count(&upvotes).Error; err != nil {
		return 0, err
	}
	var downvotes int64
	if err := tx.Model(&Vote{}).
		Where(queryTargetKey+" AND direction = ?", target.Kind.String(), target.ID.Int64(), content.DirectionDown.String()).
		Count(&downvotes).Error; err != nil {
		return 0, err
	}
	return upvotes - downvotes, nil
}

// tallyVotes sums the net votes of each target and picks out the caller's directions.
func (s *Service) tallyVotes(db *gorm.DB, kind content.Kind, ids []int64, userID UserID) (map[int64]int64, map[int64]content.Direction, error) {
	var votes []Vote
	if err := db.Where("target_kind = ? AND target_id IN ?", kind.String(), ids).Find(&votes).Error; err != nil {
		return nil, nil, err
	}

	net := make(map[int64]int64, len(ids))
	caller := make(map[int64]content.Direction)
	for _, vote := range votes {
		direction, err := content.ParseStoredDirection(vote.Direction)
		if err != nil {
			s.loggerOrDefault().Warn("skipping malformed vote", zap.String("target_kind", vote.TargetKind),
				zap.Int64("target_id", vote.TargetID), zap.Error(err))
			continue
		}
		net[vote.TargetID] += direction.Contribution()
		if vote.UserID == userID.String() {
			caller[vote.TargetID] = direction
		}
	}
	return net, caller, nil
}

// bumpVersion increments the target's write counter and returns the new value. On PostgreSQL
// the upsert also holds the row lock, serializing writers per target until commit.
func bumpVersion(tx *gorm.DB, target content.Target) (int64, error) {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target_kind"}, {Name: "target_id"}},
		DoUpdates: clause.Assignments(map[string]any{"version": gorm.Expr("target_versions.version + 1")}),
	}).Create(&TargetVersion{
		TargetKind: target.Kind.String(),
		TargetID:   target.ID.Int64(),
		Version:    1,
	}).Error
	if err != nil {
		return 0, err
	}

	var stored TargetVersion
	if err := tx.Where(queryTargetKey, target.Kind.String(), target.ID.Int64()).Take(&stored).Error; err != nil {
		return 0, err
	}
	return stored.Version, nil
}

func loadVersions(db *gorm.DB, kind content.Kind, ids []int64) (map[int64]int64, error) {
	var rows []TargetVersion
	if err := db.Where("target_kind = ? AND target_id IN ?", kind.String(), ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	versions := make(map[int64]int64, len(rows))
	for _, row := range rows {
		versions[row.TargetID] = row.Version
	}
	return versions, nil
}

// lockingScope adds SELECT ... FOR UPDATE on dialects with row locks. SQLite serializes writers instead.
func lockingScope(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func targetFields(target content.Target) []zap.Field {
	return []zap.Field{
		zap.String("target_kind", target.Kind.String()),
		zap.Int64("target_id", target.ID.Int64()),
	}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("engagement service error", attrs...)
}
