package store

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"emoseum/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{}, &JourneyModel{}, &SignalEventModel{},
		&PersonalizationModel{}, &CostRecordModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"nickname", "tier", "coping_style", "style", "archived", "updated_at"}),
	}).Create(&model).Error
}

// GetUser returns a user by ID.
func (s *GormStore) GetUser(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ArchiveUser flags a user as archived. Users are never deleted.
func (s *GormStore) ArchiveUser(id string) error {
	return s.db.Model(&UserModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"archived": true, "updated_at": time.Now().UTC()}).Error
}

// SetUserTier updates the user's personalization tier.
func (s *GormStore) SetUserTier(id string, tier domain.Tier) error {
	return s.db.Model(&UserModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"tier": int(tier), "updated_at": time.Now().UTC()}).Error
}

// SaveJourney stores or updates a journey.
func (s *GormStore) SaveJourney(j domain.Journey) error {
	model := journeyToModel(j)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stage", "emotion_keywords",
			"reflection_prompt", "prompt_status", "image_key", "image_status",
			"guestbook_title", "guestbook_tags", "guestbook_text", "guestbook_status",
			"curator_message", "curator_status", "reactions",
			"reflected_at", "defused_at", "closed_at", "updated_at",
		}),
	}).Create(&model).Error
}

// GetJourney returns a journey by ID.
func (s *GormStore) GetJourney(id string) (domain.Journey, bool, error) {
	var model JourneyModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Journey{}, false, nil
		}
		return domain.Journey{}, false, err
	}
	return journeyFromModel(model), true, nil
}

// ListJourneysByUser returns a user's journeys newest-first.
func (s *GormStore) ListJourneysByUser(userID string, q JourneyQuery) ([]domain.Journey, error) {
	tx := s.db.Where("user_id = ?", userID)
	if !q.From.IsZero() {
		tx = tx.Where("started_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		tx = tx.Where("started_at <= ?", q.To)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var models []JourneyModel
	if err := tx.Order("started_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Journey, 0, len(models))
	for _, m := range models {
		res = append(res, journeyFromModel(m))
	}
	return res, nil
}

// AppendSignal inserts one signal event. Insert-only, no upsert.
func (s *GormStore) AppendSignal(e domain.SignalEvent) error {
	model := signalToModel(e)
	return s.db.Create(&model).Error
}

// ListSignalsByUser returns a user's events in arrival order.
func (s *GormStore) ListSignalsByUser(userID string) ([]domain.SignalEvent, error) {
	var models []SignalEventModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.SignalEvent, 0, len(models))
	for _, m := range models {
		res = append(res, signalFromModel(m))
	}
	return res, nil
}

// GetPersonalization returns the per-user tier record.
func (s *GormStore) GetPersonalization(userID string) (domain.PersonalizationState, bool, error) {
	var model PersonalizationModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.PersonalizationState{}, false, nil
		}
		return domain.PersonalizationState{}, false, err
	}
	return personalizationFromModel(model), true, nil
}

// SavePersonalization stores or updates the per-user tier record.
func (s *GormStore) SavePersonalization(p domain.PersonalizationState) error {
	model := personalizationToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tier", "training_job_id", "last_training_error", "updated_at"}),
	}).Create(&model).Error
}

// AppendCost inserts one cost record. Insert-only, no upsert.
func (s *GormStore) AppendCost(c domain.CostRecord) error {
	model := costToModel(c)
	return s.db.Create(&model).Error
}

// ListCostsByOwner returns cost records for an owner inside [from, to].
func (s *GormStore) ListCostsByOwner(ownerID string, from, to time.Time) ([]domain.CostRecord, error) {
	tx := s.db.Where("owner_id = ?", ownerID)
	if !from.IsZero() {
		tx = tx.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		tx = tx.Where("created_at <= ?", to)
	}
	var models []CostRecordModel
	if err := tx.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.CostRecord, 0, len(models))
	for _, m := range models {
		res = append(res, costFromModel(m))
	}
	return res, nil
}
