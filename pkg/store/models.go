package store

import (
	"time"

	"gorm.io/datatypes"

	"emoseum/pkg/domain"
)

// GORM models used for persistence. Slice and struct fields persist as JSON
// columns.

type UserModel struct {
	ID          string                                   `gorm:"primaryKey"`
	Nickname    string                                   `gorm:"not null"`
	Tier        int                                      `gorm:"not null"`
	CopingStyle string                                   `gorm:"not null"`
	Style       datatypes.JSONType[domain.StyleProfile]  `gorm:"not null"`
	Archived    bool                                     `gorm:"not null"`
	CreatedAt   time.Time                                `gorm:"not null"`
	UpdatedAt   time.Time                                `gorm:"not null"`
}

type JourneyModel struct {
	ID              string                              `gorm:"primaryKey"`
	UserID          string                              `gorm:"not null;index"`
	Stage           string                              `gorm:"not null"`
	DiaryText       string                              `gorm:"not null"`
	EmotionKeywords datatypes.JSONSlice[string]
	VAD             datatypes.JSONType[domain.VADScore] `gorm:"not null"`

	ReflectionPrompt string
	PromptStatus     string `gorm:"not null"`
	ImageKey         string
	ImageStatus      string `gorm:"not null"`

	GuestbookTitle  string
	GuestbookTags   datatypes.JSONSlice[string]
	GuestbookText   string
	GuestbookStatus string `gorm:"not null"`

	CuratorMessage string
	CuratorStatus  string `gorm:"not null"`

	Reactions datatypes.JSONSlice[string]

	StartedAt   time.Time `gorm:"not null;index"`
	ReflectedAt time.Time
	DefusedAt   time.Time
	ClosedAt    time.Time
	UpdatedAt   time.Time `gorm:"not null"`
}

type SignalEventModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Kind      string    `gorm:"not null"`
	Weight    float64   `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type PersonalizationModel struct {
	UserID            string `gorm:"primaryKey"`
	Tier              int    `gorm:"not null"`
	TrainingJobID     string
	LastTrainingError string
	UpdatedAt         time.Time `gorm:"not null"`
}

type CostRecordModel struct {
	ID         string    `gorm:"primaryKey"`
	OwnerID    string    `gorm:"not null;index"`
	Capability string    `gorm:"not null"`
	UnitCost   float64   `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:          u.ID,
		Nickname:    u.Nickname,
		Tier:        int(u.Tier),
		CopingStyle: string(u.CopingStyle),
		Style:       datatypes.NewJSONType(u.Style),
		Archived:    u.Archived,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:          m.ID,
		Nickname:    m.Nickname,
		Tier:        domain.Tier(m.Tier),
		CopingStyle: domain.CopingStyle(m.CopingStyle),
		Style:       m.Style.Data(),
		Archived:    m.Archived,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func journeyToModel(j domain.Journey) JourneyModel {
	return JourneyModel{
		ID:               j.ID,
		UserID:           j.UserID,
		Stage:            string(j.Stage),
		DiaryText:        j.DiaryText,
		EmotionKeywords:  datatypes.NewJSONSlice(j.EmotionKeywords),
		VAD:              datatypes.NewJSONType(j.VAD),
		ReflectionPrompt: j.ReflectionPrompt,
		PromptStatus:     string(j.PromptStatus),
		ImageKey:         j.ImageKey,
		ImageStatus:      string(j.ImageStatus),
		GuestbookTitle:   j.GuestbookTitle,
		GuestbookTags:    datatypes.NewJSONSlice(j.GuestbookTags),
		GuestbookText:    j.GuestbookText,
		GuestbookStatus:  string(j.GuestbookStatus),
		CuratorMessage:   j.CuratorMessage,
		CuratorStatus:    string(j.CuratorStatus),
		Reactions:        datatypes.NewJSONSlice(j.Reactions),
		StartedAt:        j.StartedAt,
		ReflectedAt:      j.ReflectedAt,
		DefusedAt:        j.DefusedAt,
		ClosedAt:         j.ClosedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

func journeyFromModel(m JourneyModel) domain.Journey {
	return domain.Journey{
		ID:               m.ID,
		UserID:           m.UserID,
		Stage:            domain.Stage(m.Stage),
		DiaryText:        m.DiaryText,
		EmotionKeywords:  m.EmotionKeywords,
		VAD:              m.VAD.Data(),
		ReflectionPrompt: m.ReflectionPrompt,
		PromptStatus:     domain.SafetyStatus(m.PromptStatus),
		ImageKey:         m.ImageKey,
		ImageStatus:      domain.SafetyStatus(m.ImageStatus),
		GuestbookTitle:   m.GuestbookTitle,
		GuestbookTags:    m.GuestbookTags,
		GuestbookText:    m.GuestbookText,
		GuestbookStatus:  domain.SafetyStatus(m.GuestbookStatus),
		CuratorMessage:   m.CuratorMessage,
		CuratorStatus:    domain.SafetyStatus(m.CuratorStatus),
		Reactions:        m.Reactions,
		StartedAt:        m.StartedAt,
		ReflectedAt:      m.ReflectedAt,
		DefusedAt:        m.DefusedAt,
		ClosedAt:         m.ClosedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func signalToModel(e domain.SignalEvent) SignalEventModel {
	return SignalEventModel{
		ID:        e.ID,
		UserID:    e.UserID,
		Kind:      string(e.Kind),
		Weight:    e.Weight,
		CreatedAt: e.CreatedAt,
	}
}

func signalFromModel(m SignalEventModel) domain.SignalEvent {
	return domain.SignalEvent{
		ID:        m.ID,
		UserID:    m.UserID,
		Kind:      domain.SignalKind(m.Kind),
		Weight:    m.Weight,
		CreatedAt: m.CreatedAt,
	}
}

func personalizationToModel(p domain.PersonalizationState) PersonalizationModel {
	return PersonalizationModel{
		UserID:            p.UserID,
		Tier:              int(p.Tier),
		TrainingJobID:     p.TrainingJobID,
		LastTrainingError: p.LastTrainingError,
		UpdatedAt:         p.UpdatedAt,
	}
}

func personalizationFromModel(m PersonalizationModel) domain.PersonalizationState {
	return domain.PersonalizationState{
		UserID:            m.UserID,
		Tier:              domain.Tier(m.Tier),
		TrainingJobID:     m.TrainingJobID,
		LastTrainingError: m.LastTrainingError,
		UpdatedAt:         m.UpdatedAt,
	}
}

func costToModel(c domain.CostRecord) CostRecordModel {
	return CostRecordModel{
		ID:         c.ID,
		OwnerID:    c.OwnerID,
		Capability: c.Capability,
		UnitCost:   c.UnitCost,
		CreatedAt:  c.CreatedAt,
	}
}

func costFromModel(m CostRecordModel) domain.CostRecord {
	return domain.CostRecord{
		ID:         m.ID,
		OwnerID:    m.OwnerID,
		Capability: m.Capability,
		UnitCost:   m.UnitCost,
		CreatedAt:  m.CreatedAt,
	}
}
