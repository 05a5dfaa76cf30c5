package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session statuses
const (
	StatusDraft      = "draft"
	StatusGenerating = "generating"
	StatusFinal      = "final"
	StatusSubmitted  = "submitted"
)

// Block count bounds, user-chosen at runtime
const (
	MinBlockCount = 1
	MaxBlockCount = 10
)

// Word limit bounds for the generated pitch
const (
	MinWordLimit     = 400
	MaxWordLimit     = 1000
	DefaultWordLimit = 650
)

// PitchSession represents one application pitch in progress: the wizard
// position, the STAR example blocks, lock state, and job correlation metadata.
type PitchSession struct {
	ID                 uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OwnerID            string        `gorm:"type:varchar(255);not null;index:idx_pitch_sessions_owner" json:"owner_id"`
	RoleName           string        `gorm:"type:varchar(255)" json:"role_name"`
	RoleLevel          string        `gorm:"type:varchar(50)" json:"role_level"`
	RoleDescription    string        `gorm:"type:text" json:"role_description"`
	YearsExperience    int           `gorm:"default:0" json:"years_experience"`
	RelevantExperience string        `gorm:"type:text" json:"relevant_experience"`
	GuidanceText       string        `gorm:"type:text" json:"guidance_text,omitempty"`
	WordLimit          int           `gorm:"not null;default:650" json:"word_limit"`
	BlockCount         int           `gorm:"not null;default:2" json:"block_count"`
	Blocks             BlockEnvelope `gorm:"type:jsonb" json:"blocks"`
	CurrentStep        int           `gorm:"not null;default:1" json:"current_step"`
	Status             string        `gorm:"type:varchar(50);not null;default:'draft'" json:"status"`
	Locked             bool          `gorm:"not null;default:false" json:"locked"`
	CorrelationToken   *string       `gorm:"type:varchar(255);index:idx_pitch_sessions_token" json:"correlation_token,omitempty"`
	GuidanceSeq        int64         `gorm:"not null;default:0" json:"guidance_seq"`
	GeneratedPitch     string        `gorm:"type:text" json:"generated_pitch,omitempty"`
	FieldErrors        JSONB         `gorm:"type:jsonb" json:"field_errors,omitempty"`
	CreatedAt          time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (PitchSession) TableName() string {
	return "pitch_sessions"
}

// BeforeCreate GORM hook
func (s *PitchSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.WordLimit == 0 {
		s.WordLimit = DefaultWordLimit
	}
	if s.Status == "" {
		s.Status = StatusDraft
	}
	if s.CurrentStep == 0 {
		s.CurrentStep = 1
	}
	return nil
}

// ValidStatuses returns list of valid session statuses
func ValidStatuses() []string {
	return []string{
		StatusDraft,
		StatusGenerating,
		StatusFinal,
		StatusSubmitted,
	}
}

// IsValidStatus checks if a status is valid
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// IsValidBlockCount checks the user-chosen example count bounds
func IsValidBlockCount(n int) bool {
	return n >= MinBlockCount && n <= MaxBlockCount
}

// JSONB is a custom type for JSONB columns
type JSONB map[string]interface{}

// Value implements driver.Valuer for JSONB columns
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner for JSONB columns
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONB: %T", value)
	}

	return json.Unmarshal(data, j)
}
