package access

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AccessType string

const (
	AccessShareEvent    AccessType = "share_event"
	AccessShareFolder   AccessType = "share_folder"
	AccessSharePhotos   AccessType = "share_photos"
	AccessFolderShare   AccessType = "folder_share"
	AccessFamilySubject AccessType = "family_subject"
	AccessFamilyStudent AccessType = "family_student"
)

type LegacySource string

const (
	SourceShareTokens   LegacySource = "share_tokens"
	SourceSubjectTokens LegacySource = "subject_tokens"
	SourceStudentTokens LegacySource = "student_tokens"
	SourceFolders       LegacySource = "folders"
)

// StringList stores a list of ids as a JSON text column, matching the
// array columns of the upstream store.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
}

// JSONMap stores a free-form metadata blob as a JSON text column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}
}

// PublicAccessToken is the unified token row. Its schema is the wire format
// other services agree on; legacy tokens are migrated into it on first
// resolution.
type PublicAccessToken struct {
	ID               string     `json:"id" gorm:"primarykey"`
	Token            string     `json:"token" gorm:"uniqueIndex;not null"`
	AccessType       AccessType `json:"access_type" gorm:"not null"`
	EventID          *string    `json:"event_id"`
	FolderID         *string    `json:"folder_id"`
	PhotoIDs         StringList `json:"photo_ids" gorm:"type:text"`
	SubjectID        *string    `json:"subject_id"`
	StudentID        *string    `json:"student_id"`
	ExpiresAt        *time.Time `json:"expires_at"`
	MaxViews         *int       `json:"max_views"`
	ViewCount        int        `json:"view_count" gorm:"default:0"`
	IsActive         bool       `json:"is_active" gorm:"default:true"`
	IsLegacy         bool       `json:"is_legacy" gorm:"default:false"`
	LegacySource     *string    `json:"legacy_source"`
	LegacyReference  *string    `json:"legacy_reference"`
	LegacyMigratedAt *time.Time `json:"legacy_migrated_at"`
	Metadata         JSONMap    `json:"metadata" gorm:"type:text"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (PublicAccessToken) TableName() string {
	return "public_access_tokens"
}

func (t *PublicAccessToken) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Expired reports whether the token has an expiry in the past. Expired
// tokens still resolve; callers decide how to message them.
func (t *PublicAccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// ViewsExhausted reports whether a max-view cap exists and has been reached.
func (t *PublicAccessToken) ViewsExhausted() bool {
	return t.MaxViews != nil && t.ViewCount >= *t.MaxViews
}

// ShareToken is a legacy admin-issued share covering an event, a folder or
// an explicit photo list.
type ShareToken struct {
	ID                  string     `json:"id" gorm:"primarykey"`
	Token               string     `json:"token" gorm:"uniqueIndex;not null"`
	EventID             string     `json:"event_id" gorm:"not null"`
	FolderID            *string    `json:"folder_id"`
	PhotoIDs            StringList `json:"photo_ids" gorm:"type:text"`
	ShareType           string     `json:"share_type" gorm:"not null"`
	ExpiresAt           *time.Time `json:"expires_at"`
	MaxViews            *int       `json:"max_views"`
	ViewCount           int        `json:"view_count" gorm:"default:0"`
	PasswordHash        *string    `json:"-"`
	AllowDownload       bool       `json:"allow_download" gorm:"default:true"`
	AllowComments       bool       `json:"allow_comments" gorm:"default:false"`
	PublicAccessTokenID *string    `json:"public_access_token_id"`
	LegacyMigratedAt    *time.Time `json:"legacy_migrated_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (ShareToken) TableName() string {
	return "share_tokens"
}

func (t *ShareToken) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// SubjectToken is a legacy family token scoped to one photographed subject.
type SubjectToken struct {
	ID                  string     `json:"id" gorm:"primarykey"`
	Token               string     `json:"token" gorm:"uniqueIndex;not null"`
	SubjectID           string     `json:"subject_id" gorm:"not null"`
	ExpiresAt           *time.Time `json:"expires_at"`
	PublicAccessTokenID *string    `json:"public_access_token_id"`
	LegacyMigratedAt    *time.Time `json:"legacy_migrated_at"`
	CreatedAt           time.Time  `json:"created_at"`
}

func (SubjectToken) TableName() string {
	return "subject_tokens"
}

func (t *SubjectToken) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// StudentToken is a legacy family token scoped to one enrolled student.
type StudentToken struct {
	ID                  string     `json:"id" gorm:"primarykey"`
	Token               string     `json:"token" gorm:"uniqueIndex;not null"`
	StudentID           string     `json:"student_id" gorm:"not null"`
	ExpiresAt           *time.Time `json:"expires_at"`
	PublicAccessTokenID *string    `json:"public_access_token_id"`
	LegacyMigratedAt    *time.Time `json:"legacy_migrated_at"`
	CreatedAt           time.Time  `json:"created_at"`
}

func (StudentToken) TableName() string {
	return "student_tokens"
}

func (t *StudentToken) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Folder carries its own embedded share token, the oldest sharing scheme
// still in the wild.
type Folder struct {
	ID                  string     `json:"id" gorm:"primarykey"`
	Name                string     `json:"name" gorm:"not null"`
	EventID             *string    `json:"event_id"`
	ShareToken          *string    `json:"share_token" gorm:"uniqueIndex"`
	IsPublished         bool       `json:"is_published" gorm:"default:false"`
	PhotoCount          int        `json:"photo_count" gorm:"default:0"`
	PublicAccessTokenID *string    `json:"public_access_token_id"`
	LegacyMigratedAt    *time.Time `json:"legacy_migrated_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (Folder) TableName() string {
	return "folders"
}

func (f *Folder) BeforeCreate(_ *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

type Event struct {
	ID         string     `json:"id" gorm:"primarykey"`
	Name       string     `json:"name" gorm:"not null"`
	SchoolName string     `json:"school_name"`
	Date       *time.Time `json:"date"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (Event) TableName() string {
	return "events"
}

func (e *Event) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

type Subject struct {
	ID        string    `json:"id" gorm:"primarykey"`
	Name      string    `json:"name" gorm:"not null"`
	EventID   *string   `json:"event_id"`
	CourseID  *string   `json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Subject) TableName() string {
	return "subjects"
}

func (s *Subject) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

type Student struct {
	ID        string    `json:"id" gorm:"primarykey"`
	Name      string    `json:"name" gorm:"not null"`
	EventID   *string   `json:"event_id"`
	CourseID  *string   `json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Student) TableName() string {
	return "students"
}

func (s *Student) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Course groups students/subjects within an event (a class or grade).
type Course struct {
	ID        string    `json:"id" gorm:"primarykey"`
	Name      string    `json:"name" gorm:"not null"`
	EventID   *string   `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Course) TableName() string {
	return "courses"
}

func (c *Course) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Models lists every table this module owns or bridges, for auto-migration.
func Models() []any {
	return []any{
		&PublicAccessToken{},
		&ShareToken{},
		&SubjectToken{},
		&StudentToken{},
		&Folder{},
		&Event{},
		&Subject{},
		&Student{},
		&Course{},
	}
}
