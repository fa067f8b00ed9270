package access

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// hydration is the common intermediate produced by every legacy source: the
// unified payload to upsert plus the write-back that bridges the legacy row
// to its unified id.
type hydration struct {
	payload   PublicAccessToken
	writeBack func(db *gorm.DB, unifiedID string, now time.Time) error
}

// legacyAdapter probes one legacy token source. A miss is (nil, nil);
// adapters never mutate their source beyond the write-back.
type legacyAdapter interface {
	source() LegacySource
	resolve(db *gorm.DB, token string) (*hydration, error)
}

// legacyAdapters returns the probe order. Share tokens are the most general
// shape and go first; student and subject tokens are family-scoped;
// folder-embedded tokens are the most specific fallback. The order is load
// bearing when a token value collides across sources.
func legacyAdapters() []legacyAdapter {
	return []legacyAdapter{
		shareTokenAdapter{},
		studentTokenAdapter{},
		subjectTokenAdapter{},
		folderAdapter{},
	}
}

type shareTokenAdapter struct{}

func (shareTokenAdapter) source() LegacySource {
	return SourceShareTokens
}

func (shareTokenAdapter) resolve(db *gorm.DB, token string) (*hydration, error) {
	var share ShareToken
	err := db.Where("token = ?", token).First(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("share token lookup failed: %w", err)
	}

	payload := PublicAccessToken{
		Token:           share.Token,
		AccessType:      shareAccessType(share),
		EventID:         ptr(share.EventID),
		FolderID:        share.FolderID,
		PhotoIDs:        share.PhotoIDs,
		ExpiresAt:       share.ExpiresAt,
		MaxViews:        share.MaxViews,
		ViewCount:       share.ViewCount,
		IsActive:        true,
		IsLegacy:        true,
		LegacySource:    ptr(string(SourceShareTokens)),
		LegacyReference: ptr(share.ID),
		Metadata: JSONMap{
			"allow_download":     share.AllowDownload,
			"allow_comments":     share.AllowComments,
			"password_protected": share.PasswordHash != nil,
		},
	}

	legacyID := share.ID
	return &hydration{
		payload: payload,
		writeBack: func(db *gorm.DB, unifiedID string, now time.Time) error {
			return db.Model(&ShareToken{}).
				Where("id = ?", legacyID).
				Updates(map[string]any{
					"public_access_token_id": unifiedID,
					"legacy_migrated_at":     now,
				}).Error
		},
	}, nil
}

func shareAccessType(share ShareToken) AccessType {
	switch share.ShareType {
	case "folder":
		return AccessShareFolder
	case "photos":
		return AccessSharePhotos
	case "event":
		return AccessShareEvent
	}

	// older rows predate the share_type column; infer from what they reference
	switch {
	case share.FolderID != nil:
		return AccessShareFolder
	case len(share.PhotoIDs) > 0:
		return AccessSharePhotos
	default:
		return AccessShareEvent
	}
}

type studentTokenAdapter struct{}

func (studentTokenAdapter) source() LegacySource {
	return SourceStudentTokens
}

func (studentTokenAdapter) resolve(db *gorm.DB, token string) (*hydration, error) {
	var record StudentToken
	err := db.Where("token = ?", token).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("student token lookup failed: %w", err)
	}

	payload := PublicAccessToken{
		Token:           record.Token,
		AccessType:      AccessFamilyStudent,
		StudentID:       ptr(record.StudentID),
		ExpiresAt:       record.ExpiresAt,
		IsActive:        true,
		IsLegacy:        true,
		LegacySource:    ptr(string(SourceStudentTokens)),
		LegacyReference: ptr(record.ID),
	}

	legacyID := record.ID
	return &hydration{
		payload: payload,
		writeBack: func(db *gorm.DB, unifiedID string, now time.Time) error {
			return db.Model(&StudentToken{}).
				Where("id = ?", legacyID).
				Updates(map[string]any{
					"public_access_token_id": unifiedID,
					"legacy_migrated_at":     now,
				}).Error
		},
	}, nil
}

type subjectTokenAdapter struct{}

func (subjectTokenAdapter) source() LegacySource {
	return SourceSubjectTokens
}

func (subjectTokenAdapter) resolve(db *gorm.DB, token string) (*hydration, error) {
	var record SubjectToken
	err := db.Where("token = ?", token).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("subject token lookup failed: %w", err)
	}

	payload := PublicAccessToken{
		Token:           record.Token,
		AccessType:      AccessFamilySubject,
		SubjectID:       ptr(record.SubjectID),
		ExpiresAt:       record.ExpiresAt,
		IsActive:        true,
		IsLegacy:        true,
		LegacySource:    ptr(string(SourceSubjectTokens)),
		LegacyReference: ptr(record.ID),
	}

	legacyID := record.ID
	return &hydration{
		payload: payload,
		writeBack: func(db *gorm.DB, unifiedID string, now time.Time) error {
			return db.Model(&SubjectToken{}).
				Where("id = ?", legacyID).
				Updates(map[string]any{
					"public_access_token_id": unifiedID,
					"legacy_migrated_at":     now,
				}).Error
		},
	}, nil
}

type folderAdapter struct{}

func (folderAdapter) source() LegacySource {
	return SourceFolders
}

func (folderAdapter) resolve(db *gorm.DB, token string) (*hydration, error) {
	var folder Folder
	err := db.Where("share_token = ?", token).First(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("folder share token lookup failed: %w", err)
	}

	payload := PublicAccessToken{
		Token:           token,
		AccessType:      AccessFolderShare,
		EventID:         folder.EventID,
		FolderID:        ptr(folder.ID),
		IsActive:        folder.IsPublished,
		IsLegacy:        true,
		LegacySource:    ptr(string(SourceFolders)),
		LegacyReference: ptr(folder.ID),
	}

	legacyID := folder.ID
	return &hydration{
		payload: payload,
		writeBack: func(db *gorm.DB, unifiedID string, now time.Time) error {
			return db.Model(&Folder{}).
				Where("id = ?", legacyID).
				Updates(map[string]any{
					"public_access_token_id": unifiedID,
					"legacy_migrated_at":     now,
				}).Error
		},
	}, nil
}

func ptr[T any](v T) *T {
	return &v
}
