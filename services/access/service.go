package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumenfoto/fotoaccess/config"
	"github.com/lumenfoto/fotoaccess/services/audit"
	"github.com/lumenfoto/fotoaccess/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidSharePassword = errors.New("invalid share password")
	ErrNoSharePassword      = errors.New("share is not password protected")
)

// FailureTracker feeds the adaptive rate limiter with authentication
// outcomes. Satisfied by the rate-limit tracker.
type FailureTracker interface {
	TrackAuthFailure(identifier, email string)
	ResetAuthFailures(identifier, email string)
}

type EventSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SchoolName string `json:"school_name"`
}

type FolderSummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	EventID     *string `json:"event_id"`
	PhotoCount  int     `json:"photo_count"`
	IsPublished bool    `json:"is_published"`
}

type SubjectSummary struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	EventID    *string `json:"event_id"`
	CourseName string  `json:"course_name"`
}

type StudentSummary struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	EventID    *string `json:"event_id"`
	CourseName string  `json:"course_name"`
}

// ResolvedAccess is the normalized access context for a token. Exactly one
// of Folder/Subject/Student is set for context-bearing access types; Event
// is derived lazily from whichever entity carries an event linkage.
type ResolvedAccess struct {
	Token   PublicAccessToken
	Event   *EventSummary
	Folder  *FolderSummary
	Subject *SubjectSummary
	Student *StudentSummary
}

// Valid reports whether the access is currently usable: active, not
// expired, views not exhausted. Resolution never filters on this; callers
// use it to choose between "expired" and "not found" messaging.
func (r *ResolvedAccess) Valid(now time.Time) bool {
	return r.Token.IsActive && !r.Token.Expired(now) && !r.Token.ViewsExhausted()
}

type Service struct {
	config   *config.Config
	db       *gorm.DB
	audit    *audit.Service
	logger   *logging.Service
	tracker  FailureTracker
	adapters []legacyAdapter
}

func NewService(cfg *config.Config, db *gorm.DB, auditSvc *audit.Service, logger *logging.Service) *Service {
	return &Service{
		config:   cfg,
		db:       db,
		audit:    auditSvc,
		logger:   logger,
		adapters: legacyAdapters(),
	}
}

func (s *Service) SetFailureTracker(tracker FailureTracker) {
	s.tracker = tracker
}

// ResolveAccessToken resolves an opaque token to its access context. The
// unified table is consulted first; on a miss each legacy source is probed
// in fixed priority order and the first hit is migrated into the unified
// table ("hydration"). Returns (nil, nil) when the token is unknown
// everywhere; errors are infrastructure failures only.
func (s *Service) ResolveAccessToken(ctx context.Context, token string) (*ResolvedAccess, error) {
	if token == "" {
		return nil, nil
	}

	db := s.db.WithContext(ctx)

	var unified PublicAccessToken
	err := db.Where("token = ?", token).First(&unified).Error
	switch {
	case err == nil:
		resolved, err := s.buildResolved(db, unified)
		if err != nil {
			return nil, err
		}
		s.audit.LogEvent(audit.ActionTokenResolved, map[string]any{
			"token":       token,
			"access_type": string(unified.AccessType),
			"is_legacy":   unified.IsLegacy,
		}, audit.SeverityInfo)
		return resolved, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("unified token lookup failed: %w", err)
	}

	for _, adapter := range s.adapters {
		hyd, err := adapter.resolve(db, token)
		if err != nil {
			return nil, err
		}
		if hyd == nil {
			continue
		}

		hydrated, err := s.hydrate(db, token, adapter, hyd)
		if err != nil {
			return nil, err
		}

		return s.buildResolved(db, *hydrated)
	}

	s.audit.LogEvent(audit.ActionTokenMiss, map[string]any{"token": token}, audit.SeverityWarning)
	return nil, nil
}

// hydrate migrates a legacy hit into the unified table. The upsert is keyed
// on token so two concurrent first resolutions cannot create two rows; the
// legacy row then gets the unified id bridged back.
func (s *Service) hydrate(db *gorm.DB, token string, adapter legacyAdapter, hyd *hydration) (*PublicAccessToken, error) {
	now := time.Now()

	payload := hyd.payload
	payload.Token = token
	payload.LegacyMigratedAt = &now

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_type", "event_id", "folder_id", "photo_ids",
			"subject_id", "student_id", "expires_at", "max_views",
			"is_active", "is_legacy", "legacy_source", "legacy_reference",
			"legacy_migrated_at", "updated_at",
		}),
	}).Create(&payload).Error
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate unified token: %w", err)
	}

	var unified PublicAccessToken
	if err := db.Where("token = ?", token).First(&unified).Error; err != nil {
		return nil, fmt.Errorf("failed to re-fetch hydrated token: %w", err)
	}

	if err := hyd.writeBack(db, unified.ID, now); err != nil {
		return nil, fmt.Errorf("failed to bridge legacy %s row: %w", adapter.source(), err)
	}

	s.audit.LogEvent(audit.ActionTokenHydrated, map[string]any{
		"token":            token,
		"access_type":      string(unified.AccessType),
		"legacy_source":    string(adapter.source()),
		"public_access_id": unified.ID,
	}, audit.SeverityInfo)

	s.logger.Info("hydrated legacy access token",
		zap.String("legacy_source", string(adapter.source())),
		zap.String("access_type", string(unified.AccessType)),
		zap.String("public_access_id", unified.ID))

	return &unified, nil
}

// buildResolved attaches the context entities the access type references.
// Missing referenced entities leave the summary nil rather than failing;
// the event is fetched once, from whichever entity links one.
func (s *Service) buildResolved(db *gorm.DB, unified PublicAccessToken) (*ResolvedAccess, error) {
	resolved := &ResolvedAccess{Token: unified}
	eventID := unified.EventID

	switch unified.AccessType {
	case AccessShareFolder, AccessFolderShare:
		folder, err := s.loadFolder(db, unified)
		if err != nil {
			return nil, err
		}
		if folder != nil {
			resolved.Folder = &FolderSummary{
				ID:          folder.ID,
				Name:        folder.Name,
				EventID:     folder.EventID,
				PhotoCount:  folder.PhotoCount,
				IsPublished: folder.IsPublished,
			}
			if folder.EventID != nil {
				eventID = folder.EventID
			}
		}

	case AccessFamilySubject:
		if unified.SubjectID != nil {
			var subject Subject
			err := db.Where("id = ?", *unified.SubjectID).First(&subject).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("subject lookup failed: %w", err)
			}
			if err == nil {
				courseName, err := s.loadCourseName(db, subject.CourseID)
				if err != nil {
					return nil, err
				}
				resolved.Subject = &SubjectSummary{
					ID:         subject.ID,
					Name:       subject.Name,
					EventID:    subject.EventID,
					CourseName: courseName,
				}
				if subject.EventID != nil {
					eventID = subject.EventID
				}
			}
		}

	case AccessFamilyStudent:
		if unified.StudentID != nil {
			var student Student
			err := db.Where("id = ?", *unified.StudentID).First(&student).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("student lookup failed: %w", err)
			}
			if err == nil {
				courseName, err := s.loadCourseName(db, student.CourseID)
				if err != nil {
					return nil, err
				}
				resolved.Student = &StudentSummary{
					ID:         student.ID,
					Name:       student.Name,
					EventID:    student.EventID,
					CourseName: courseName,
				}
				if student.EventID != nil {
					eventID = student.EventID
				}
			}
		}
	}

	if eventID != nil {
		var event Event
		err := db.Where("id = ?", *eventID).First(&event).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("event lookup failed: %w", err)
		}
		if err == nil {
			resolved.Event = &EventSummary{
				ID:         event.ID,
				Name:       event.Name,
				SchoolName: event.SchoolName,
			}
		}
	}

	return resolved, nil
}

func (s *Service) loadFolder(db *gorm.DB, unified PublicAccessToken) (*Folder, error) {
	var folder Folder
	var err error

	switch {
	case unified.FolderID != nil:
		err = db.Where("id = ?", *unified.FolderID).First(&folder).Error
	case unified.AccessType == AccessFolderShare:
		// pre-hydration unified rows may carry only the embedded token
		err = db.Where("share_token = ?", unified.Token).First(&folder).Error
	default:
		return nil, nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("folder lookup failed: %w", err)
	}

	return &folder, nil
}

func (s *Service) loadCourseName(db *gorm.DB, courseID *string) (string, error) {
	if courseID == nil {
		return "", nil
	}

	var course Course
	err := db.Where("id = ?", *courseID).First(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("course lookup failed: %w", err)
	}

	return course.Name, nil
}

// RecordShareView bumps the view counter on the unified row and, for
// migrated share tokens, on the legacy row too. The increment is a single
// SQL expression per row, so sequential calls never lose counts; under
// true concurrency the semantics are at-least-once.
func (s *Service) RecordShareView(ctx context.Context, resolved *ResolvedAccess, meta map[string]any) error {
	if resolved == nil {
		return nil
	}

	db := s.db.WithContext(ctx)
	now := time.Now()

	merged := JSONMap{}
	for k, v := range resolved.Token.Metadata {
		merged[k] = v
	}
	for k, v := range meta {
		merged[k] = v
	}
	merged["last_viewed_at"] = now.UTC().Format(time.RFC3339)

	err := db.Model(&PublicAccessToken{}).
		Where("id = ?", resolved.Token.ID).
		Updates(map[string]any{
			"view_count": gorm.Expr("view_count + 1"),
			"metadata":   merged,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record unified view: %w", err)
	}

	if resolved.Token.LegacySource != nil &&
		*resolved.Token.LegacySource == string(SourceShareTokens) &&
		resolved.Token.LegacyReference != nil {
		err := db.Model(&ShareToken{}).
			Where("id = ?", *resolved.Token.LegacyReference).
			UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
		if err != nil {
			return fmt.Errorf("failed to record legacy view: %w", err)
		}
	}

	s.audit.LogEvent(audit.ActionShareViewRecorded, map[string]any{
		"token":       resolved.Token.Token,
		"access_type": string(resolved.Token.AccessType),
	}, audit.SeverityInfo)

	return nil
}

// VerifySharePassword checks a password-protected share. Failures feed the
// adaptive rate limiter for the caller's identifier; success clears it.
func (s *Service) VerifySharePassword(share *ShareToken, password, identifier string) error {
	if share.PasswordHash == nil {
		return ErrNoSharePassword
	}

	if err := comparePassword(*share.PasswordHash, password); err != nil {
		if s.tracker != nil {
			s.tracker.TrackAuthFailure(identifier, "")
		}
		s.audit.LogEvent(audit.ActionAuthFailure, map[string]any{
			"token":      share.Token,
			"identifier": identifier,
			"reason":     "bad share password",
		}, audit.SeverityWarning)
		return ErrInvalidSharePassword
	}

	if s.tracker != nil {
		s.tracker.ResetAuthFailures(identifier, "")
	}

	return nil
}
