package access

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFamilyAccess marks a token that resolved but grants an
	// admin-facing share, not family access. Distinct from an unknown
	// token, which resolves to (nil, nil).
	ErrNotFamilyAccess = errors.New("token does not grant family access")

	// ErrFamilyContextMissing marks a family token whose referenced
	// folder/student/subject no longer exists.
	ErrFamilyContextMissing = errors.New("family access context could not be loaded")
)

type FamilyKind string

const (
	FamilyFolder  FamilyKind = "folder"
	FamilyStudent FamilyKind = "student"
	FamilySubject FamilyKind = "subject"
)

// FamilyAccess narrows a resolved token to exactly one family-facing
// context.
type FamilyAccess struct {
	Kind    FamilyKind
	Token   PublicAccessToken
	Event   *EventSummary
	Folder  *FolderSummary
	Student *StudentSummary
	Subject *SubjectSummary
}

// ResolveFamilyAccess projects ResolveAccessToken onto the family-facing
// access kinds. Unknown tokens return (nil, nil); known tokens of an
// admin share kind return ErrNotFamilyAccess so callers can message the
// two cases differently.
func (s *Service) ResolveFamilyAccess(ctx context.Context, token string) (*FamilyAccess, error) {
	resolved, err := s.ResolveAccessToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("family access resolution failed: %w", err)
	}
	if resolved == nil {
		return nil, nil
	}

	family := &FamilyAccess{
		Token: resolved.Token,
		Event: resolved.Event,
	}

	switch resolved.Token.AccessType {
	case AccessFolderShare:
		if resolved.Folder == nil {
			return nil, ErrFamilyContextMissing
		}
		family.Kind = FamilyFolder
		family.Folder = resolved.Folder

	case AccessFamilyStudent:
		if resolved.Student == nil {
			return nil, ErrFamilyContextMissing
		}
		family.Kind = FamilyStudent
		family.Student = resolved.Student

	case AccessFamilySubject:
		if resolved.Subject == nil {
			return nil, ErrFamilyContextMissing
		}
		family.Kind = FamilySubject
		family.Subject = resolved.Subject

	default:
		return nil, ErrNotFamilyAccess
	}

	return family, nil
}
