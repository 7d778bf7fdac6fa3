package drive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/events"
	"github.com/fruitsalade/bucketdrive/internal/logging"
)

// General access modes.
const (
	AccessPublic     = "public"
	AccessRestricted = "restricted"
)

// Roles.
const (
	RoleViewer    = "viewer"
	RoleCommenter = "commenter"
	RoleEditor    = "editor"
)

var validate = validator.New()

// SharedUser is one grantee.
type SharedUser struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role,omitempty" validate:"omitempty,oneof=viewer commenter editor"`
}

// SharingSettings is the sharing record of one key.
type SharingSettings struct {
	GeneralAccess string       `json:"generalAccess"`
	GeneralRole   string       `json:"generalRole,omitempty"`
	SharedWith    []SharedUser `json:"sharedWith"`
	UpdatedAt     time.Time    `json:"updatedAt,omitzero"`
}

func defaultSharing() SharingSettings {
	return SharingSettings{GeneralAccess: AccessRestricted, SharedWith: []SharedUser{}}
}

func (st SharingSettings) isShared() bool {
	return st.GeneralAccess == AccessPublic || len(st.SharedWith) > 0
}

// sharesWith reports whether email appears in SharedWith, ignoring case.
func (st SharingSettings) sharesWith(email string) bool {
	for _, u := range st.SharedWith {
		if strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

// SharingUpdate carries the fields to change. Nil fields keep their
// current value; a non-nil empty SharedWith clears the list.
type SharingUpdate struct {
	GeneralAccess *string      `validate:"omitempty,oneof=public restricted"`
	GeneralRole   *string      `validate:"omitempty,oneof=viewer commenter editor"`
	SharedWith    []SharedUser `validate:"omitempty,dive"`
}

func (s *Service) sharingTable(ctx context.Context) (map[string]SharingSettings, error) {
	return sharingDoc.load(ctx, s, false)
}

// FileSharing returns the sharing record for key, or the restricted
// default when the key was never shared.
func (s *Service) FileSharing(ctx context.Context, key string) (SharingSettings, error) {
	table, err := s.sharingTable(ctx)
	if err != nil {
		return SharingSettings{}, err
	}
	st, ok := table[key]
	if !ok {
		return defaultSharing(), nil
	}
	st.SharedWith = append([]SharedUser{}, st.SharedWith...)
	return st, nil
}

// UpdateSharing merges upd into the record for key and stamps UpdatedAt.
func (s *Service) UpdateSharing(ctx context.Context, key string, upd SharingUpdate) (SharingSettings, error) {
	if strings.TrimSpace(key) == "" {
		return SharingSettings{}, invalidArgument("key is required")
	}
	if isHidden(key) {
		return SharingSettings{}, invalidArgument("cannot share %q", key)
	}
	if err := validate.Struct(upd); err != nil {
		return SharingSettings{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	var merged SharingSettings
	_, err := sharingDoc.update(ctx, s, func(table map[string]SharingSettings) (map[string]SharingSettings, bool, error) {
		st, ok := table[key]
		if !ok {
			st = defaultSharing()
		}
		if upd.GeneralAccess != nil {
			st.GeneralAccess = *upd.GeneralAccess
		}
		if upd.GeneralRole != nil {
			st.GeneralRole = *upd.GeneralRole
		}
		if upd.SharedWith != nil {
			st.SharedWith = append([]SharedUser{}, upd.SharedWith...)
		}
		if st.SharedWith == nil {
			st.SharedWith = []SharedUser{}
		}
		st.UpdatedAt = s.now()
		table[key] = st
		merged = st
		return table, true, nil
	})
	if err != nil {
		return SharingSettings{}, err
	}

	logging.WithContext(ctx).Info("sharing updated",
		logging.Key(key),
		zap.String("access", merged.GeneralAccess),
		zap.Int("grantees", len(merged.SharedWith)))
	s.mutated(events.EventShare, key, 0)
	return merged, nil
}
