package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/cordis/internal/auth"
	"github.com/MarcoPoloResearchLab/cordis/internal/roles"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrMissingIdentityID indicates an empty identity id was supplied.
	ErrMissingIdentityID = errors.New("profiles: identity id required")
	// ErrProfileNotFound is returned by mutations when no profile row exists.
	ErrProfileNotFound = errors.New("profiles: profile not found")
	// ErrInvalidRole is returned when assigning a role outside the closed set.
	ErrInvalidRole = errors.New("profiles: invalid role")
)

// ServiceConfig describes the dependencies required for profile access.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service reads and mutates profile rows.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// ProfileUpdate carries the fields a user may edit on their own profile.
type ProfileUpdate struct {
	FullName *string
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("profiles: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// FetchProfile returns the profile for the identity, or nil when no row exists yet.
func (s *Service) FetchProfile(ctx context.Context, identityID string) (*Profile, error) {
	identityID = normalize(identityID)
	if identityID == "" {
		return nil, ErrMissingIdentityID
	}

	var profile Profile
	err := s.db.WithContext(ctx).
		Where("id = ?", identityID).
		Take(&profile).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// EnsureProfile inserts the default profile for a freshly created identity.
// It reports whether a row was created; an existing row is left untouched.
func (s *Service) EnsureProfile(ctx context.Context, identity auth.Identity) (*Profile, bool, error) {
	identityID := normalize(identity.ID)
	if identityID == "" {
		return nil, false, ErrMissingIdentityID
	}

	now := s.now().UTC()
	profile := Profile{
		ID:        identityID,
		Email:     strings.ToLower(normalize(identity.Email)),
		Role:      string(roles.Default),
		CreatedAt: now,
		UpdatedAt: now,
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&profile)
	if result.Error != nil {
		return nil, false, result.Error
	}
	created := result.RowsAffected > 0

	stored, err := s.FetchProfile(ctx, identityID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, ErrProfileNotFound
	}
	if created {
		s.logger.Info("profile created", zap.String("identity_id", identityID))
	}
	return stored, created, nil
}

// UpdateProfile applies a self-service profile edit.
func (s *Service) UpdateProfile(ctx context.Context, identityID string, update ProfileUpdate) (*Profile, error) {
	identityID = normalize(identityID)
	if identityID == "" {
		return nil, ErrMissingIdentityID
	}

	updates := map[string]interface{}{
		"updated_at": s.now().UTC(),
	}
	if update.FullName != nil {
		fullName := normalize(*update.FullName)
		if fullName == "" {
			updates["full_name"] = nil
		} else {
			updates["full_name"] = fullName
		}
	}
	return s.applyUpdates(ctx, identityID, updates)
}

// AssignRole sets the role of another profile; only closed-set roles are stored.
func (s *Service) AssignRole(ctx context.Context, identityID string, role roles.Role) (*Profile, error) {
	identityID = normalize(identityID)
	if identityID == "" {
		return nil, ErrMissingIdentityID
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	profile, err := s.applyUpdates(ctx, identityID, map[string]interface{}{
		"role":       string(role),
		"updated_at": s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("profile role assigned", zap.String("identity_id", identityID), zap.String("role", string(role)))
	return profile, nil
}

func (s *Service) applyUpdates(ctx context.Context, identityID string, updates map[string]interface{}) (*Profile, error) {
	result := s.db.WithContext(ctx).
		Model(&Profile{}).
		Where("id = ?", identityID).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrProfileNotFound
	}
	profile, err := s.FetchProfile(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	return profile, nil
}
