package profiles

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/cordis/internal/roles"
)

// Profile is the application-owned row carrying role and display data for one identity.
type Profile struct {
	ID        string    `gorm:"column:id;primaryKey;size:64;not null"`
	Email     string    `gorm:"column:email;size:320;not null"`
	FullName  *string   `gorm:"column:full_name;size:320"`
	Role      string    `gorm:"column:role;size:64;not null;default:user"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing profiles.
func (Profile) TableName() string {
	return "profiles"
}

// ClassifiedRole derives the closed-set role from the stored free-text value.
func (p Profile) ClassifiedRole() roles.Role {
	return roles.Classify(p.Role)
}

// DisplayName prefers the full name and falls back to the email.
func (p Profile) DisplayName() string {
	if p.FullName != nil {
		if name := strings.TrimSpace(*p.FullName); name != "" {
			return name
		}
	}
	return p.Email
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
