package roles

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of application roles that decide which dashboard a user lands on.
type Role string

const (
	Admin   Role = "admin"
	Manager Role = "manager"
	User    Role = "user"
)

// Default is the role assigned when a stored value is absent or unrecognized.
const Default = User

// ErrUnknownRole is returned by Parse for values outside the closed set.
var ErrUnknownRole = errors.New("roles: unknown role")

// All lists every role in ascending privilege order.
func All() []Role {
	return []Role{User, Manager, Admin}
}

func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is a member of the closed set.
func (r Role) Valid() bool {
	switch r {
	case Admin, Manager, User:
		return true
	default:
		return false
	}
}

// Classify normalizes any raw role value into the closed set.
// Nil and unrecognized inputs collapse to Default; it never panics.
func Classify(raw any) Role {
	value, ok := coerce(raw)
	if !ok {
		return Default
	}
	role := Role(normalize(value))
	if !role.Valid() {
		return Default
	}
	return role
}

// Parse is the strict variant of Classify used when a caller assigns a role.
func Parse(raw string) (Role, error) {
	role := Role(normalize(raw))
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return role, nil
}

func coerce(raw any) (string, bool) {
	switch value := raw.(type) {
	case nil:
		return "", false
	case Role:
		return string(value), true
	case string:
		return value, true
	case *string:
		if value == nil {
			return "", false
		}
		return *value, true
	case []byte:
		return string(value), true
	case sql.NullString:
		return value.String, value.Valid
	case *sql.NullString:
		if value == nil || !value.Valid {
			return "", false
		}
		return value.String, true
	default:
		// fmt recovers from panicking String methods, so this stays total.
		return fmt.Sprint(value), true
	}
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
