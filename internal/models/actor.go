package models

// Role enum
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RoleLab     Role = "lab"
	RoleStaff   Role = "staff"
	RolePatient Role = "patient"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleLab, RoleStaff, RolePatient:
		return true
	}
	return false
}

// Actor is the authenticated user on whose behalf an operation runs.
// Name is what ends up in provenance fields such as addedBy.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// DisplayName returns the name used for provenance, falling back to the ID.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}
