package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// OrgMember records the roles an actor holds within one organization.
// The waive guard consults it through the authority check; nothing in
// this core ever writes to it.
type OrgMember struct {
	ID      string `gorm:"primaryKey" json:"id"`
	OrgID   string `gorm:"index:idx_org_actor,unique" json:"org_id"`
	ActorID string `gorm:"index:idx_org_actor,unique" json:"actor_id"`

	// Roles within the organization, e.g. "owner", "admin", "manager",
	// "server".
	Roles pq.StringArray `gorm:"type:text[]" json:"roles"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate is a GORM hook that assigns a UUID when no ID is set.
func (m *OrgMember) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// HasAnyRole reports whether the membership carries at least one of the
// given roles.
func (m *OrgMember) HasAnyRole(roles ...string) bool {
	for _, have := range m.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
