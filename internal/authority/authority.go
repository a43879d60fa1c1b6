// Package authority answers one question for the lifecycle engine: does
// this actor hold an elevated role within an organization. It owns no
// state and never writes; the waive guard is its only consumer.
package authority

import (
	"opscheck/backend/internal/storage"
)

// RoleProvider is the capability lookup the waive operation depends on.
// Implementations must fail closed: on any lookup error the caller treats
// the actor as unauthorized.
type RoleProvider interface {
	HasAnyRole(orgID, actorID string, roles ...string) (bool, error)
}

// Service resolves roles through the storage layer.
type Service struct {
	Storage storage.Storage
}

// NewService creates a storage-backed role provider.
func NewService(s storage.Storage) *Service {
	return &Service{Storage: s}
}

// HasAnyRole reports whether the actor holds at least one of the given
// roles within the organization.
func (s *Service) HasAnyRole(orgID, actorID string, roles ...string) (bool, error) {
	held, err := s.Storage.GetMemberRoles(orgID, actorID)
	if err != nil {
		return false, err
	}
	for _, have := range held {
		for _, want := range roles {
			if have == want {
				return true, nil
			}
		}
	}
	return false, nil
}
