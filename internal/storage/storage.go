package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"opscheck/backend/internal/config"
	"opscheck/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Storage is the persistence boundary of the lifecycle core. It is the
// only place that talks to PostgreSQL and Redis; everything above it works
// with typed models.
type Storage interface {
	CreateViolation(v *models.Violation) error
	GetViolationByID(id string) (*models.Violation, error)

	// CommitStatus performs the conditional commit: the row is updated
	// only when its current status still equals from. It reports whether
	// a row was updated; false means another actor won the race or the
	// violation was never in the expected state.
	CommitStatus(id string, from, to models.Status, fields map[string]interface{}) (bool, error)

	// ForceResolve commits unconditionally on the violation id, without
	// checking the prior status. Only the legacy resolve path may use it.
	ForceResolve(id string, fields map[string]interface{}) (bool, error)

	AppendEvent(event *models.ViolationEvent, payload map[string]string) error
	GetEventsForViolation(violationID string) ([]models.ViolationEvent, error)

	GetMemberRoles(orgID, actorID string) ([]string, error)
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// CreateViolation inserts a new violation row in PostgreSQL.
func (s *Service) CreateViolation(v *models.Violation) error {
	if err := s.DB.Create(v).Error; err != nil {
		log.Printf("ERROR: Failed to create violation for org %s: %v", v.OrgID, err)
		return err
	}
	return nil
}

// GetViolationByID returns the violation row, or nil without an error when
// no row exists.
func (s *Service) GetViolationByID(id string) (*models.Violation, error) {
	var v models.Violation
	err := s.DB.Where("id = ?", id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Printf("ERROR: Failed to get violation %s: %v", id, err)
		return nil, err
	}
	return &v, nil
}

// CommitStatus is the compare-and-swap primitive. The WHERE clause scopes
// the update by both id and the expected prior status, so a concurrent
// transition makes RowsAffected zero instead of clobbering the winner.
func (s *Service) CommitStatus(id string, from, to models.Status, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := s.DB.Model(&models.Violation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		log.Printf("ERROR: Failed to commit %s -> %s for violation %s: %v", from, to, id, result.Error)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ForceResolve updates the row scoped by id only. This bypasses the CAS
// check and can race past a concurrent transition; see the legacy resolve
// operation for why it exists.
func (s *Service) ForceResolve(id string, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     models.StatusResolved,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := s.DB.Model(&models.Violation{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		log.Printf("ERROR: Failed to force-resolve violation %s: %v", id, result.Error)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AppendEvent writes one row to the append-only event log and publishes it
// on the live feed. Publish failures are logged, never surfaced: the log
// row is the durable fact, the feed is best effort.
func (s *Service) AppendEvent(event *models.ViolationEvent, payload map[string]string) error {
	if err := event.EncodeMetadata(payload); err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := s.DB.Create(event).Error; err != nil {
		log.Printf("ERROR: Failed to append %s event for violation %s: %v", event.EventType, event.ViolationID, err)
		return err
	}

	if err := s.publishEvent(event); err != nil {
		log.Printf("WARN: Failed to publish %s event for violation %s: %v", event.EventType, event.ViolationID, err)
	}
	return nil
}

// GetEventsForViolation loads the full history in replay order: occurred_at
// first, surrogate id as the tie-breaker.
func (s *Service) GetEventsForViolation(violationID string) ([]models.ViolationEvent, error) {
	var events []models.ViolationEvent
	err := s.DB.Where("violation_id = ?", violationID).
		Order("occurred_at asc, id asc").
		Find(&events).Error
	if err != nil {
		log.Printf("ERROR: Failed to get events for violation %s: %v", violationID, err)
		return nil, err
	}
	return events, nil
}

// publishEvent pushes the event to the Redis feed channel as JSON.
func (s *Service) publishEvent(event *models.ViolationEvent) error {
	if s.Redis == nil {
		return nil
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, config.EventFeedChannel, string(msgBytes)).Err()
}

// SubscribeToEventFeed subscribes to the live event feed channel.
func (s *Service) SubscribeToEventFeed() *redis.PubSub {
	return s.Redis.Subscribe(s.Ctx, config.EventFeedChannel)
}

func roleCacheKey(orgID, actorID string) string {
	return "roles:" + orgID + ":" + actorID
}

// GetMemberRoles returns the roles the actor holds within the org. Redis
// is a read-through cache in front of PostgreSQL; any cache problem falls
// back to the database. An actor with no membership row gets an empty
// role list, not an error.
func (s *Service) GetMemberRoles(orgID, actorID string) ([]string, error) {
	if s.Redis != nil {
		cached, err := s.Redis.Get(s.Ctx, roleCacheKey(orgID, actorID)).Result()
		if err == nil {
			var roles []string
			if jsonErr := json.Unmarshal([]byte(cached), &roles); jsonErr == nil {
				return roles, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			log.Printf("WARN: Role cache read failed for %s/%s: %v", orgID, actorID, err)
		}
	}

	var member models.OrgMember
	err := s.DB.Where("org_id = ? AND actor_id = ?", orgID, actorID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []string{}, nil
	}
	if err != nil {
		log.Printf("ERROR: Failed to look up roles for %s/%s: %v", orgID, actorID, err)
		return nil, err
	}

	roles := []string(member.Roles)
	if s.Redis != nil {
		if msgBytes, jsonErr := json.Marshal(roles); jsonErr == nil {
			if setErr := s.Redis.Set(s.Ctx, roleCacheKey(orgID, actorID), string(msgBytes), config.RoleCacheTTL).Err(); setErr != nil {
				log.Printf("WARN: Role cache write failed for %s/%s: %v", orgID, actorID, setErr)
			}
		}
	}
	return roles, nil
}
