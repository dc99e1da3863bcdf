package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roamly/roamly-backend/internal/cache"
	"github.com/roamly/roamly-backend/internal/models"
	"github.com/roamly/roamly-backend/internal/notification"
	"github.com/roamly/roamly-backend/internal/repository"
)

// Collaborator entries move pending → accepted | declined and
// accepted → removed. Declined and removed entries are terminal, but a
// fresh invite re-arms the existing entry back to pending: at most one
// entry per user is kept on a trip, history lives in the activity log.

// collaboratorSwapRetries bounds the compare-and-swap loop that
// serializes concurrent membership changes on one trip.
const collaboratorSwapRetries = 3

// PendingInvitation is a pending entry joined with its trip summary.
type PendingInvitation struct {
	TripID      string      `json:"tripId"`
	Title       string      `json:"title"`
	Destination string      `json:"destination"`
	Role        models.Role `json:"role"`
	InvitedBy   string      `json:"invitedBy"`
	InvitedAt   time.Time   `json:"invitedAt"`
}

type CollaborationService interface {
	Invite(ctx context.Context, tripID, inviterID, inviteeID string, role models.Role) (*models.Collaborator, error)
	Accept(ctx context.Context, tripID, userID string) (*models.Collaborator, error)
	Decline(ctx context.Context, tripID, userID string) error
	Remove(ctx context.Context, tripID, actorID, targetUserID string) error
	ChangeRole(ctx context.Context, tripID, actorID, targetUserID string, newRole models.Role) (*models.Collaborator, error)
	Collaborators(ctx context.Context, tripID, userID string) ([]models.Collaborator, error)
	PendingForUser(ctx context.Context, userID string) ([]*PendingInvitation, error)
	ExpireStaleInvites(ctx context.Context, ttl time.Duration) (int, error)
}

type collaborationService struct {
	tripRepo    repository.TripRepository
	userRepo    repository.UserRepository
	permSvc     PermissionService
	activitySvc ActivityService
	cache       *cache.Coordinator
	notifSvc    *notification.Service
}

func NewCollaborationService(
	tripRepo repository.TripRepository,
	userRepo repository.UserRepository,
	permSvc PermissionService,
	activitySvc ActivityService,
	coordinator *cache.Coordinator,
	notifSvc *notification.Service,
) CollaborationService {
	return &collaborationService{
		tripRepo:    tripRepo,
		userRepo:    userRepo,
		permSvc:     permSvc,
		activitySvc: activitySvc,
		cache:       coordinator,
		notifSvc:    notifSvc,
	}
}

// mutateCollaborators runs a guarded read-modify-write on the trip's
// collaborator list. The guard re-evaluates on every attempt against a
// fresh authoritative read, so interleaved operations on the same trip
// cannot both pass a guard that only one of them should.
func (s *collaborationService) mutateCollaborators(
	ctx context.Context,
	tripID, actorID string,
	guard func(trip *models.Trip) ([]models.Collaborator, error),
) (before *models.Trip, after *models.Trip, err error) {
	for attempt := 0; attempt < collaboratorSwapRetries; attempt++ {
		trip, err := s.tripRepo.FindByID(ctx, tripID)
		if err != nil {
			return nil, nil, fmt.Errorf("load trip: %w", err)
		}
		if trip == nil {
			return nil, nil, ErrNotFound
		}

		collaborators, err := guard(trip)
		if err != nil {
			return nil, nil, err
		}

		updated, err := s.tripRepo.ReplaceCollaborators(ctx, tripID, collaborators, actorID, trip.Version)
		if errors.Is(err, repository.ErrVersionMismatch) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("replace collaborators: %w", err)
		}
		if updated == nil {
			return nil, nil, ErrNotFound
		}
		return trip, updated, nil
	}
	return nil, nil, ErrVersionConflict
}

func (s *collaborationService) Invite(ctx context.Context, tripID, inviterID, inviteeID string, role models.Role) (*models.Collaborator, error) {
	if !role.IsInvitable() {
		return nil, ErrInvalidRole
	}
	if inviteeID == "" || inviteeID == inviterID {
		return nil, ErrValidation
	}

	// Authorize before the invitee lookup: an actor without invite rights
	// must not learn whether an account exists.
	if err := s.authorize(ctx, tripID, inviterID, models.PermissionInviteUsers); err != nil {
		return nil, err
	}

	exists, err := s.userRepo.Exists(ctx, inviteeID)
	if err != nil {
		return nil, fmt.Errorf("lookup invitee: %w", err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	now := time.Now().UTC()
	before, after, err := s.mutateCollaborators(ctx, tripID, inviterID, func(trip *models.Trip) ([]models.Collaborator, error) {
		if entry := trip.Collaborator(inviteeID); entry != nil {
			switch entry.Status {
			case models.CollaboratorAccepted:
				return nil, ErrAlreadyCollaborator
			case models.CollaboratorPending:
				return nil, ErrInvitationPending
			}
			// Terminal entry: re-arm it as a fresh invitation.
			collaborators := cloneCollaborators(trip.Collaborators)
			entry = findCollaborator(collaborators, inviteeID)
			entry.Role = role
			entry.Status = models.CollaboratorPending
			entry.InvitedBy = inviterID
			entry.InvitedAt = now
			entry.AcceptedAt = nil
			return collaborators, nil
		}
		return append(cloneCollaborators(trip.Collaborators), models.Collaborator{
			UserID:    inviteeID,
			Role:      role,
			Status:    models.CollaboratorPending,
			InvitedBy: inviterID,
			InvitedAt: now,
		}), nil
	})
	if err != nil {
		return nil, err
	}

	invitation := after.Collaborator(inviteeID)

	s.activitySvc.Log(ctx, tripID, inviterID, models.ActivityInvitationSent,
		map[string]string{"invitee": inviteeID, "role": string(role)})
	s.invalidateMembershipChange(ctx, tripID, before, inviteeID)
	s.notifSvc.NotifyUser(inviteeID, notification.EventCollaboratorInvited, invitation)
	s.notifSvc.PublishTripEvent(tripID, notification.EventCollaboratorInvited, invitation, inviterID)

	return invitation, nil
}

func (s *collaborationService) Accept(ctx context.Context, tripID, userID string) (*models.Collaborator, error) {
	now := time.Now().UTC()
	before, after, err := s.mutateCollaborators(ctx, tripID, userID, func(trip *models.Trip) ([]models.Collaborator, error) {
		entry := trip.Collaborator(userID)
		if entry == nil || entry.Status != models.CollaboratorPending {
			return nil, ErrInvitationNotFound
		}
		collaborators := cloneCollaborators(trip.Collaborators)
		entry = findCollaborator(collaborators, userID)
		entry.Status = models.CollaboratorAccepted
		entry.AcceptedAt = &now
		entry.LastActiveAt = &now
		return collaborators, nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}

	collaboration := after.Collaborator(userID)

	s.activitySvc.Log(ctx, tripID, userID, models.ActivityInvitationAccepted, nil)
	s.invalidateMembershipChange(ctx, tripID, before, userID)
	s.notifSvc.PublishTripEvent(tripID, notification.EventCollaboratorAccepted, collaboration, userID)

	return collaboration, nil
}

func (s *collaborationService) Decline(ctx context.Context, tripID, userID string) error {
	before, _, err := s.mutateCollaborators(ctx, tripID, userID, func(trip *models.Trip) ([]models.Collaborator, error) {
		entry := trip.Collaborator(userID)
		if entry == nil || entry.Status != models.CollaboratorPending {
			return nil, ErrInvitationNotFound
		}
		collaborators := cloneCollaborators(trip.Collaborators)
		findCollaborator(collaborators, userID).Status = models.CollaboratorDeclined
		return collaborators, nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrInvitationNotFound
	}
	if err != nil {
		return err
	}

	s.activitySvc.Log(ctx, tripID, userID, models.ActivityInvitationDeclined, nil)
	s.invalidateMembershipChange(ctx, tripID, before, userID)
	s.notifSvc.PublishTripEvent(tripID, notification.EventCollaboratorDeclined,
		map[string]string{"userId": userID}, userID)

	return nil
}

// Remove drops an accepted collaborator or revokes a still-pending
// invitation. The owner can never be removed.
func (s *collaborationService) Remove(ctx context.Context, tripID, actorID, targetUserID string) error {
	if err := s.authorize(ctx, tripID, actorID, models.PermissionManageCollaborators); err != nil {
		return err
	}

	before, _, err := s.mutateCollaborators(ctx, tripID, actorID, func(trip *models.Trip) ([]models.Collaborator, error) {
		if targetUserID == trip.OwnerID {
			return nil, ErrStateConflict
		}
		entry := trip.Collaborator(targetUserID)
		if entry == nil || !entry.IsActive() {
			return nil, ErrNotFound
		}
		collaborators := cloneCollaborators(trip.Collaborators)
		findCollaborator(collaborators, targetUserID).Status = models.CollaboratorRemoved
		return collaborators, nil
	})
	if err != nil {
		return err
	}

	s.activitySvc.Log(ctx, tripID, actorID, models.ActivityCollaboratorRemoved,
		map[string]string{"target": targetUserID})
	s.invalidateMembershipChange(ctx, tripID, before, targetUserID)
	s.notifSvc.NotifyUser(targetUserID, notification.EventCollaboratorRemoved,
		map[string]string{"tripId": tripID})
	s.notifSvc.PublishTripEvent(tripID, notification.EventCollaboratorRemoved,
		map[string]string{"userId": targetUserID}, actorID)

	return nil
}

func (s *collaborationService) ChangeRole(ctx context.Context, tripID, actorID, targetUserID string, newRole models.Role) (*models.Collaborator, error) {
	if !newRole.IsInvitable() {
		return nil, ErrInvalidRole
	}

	if err := s.authorize(ctx, tripID, actorID, models.PermissionManageCollaborators); err != nil {
		return nil, err
	}

	var oldRole models.Role
	before, after, err := s.mutateCollaborators(ctx, tripID, actorID, func(trip *models.Trip) ([]models.Collaborator, error) {
		if targetUserID == trip.OwnerID {
			return nil, ErrStateConflict
		}
		entry := trip.Collaborator(targetUserID)
		if entry == nil {
			return nil, ErrNotFound
		}
		if entry.Status != models.CollaboratorAccepted {
			return nil, ErrStateConflict
		}
		oldRole = entry.Role
		collaborators := cloneCollaborators(trip.Collaborators)
		findCollaborator(collaborators, targetUserID).Role = newRole
		return collaborators, nil
	})
	if err != nil {
		return nil, err
	}

	collaboration := after.Collaborator(targetUserID)

	s.activitySvc.Log(ctx, tripID, actorID, models.ActivityRoleChanged,
		map[string]string{"target": targetUserID, "from": string(oldRole), "to": string(newRole)})
	s.invalidateMembershipChange(ctx, tripID, before, targetUserID)
	s.notifSvc.PublishTripEvent(tripID, notification.EventCollaboratorRoleChanged, collaboration, actorID)

	return collaboration, nil
}

func (s *collaborationService) Collaborators(ctx context.Context, tripID, userID string) ([]models.Collaborator, error) {
	decision, err := s.permSvc.Check(ctx, tripID, userID, models.PermissionViewTrip)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, ErrNotFound
	}
	trip, err := loadTripCached(ctx, s.cache, s.tripRepo, tripID)
	if err != nil {
		return nil, err
	}
	return trip.Collaborators, nil
}

func (s *collaborationService) PendingForUser(ctx context.Context, userID string) ([]*PendingInvitation, error) {
	if userID == "" {
		return nil, ErrValidation
	}
	trips, err := s.tripRepo.ListPendingForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}

	invitations := make([]*PendingInvitation, 0, len(trips))
	for _, trip := range trips {
		entry := trip.Collaborator(userID)
		if entry == nil || entry.Status != models.CollaboratorPending {
			continue
		}
		invitations = append(invitations, &PendingInvitation{
			TripID:      trip.ID,
			Title:       trip.Title,
			Destination: trip.Destination,
			Role:        entry.Role,
			InvitedBy:   entry.InvitedBy,
			InvitedAt:   entry.InvitedAt,
		})
	}
	return invitations, nil
}

// ExpireStaleInvites declines pending invitations older than ttl. Run
// from the scheduler; actor is recorded as "system".
func (s *collaborationService) ExpireStaleInvites(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	trips, err := s.tripRepo.ListWithStalePendingInvites(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale invites: %w", err)
	}

	expired := 0
	for _, stale := range trips {
		var expiredUsers []string
		before, _, err := s.mutateCollaborators(ctx, stale.ID, "system", func(trip *models.Trip) ([]models.Collaborator, error) {
			expiredUsers = expiredUsers[:0]
			collaborators := cloneCollaborators(trip.Collaborators)
			for i := range collaborators {
				if collaborators[i].Status == models.CollaboratorPending && collaborators[i].InvitedAt.Before(cutoff) {
					collaborators[i].Status = models.CollaboratorDeclined
					expiredUsers = append(expiredUsers, collaborators[i].UserID)
				}
			}
			if len(expiredUsers) == 0 {
				return nil, ErrNotFound
			}
			return collaborators, nil
		})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return expired, err
		}

		for _, userID := range expiredUsers {
			s.activitySvc.Log(ctx, stale.ID, "system", models.ActivityInvitationExpired,
				map[string]string{"invitee": userID})
			s.invalidateMembershipChange(ctx, stale.ID, before, userID)
			expired++
		}
	}
	return expired, nil
}

// authorize resolves the actor's permission through the evaluator,
// mapping a deny to ErrPermissionDenied.
func (s *collaborationService) authorize(ctx context.Context, tripID, userID string, permission models.Permission) error {
	decision, err := s.permSvc.Check(ctx, tripID, userID, permission)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return ErrPermissionDenied
	}
	return nil
}

// invalidateMembershipChange applies the write-path cache contract for a
// collaboration-affecting mutation: the trip's own entry, the trip lists
// of everyone accepted before the mutation plus the affected user, and
// the affected user's permission decisions.
func (s *collaborationService) invalidateMembershipChange(ctx context.Context, tripID string, before *models.Trip, targetUserID string) {
	s.cache.InvalidateTripAndFanOut(ctx, tripID, before.AcceptedCollaboratorIDs())
	s.cache.InvalidateUserTrips(ctx, targetUserID)
	s.cache.InvalidatePermissions(ctx, tripID, targetUserID)
}

func cloneCollaborators(collaborators []models.Collaborator) []models.Collaborator {
	cloned := make([]models.Collaborator, len(collaborators))
	copy(cloned, collaborators)
	return cloned
}

func findCollaborator(collaborators []models.Collaborator, userID string) *models.Collaborator {
	for i := range collaborators {
		if collaborators[i].UserID == userID {
			return &collaborators[i]
		}
	}
	return nil
}
