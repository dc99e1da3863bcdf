package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roamly/roamly-backend/internal/models"
	"github.com/roamly/roamly-backend/internal/repository"
)

func TestInviteCreatesPendingEntry(t *testing.T) {
	env := newTestEnv("bob")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	invitation, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, "bob", invitation.UserID)
	assert.Equal(t, models.RoleEditor, invitation.Role)
	assert.Equal(t, models.CollaboratorPending, invitation.Status)
	assert.Equal(t, "alice", invitation.InvitedBy)
	assert.Nil(t, invitation.AcceptedAt)

	// A pending invitee holds no permissions yet.
	decision, err := env.perm.Check(ctx, trip.ID, "bob", models.PermissionEditTrip)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	title := "Too early"
	_, err = env.trip.Update(ctx, trip.ID, "bob", &UpdateTripInput{Title: &title})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	pending, err := env.collab.PendingForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, trip.ID, pending[0].TripID)
	assert.Equal(t, "Summer in Portugal", pending[0].Title)
	assert.Equal(t, models.RoleEditor, pending[0].Role)
}

func TestInviteRejectsBadInput(t *testing.T) {
	env := newTestEnv("bob")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	_, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleOwner)
	assert.ErrorIs(t, err, ErrInvalidRole, "ownership is never granted by invite")

	_, err = env.collab.Invite(ctx, trip.ID, "alice", "alice", models.RoleEditor)
	assert.ErrorIs(t, err, ErrValidation, "self-invite")

	_, err = env.collab.Invite(ctx, trip.ID, "alice", "ghost", models.RoleEditor)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = env.collab.Invite(ctx, "no-such-trip", "alice", "bob", models.RoleEditor)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestInviteDoesNotLeakAccountExistence(t *testing.T) {
	env := newTestEnv("bob")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	// An unauthorized actor gets the same deny whether or not the invitee
	// account exists: authorization is checked before the lookup.
	_, existing := env.collab.Invite(ctx, trip.ID, "mallory", "bob", models.RoleEditor)
	assert.ErrorIs(t, existing, ErrPermissionDenied)

	_, unknown := env.collab.Invite(ctx, trip.ID, "mallory", "ghost", models.RoleEditor)
	assert.ErrorIs(t, unknown, ErrPermissionDenied)

	// Viewers hold view only; same rule applies to them.
	_, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleViewer)
	require.NoError(t, err)
	_, err = env.collab.Accept(ctx, trip.ID, "bob")
	require.NoError(t, err)

	_, err = env.collab.Invite(ctx, trip.ID, "bob", "ghost", models.RoleViewer)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestInviteDuplicateGuards(t *testing.T) {
	env := newTestEnv("bob")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	_, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleEditor)
	require.NoError(t, err)

	_, err = env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleEditor)
	assert.ErrorIs(t, err, ErrInvitationPending)

	_, err = env.collab.Accept(ctx, trip.ID, "bob")
	require.NoError(t, err)

	_, err = env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleViewer)
	assert.ErrorIs(t, err, ErrAlreadyCollaborator)
}

func TestInvitePermissionByRole(t *testing.T) {
	env := newTestEnv("bob", "carol", "dave")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	for user, role := range map[string]models.Role{"bob": models.RoleEditor, "carol": models.RoleViewer} {
		_, err := env.collab.Invite(ctx, trip.ID, "alice", user, role)
		require.NoError(t, err)
		_, err = env.collab.Accept(ctx, trip.ID, user)
		require.NoError(t, err)
	}

	// Editors may invite, viewers may not.
	_, err := env.collab.Invite(ctx, trip.ID, "bob", "dave", models.RoleViewer)
	assert.NoError(t, err)

	err = env.collab.Decline(ctx, trip.ID, "dave")
	require.NoError(t, err)

	_, err = env.collab.Invite(ctx, trip.ID, "carol", "dave", models.RoleViewer)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAcceptGrantsRolePermissions(t *testing.T) {
	env := newTestEnv("bob")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	_, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleEditor)
	require.NoError(t, err)

	collaboration, err := env.collab.Accept(ctx, trip.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.CollaboratorAccepted, collaboration.Status)
	require.NotNil(t, collaboration.AcceptedAt)

	edit, err := env.perm.Check(ctx, trip.ID, "bob", models.PermissionEditTrip)
	require.NoError(t, err)
	assert.True(t, edit.Allowed)
	assert.Equal(t, models.RoleEditor, edit.Role)

	del, err := env.perm.Check(ctx, trip.ID, "bob", models.PermissionDeleteTrip)
	require.NoError(t, err)
	assert.False(t, del.Allowed)

	// The trip now shows up in bob's list.
	trips, _, err := env.trip.ListForUser(ctx, "bob", nil)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, trip.ID, trips[0].ID)
}

func TestAcceptWithoutInvitation(t *testing.T) {
	env := newTestEnv("bob")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	_, err := env.collab.Accept(ctx, trip.ID, "bob")
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	_, err = env.collab.Accept(ctx, "no-such-trip", "bob")
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	// Accepting twice: the second accept finds no pending entry.
	_, err = env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleViewer)
	require.NoError(t, err)
	_, err = env.collab.Accept(ctx, trip.ID, "bob")
	require.NoError(t, err)
	_, err = env.collab.Accept(ctx, trip.ID, "bob")
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestDeclineThenReinviteRearmsEntry(t *testing.T) {
	env := newTestEnv("bob")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	_, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleEditor)
	require.NoError(t, err)
	err = env.collab.Decline(ctx, trip.ID, "bob")
	require.NoError(t, err)

	decision, err := env.perm.Check(ctx, trip.ID, "bob", models.PermissionViewTrip)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	pending, err := env.collab.PendingForUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A fresh invite reuses the slot, possibly with a different role.
	invitation, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, models.CollaboratorPending, invitation.Status)
	assert.Equal(t, models.RoleViewer, invitation.Role)
	assert.Nil(t, invitation.AcceptedAt)

	// Still exactly one entry for bob on the trip.
	stored, err := env.tripRepo.FindByID(ctx, trip.ID)
	require.NoError(t, err)
	count := 0
	for _, c := range stored.Collaborators {
		if c.UserID == "bob" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRemoveCollaboratorRevokesAccess(t *testing.T) {
	env := newTestEnv("bob")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	_, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleEditor)
	require.NoError(t, err)
	_, err = env.collab.Accept(ctx, trip.ID, "bob")
	require.NoError(t, err)

	// Prime bob's caches: trip list and a permission decision.
	trips, _, err := env.trip.ListForUser(ctx, "bob", nil)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	decision, err := env.perm.Check(ctx, trip.ID, "bob", models.PermissionViewTrip)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	err = env.collab.Remove(ctx, trip.ID, "alice", "bob")
	require.NoError(t, err)

	// Access is revoked immediately, despite the primed caches.
	decision, err = env.perm.Check(ctx, trip.ID, "bob", models.PermissionViewTrip)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	_, err = env.trip.Get(ctx, trip.ID, "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	trips, _, err = env.trip.ListForUser(ctx, "bob", nil)
	require.NoError(t, err)
	assert.Empty(t, trips)
}

func TestRemoveGuards(t *testing.T) {
	env := newTestEnv("bob", "carol")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	_, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleEditor)
	require.NoError(t, err)
	_, err = env.collab.Accept(ctx, trip.ID, "bob")
	require.NoError(t, err)

	// The owner can never be removed.
	err = env.collab.Remove(ctx, trip.ID, "alice", "alice")
	assert.ErrorIs(t, err, ErrStateConflict)

	// Editors do not manage collaborators.
	err = env.collab.Remove(ctx, trip.ID, "bob", "alice")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// Removing someone without an active entry.
	err = env.collab.Remove(ctx, trip.ID, "alice", "carol")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemovePendingRevokesInvitation(t *testing.T) {
	env := newTestEnv("bob")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	_, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleEditor)
	require.NoError(t, err)

	err = env.collab.Remove(ctx, trip.ID, "alice", "bob")
	require.NoError(t, err)

	_, err = env.collab.Accept(ctx, trip.ID, "bob")
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestChangeRole(t *testing.T) {
	env := newTestEnv("bob", "carol")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	_, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleEditor)
	require.NoError(t, err)
	_, err = env.collab.Accept(ctx, trip.ID, "bob")
	require.NoError(t, err)

	collaboration, err := env.collab.ChangeRole(ctx, trip.ID, "alice", "bob", models.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, collaboration.Role)

	// The demotion takes effect on the next permission check.
	decision, err := env.perm.Check(ctx, trip.ID, "bob", models.PermissionEditTrip)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	_, err = env.collab.ChangeRole(ctx, trip.ID, "alice", "bob", models.RoleOwner)
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = env.collab.ChangeRole(ctx, trip.ID, "alice", "alice", models.RoleViewer)
	assert.ErrorIs(t, err, ErrStateConflict)

	// Role changes require an accepted entry.
	_, err = env.collab.Invite(ctx, trip.ID, "alice", "carol", models.RoleViewer)
	require.NoError(t, err)
	_, err = env.collab.ChangeRole(ctx, trip.ID, "alice", "carol", models.RoleEditor)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestCollaboratorsRequiresViewAccess(t *testing.T) {
	env := newTestEnv("bob")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	_, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleViewer)
	require.NoError(t, err)

	collaborators, err := env.collab.Collaborators(ctx, trip.ID, "alice")
	require.NoError(t, err)
	assert.Len(t, collaborators, 2)

	_, err = env.collab.Collaborators(ctx, trip.ID, "mallory")
	assert.ErrorIs(t, err, ErrNotFound)

	// Pending invitees cannot see the roster yet either.
	_, err = env.collab.Collaborators(ctx, trip.ID, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpireStaleInvites(t *testing.T) {
	env := newTestEnv("bob", "carol")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	_, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleEditor)
	require.NoError(t, err)
	_, err = env.collab.Invite(ctx, trip.ID, "alice", "carol", models.RoleViewer)
	require.NoError(t, err)

	// Only bob's invitation has gone stale.
	env.tripRepo.backdateInvite(trip.ID, "bob", time.Now().Add(-45*24*time.Hour))

	expired, err := env.collab.ExpireStaleInvites(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	_, err = env.collab.Accept(ctx, trip.ID, "bob")
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	_, err = env.collab.Accept(ctx, trip.ID, "carol")
	assert.NoError(t, err)

	assert.Contains(t, env.activityRepo.actions(trip.ID), models.ActivityInvitationExpired)
}

func TestConcurrentMembershipWritesRetry(t *testing.T) {
	env := newTestEnv("bob")
	ctx := context.Background()
	trip := env.mustCreateTrip(ctx, "alice", "Summer in Portugal")

	_, err := env.collab.Invite(ctx, trip.ID, "alice", "bob", models.RoleEditor)
	require.NoError(t, err)

	// An interleaved field update bumps the version between the guard's
	// read and the swap; the accept must retry and still land.
	env.tripRepo.beforeReplace = func() {
		title := "Race"
		if _, err := env.tripRepo.UpdateFields(ctx, trip.ID, &repository.TripPatch{Title: &title}, "alice"); err != nil {
			t.Errorf("interleaved update: %v", err)
		}
	}

	collaboration, err := env.collab.Accept(ctx, trip.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.CollaboratorAccepted, collaboration.Status)
}
