package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories"
	"samadhaan/internal/repositories/repotest"
)

func TestOTPChallengeRepository(t *testing.T) {
	repotest.RunOTPChallengeSuite(t, func(*testing.T) repositories.OTPChallengeRepository {
		return NewOTPChallengeRepository()
	})
}

func TestRateWindowRepository(t *testing.T) {
	repotest.RunRateWindowSuite(t, func(*testing.T) repositories.RateWindowRepository {
		return NewRateWindowRepository()
	})
}

func TestSessionRepository(t *testing.T) {
	repotest.RunSessionSuite(t,
		func(*testing.T) repositories.SessionRepository { return NewSessionRepository() },
		func(*testing.T) int64 { return 42 },
	)
}

func TestUserRepository_CreateAndMemberships(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	_, err := repo.FindByPhone(ctx, "+919876543210")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	u, err := repo.CreateByPhone(ctx, "+919876543210")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)

	_, err = repo.CreateByPhone(ctx, "+919876543210")
	assert.ErrorIs(t, err, repositories.ErrConflict)

	found, err := repo.FindByPhone(ctx, "+919876543210")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	repo.AddMembership(u.ID, models.Organization{ID: 7, Name: "Ward 12 Office", Role: "officer"})
	orgs, err := repo.ListOrganizations(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "Ward 12 Office", orgs[0].Name)

	_, err = repo.GetByID(ctx, u.ID+100)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
