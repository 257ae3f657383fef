package repositories_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"samadhaan/internal/repositories"
	"samadhaan/internal/repositories/repotest"
)

// Тесты против живого Postgres запускаются только при заданном DSN.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("SAMADHAAN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SAMADHAAN_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, repositories.Migrate(ctx, db))
	return db
}

var phoneSeq atomic.Int64

func uniquePhone() string {
	n := phoneSeq.Add(1)
	return fmt.Sprintf("+1%03d%07d", time.Now().UnixNano()%1000, n)
}

func TestPostgresOTPChallengeRepository(t *testing.T) {
	db := openTestDB(t)
	repotest.RunOTPChallengeSuite(t, func(*testing.T) repositories.OTPChallengeRepository {
		return repositories.NewOTPChallengeRepository(db)
	})
}

func TestPostgresRateWindowRepository(t *testing.T) {
	db := openTestDB(t)
	repotest.RunRateWindowSuite(t, func(*testing.T) repositories.RateWindowRepository {
		return repositories.NewRateWindowRepository(db)
	})
}

func TestPostgresSessionRepository(t *testing.T) {
	db := openTestDB(t)
	users := repositories.NewUserRepository(db)
	repotest.RunSessionSuite(t,
		func(*testing.T) repositories.SessionRepository { return repositories.NewSessionRepository(db) },
		func(t *testing.T) int64 {
			u, err := users.CreateByPhone(context.Background(), uniquePhone())
			require.NoError(t, err)
			return u.ID
		},
	)
}
