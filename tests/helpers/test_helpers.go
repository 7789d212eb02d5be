package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"momentumAPI/internal/database"
)

// SetupTestDB connects to the test database and ensures the schema
// exists. Tests that need Postgres are skipped when neither
// TEST_DATABASE_URL nor DATABASE_URL is set.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL must be set for database tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return pool
}

// CleanupTestDB removes rows created by the test helpers. Everything
// hangs off users via ON DELETE CASCADE.
func CleanupTestDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	_, err := pool.Exec(ctx, "DELETE FROM users WHERE clerk_id LIKE 'user_test_%'")
	if err != nil {
		t.Logf("Warning: failed to cleanup test data: %v", err)
	}
	pool.Close()
}

// CreateTestUser inserts a user with a unique clerk ID and returns the
// database ID plus the clerk ID.
func CreateTestUser(t *testing.T, pool *pgxpool.Pool) (uuid.UUID, string) {
	t.Helper()

	clerkID := fmt.Sprintf("user_test_%s", uuid.NewString())
	var userID uuid.UUID
	err := pool.QueryRow(context.Background(), `
		INSERT INTO users (clerk_id, email, username)
		VALUES ($1, $2, $3)
		RETURNING id
	`, clerkID, clerkID+"@example.com", clerkID).Scan(&userID)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return userID, clerkID
}

// CreateTestChallenge inserts a challenge with the given tasks and
// returns the challenge ID plus the task IDs in sort order.
func CreateTestChallenge(t *testing.T, pool *pgxpool.Pool, creatorID uuid.UUID, durationDays int, allowGrace bool, gracePerWeek int, tasks ...string) (uuid.UUID, []uuid.UUID) {
	t.Helper()

	ctx := context.Background()
	var challengeID uuid.UUID
	err := pool.QueryRow(ctx, `
		INSERT INTO challenges (creator_id, name, duration_days, allow_grace_skips, grace_skips_per_week)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, creatorID, "Test Challenge "+uuid.NewString()[:8], durationDays, allowGrace, gracePerWeek).Scan(&challengeID)
	if err != nil {
		t.Fatalf("Failed to create test challenge: %v", err)
	}

	taskIDs := make([]uuid.UUID, 0, len(tasks))
	for i, title := range tasks {
		var taskID uuid.UUID
		err := pool.QueryRow(ctx, `
			INSERT INTO challenge_tasks (challenge_id, title, sort_order)
			VALUES ($1, $2, $3)
			RETURNING id
		`, challengeID, title, i).Scan(&taskID)
		if err != nil {
			t.Fatalf("Failed to create test task: %v", err)
		}
		taskIDs = append(taskIDs, taskID)
	}
	return challengeID, taskIDs
}

// BackdateEnrollment shifts an enrollment's dates into the past so
// reconciliation has a day to judge.
func BackdateEnrollment(t *testing.T, pool *pgxpool.Pool, enrollmentID uuid.UUID, startDaysAgo, endDaysFromNow int) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		UPDATE enrollments
		SET start_date = CURRENT_DATE - $2::int,
		    week_start_date = CURRENT_DATE - $2::int,
		    end_date = CURRENT_DATE + $3::int
		WHERE id = $1
	`, enrollmentID, startDaysAgo, endDaysFromNow)
	if err != nil {
		t.Fatalf("Failed to backdate enrollment: %v", err)
	}
}

// GenerateMockClerkJWT generates a mock JWT token for testing
func GenerateMockClerkJWT(clerkID string) (string, error) {
	// Use a test secret key
	secretKey := []byte("test-secret-key-for-testing-only")

	claims := jwt.MapClaims{
		"sub": clerkID,
		"iss": "https://clerk.test",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour * 24).Unix(),
		"azp": "test-app-id",
		"sid": "sess_test123",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}
