//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coinville/questd/internal/quest"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// testDate spreads concurrent test runs across distinct quest days, since
// daily_assignments carries a global unique constraint on the date.
func testDate() quest.Date {
	u := uuid.New()
	offset := int(u[0])<<8 | int(u[1])
	return quest.DateOf(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset))
}

func createTestPersona(t *testing.T, s *Store) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO personas (id, name, age, role, biography, system_prompt, difficulty_level)
		VALUES ($1, 'Тестовый Мошенник', 45, 'брокер', 'Биография.', 'prompt', 3)`,
		id,
	)
	if err != nil {
		t.Fatalf("insert persona failed: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM personas WHERE id = $1", id)
	})
	return id
}

func createTestProfile(t *testing.T, s *Store) *quest.Profile {
	t.Helper()
	ctx := context.Background()
	deviceID := "integration-test-" + uuid.New().String()[:8]
	p, err := s.GetOrCreateProfileByDevice(ctx, deviceID)
	if err != nil {
		t.Fatalf("create profile failed: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM daily_progress WHERE user_id = $1", p.ID)
		s.pool.Exec(ctx, "DELETE FROM collection WHERE user_id = $1", p.ID)
		s.pool.Exec(ctx, "DELETE FROM leaderboard WHERE user_id = $1", p.ID)
		s.pool.Exec(ctx, "DELETE FROM profiles WHERE id = $1", p.ID)
	})
	return p
}

func TestIntegration_ProfileConvergesPerDevice(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := createTestProfile(t, s)

	again, err := s.GetOrCreateProfileByDevice(ctx, p.DeviceID)
	if err != nil {
		t.Fatalf("second lookup failed: %v", err)
	}
	if again.ID != p.ID {
		t.Errorf("same device resolved to different profiles: %s vs %s", again.ID, p.ID)
	}
	if again.Name != "Пользователь" {
		t.Errorf("expected default name, got %q", again.Name)
	}
}

func TestIntegration_AssignmentUniquePerDay(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	personaA := createTestPersona(t, s)
	personaB := createTestPersona(t, s)
	date := testDate()
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM daily_assignments WHERE quest_date = $1", date)
	})

	created, err := s.CreateAssignmentIfAbsent(ctx, date, personaA)
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if !created {
		t.Fatal("first create should win")
	}

	created, err = s.CreateAssignmentIfAbsent(ctx, date, personaB)
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if created {
		t.Fatal("second create for the same day must lose")
	}

	a, err := s.GetAssignment(ctx, date)
	if err != nil {
		t.Fatalf("get assignment failed: %v", err)
	}
	if a == nil || a.PersonaID != personaA {
		t.Errorf("expected the first writer's persona, got %+v", a)
	}
}

func TestIntegration_TranscriptRoundTripAndFreeze(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	personaID := createTestPersona(t, s)
	p := createTestProfile(t, s)
	date := testDate()

	msgs := []quest.Message{
		{Role: "assistant", Content: "Здравствуйте!", Timestamp: time.Now().UTC().Truncate(time.Second)},
		{Role: "user", Content: "кто вы?", Timestamp: time.Now().UTC().Truncate(time.Second)},
	}
	if err := s.SaveTranscript(ctx, p.ID, date, personaID, msgs); err != nil {
		t.Fatalf("save transcript failed: %v", err)
	}

	got, err := s.GetProgress(ctx, p.ID, date)
	if err != nil {
		t.Fatalf("get progress failed: %v", err)
	}
	if got == nil || len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages back, got %+v", got)
	}
	if got.Messages[1].Content != "кто вы?" {
		t.Errorf("message content lost: %q", got.Messages[1].Content)
	}

	// Complete the quest, then try to overwrite the transcript.
	_, committed, err := s.CommitCompletion(ctx, p.ID, date, personaID, time.Now().UTC(), quest.Reward{CoinsEarned: 150, XPEarned: 300})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if !committed {
		t.Fatal("expected first commit to land")
	}

	if err := s.SaveTranscript(ctx, p.ID, date, personaID, nil); err != nil {
		t.Fatalf("save after completion errored: %v", err)
	}
	got, err = s.GetProgress(ctx, p.ID, date)
	if err != nil {
		t.Fatalf("get progress failed: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Errorf("completed transcript was overwritten, %d messages left", len(got.Messages))
	}
}

func TestIntegration_CommitCompletionIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	personaID := createTestPersona(t, s)
	p := createTestProfile(t, s)
	date := testDate()

	reward := quest.Reward{CoinsEarned: 100, XPEarned: 200}
	stored, committed, err := s.CommitCompletion(ctx, p.ID, date, personaID, time.Now().UTC(), reward)
	if err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if !committed || stored != reward {
		t.Fatalf("first commit: committed=%v stored=%+v", committed, stored)
	}

	// Second commit with a different amount must not pay again.
	stored, committed, err = s.CommitCompletion(ctx, p.ID, date, personaID, time.Now().UTC(), quest.Reward{CoinsEarned: 999, XPEarned: 999})
	if err != nil {
		t.Fatalf("second commit failed: %v", err)
	}
	if committed {
		t.Error("second commit must be a no-op")
	}
	if stored != reward {
		t.Errorf("second commit returned %+v, want the original %+v", stored, reward)
	}

	// Profile was credited exactly once.
	var coins, xp int
	err = s.pool.QueryRow(ctx, "SELECT total_coins, total_xp FROM profiles WHERE id = $1", p.ID).Scan(&coins, &xp)
	if err != nil {
		t.Fatalf("query profile failed: %v", err)
	}
	if coins != 100 || xp != 200 {
		t.Errorf("profile credited %d coins / %d xp, want 100 / 200", coins, xp)
	}
}

func TestIntegration_CollectionEntryAndInterviewQA(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	personaID := createTestPersona(t, s)
	p := createTestProfile(t, s)
	date := testDate()

	entry := quest.CollectionEntry{
		UserID:    p.ID,
		PersonaID: personaID,
		Date:      date,
		ChatLog:   []quest.Message{{Role: "assistant", Content: "признаюсь"}},
		ExposedAt: time.Now().UTC(),
	}
	if err := s.AppendCollectionEntry(ctx, entry); err != nil {
		t.Fatalf("append entry failed: %v", err)
	}
	// Re-run is a no-op, not a duplicate.
	if err := s.AppendCollectionEntry(ctx, entry); err != nil {
		t.Fatalf("re-append failed: %v", err)
	}

	qa := []quest.Message{
		{Role: "user", Content: "почему вы этим занялись?"},
		{Role: "assistant", Content: "из жадности"},
	}
	if err := s.AppendInterviewQA(ctx, p.ID, date, qa); err != nil {
		t.Fatalf("append qa failed: %v", err)
	}

	got, err := s.GetCollectionEntry(ctx, p.ID, date)
	if err != nil {
		t.Fatalf("get entry failed: %v", err)
	}
	if got == nil || len(got.ChatLog) != 1 {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if len(got.PostChatQA) != 2 || got.PostChatQA[1].Content != "из жадности" {
		t.Errorf("interview qa not appended: %+v", got.PostChatQA)
	}

	entries, err := s.ListCollection(ctx, p.ID)
	if err != nil {
		t.Fatalf("list collection failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 trophy, got %d", len(entries))
	}
}

func TestIntegration_LeaderboardStreakAndFastestTime(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := createTestProfile(t, s)

	day2 := testDate()
	day1 := quest.PrevDate(day2)
	secs1, secs2 := 120, 45

	if err := s.ApplyCompletion(ctx, p.ID, quest.LeaderboardDelta{CompletedDate: day1, CompletionSecs: &secs1}); err != nil {
		t.Fatalf("day 1 apply failed: %v", err)
	}

	row, err := s.GetLeaderboardRow(ctx, p.ID)
	if err != nil {
		t.Fatalf("get row failed: %v", err)
	}
	if row.TotalExposures != 1 || row.StreakDays != 1 {
		t.Errorf("after day 1: exposures=%d streak=%d", row.TotalExposures, row.StreakDays)
	}

	// Consecutive day extends the streak and improves the fastest time.
	if err := s.ApplyCompletion(ctx, p.ID, quest.LeaderboardDelta{CompletedDate: day2, CompletionSecs: &secs2}); err != nil {
		t.Fatalf("day 2 apply failed: %v", err)
	}
	row, err = s.GetLeaderboardRow(ctx, p.ID)
	if err != nil {
		t.Fatalf("get row failed: %v", err)
	}
	if row.TotalExposures != 2 || row.StreakDays != 2 {
		t.Errorf("after day 2: exposures=%d streak=%d", row.TotalExposures, row.StreakDays)
	}
	if row.FastestTime == nil || *row.FastestTime != 45 {
		t.Errorf("fastest = %v, want 45", row.FastestTime)
	}

	// Reconciliation re-run for the same day moves nothing.
	slow := 600
	if err := s.ApplyCompletion(ctx, p.ID, quest.LeaderboardDelta{CompletedDate: day2, CompletionSecs: &slow}); err != nil {
		t.Fatalf("re-apply failed: %v", err)
	}
	row, err = s.GetLeaderboardRow(ctx, p.ID)
	if err != nil {
		t.Fatalf("get row failed: %v", err)
	}
	if row.TotalExposures != 2 || row.StreakDays != 2 || *row.FastestTime != 45 {
		t.Errorf("re-apply changed the aggregate: %+v", row)
	}
}
