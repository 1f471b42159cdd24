package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stackcurious/worldvibe-sub000/internal/domain"
)

func TestRegionEmotionCounts_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, err := RegionEmotionCounts(context.Background(), db, time.Now()); err == nil {
		t.Fatalf("expected error due to missing check_ins table")
	}
}

func TestRegionEmotionCounts_GroupsWithinWindow(t *testing.T) {
	db := newTestDB(t, &domain.CheckIn{})
	ctx := context.Background()
	now := time.Now().UTC()

	rows := []*domain.CheckIn{
		checkIn("a", "device-0001", domain.EmotionJoy, "US", now),
		checkIn("b", "device-0002", domain.EmotionJoy, "US", now),
		checkIn("c", "device-0003", domain.EmotionCalm, "US", now),
		checkIn("d", "device-0004", domain.EmotionFear, "FR", now),
		checkIn("e", "device-0005", domain.EmotionJoy, "FR", now.Add(-72*time.Hour)),
	}
	rows[1].Intensity = 5
	for _, c := range rows {
		if err := CreateCheckIn(ctx, db, c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got, err := RegionEmotionCounts(ctx, db, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("RegionEmotionCounts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("cells = %+v", got)
	}
	if got[0].Region != "FR" || got[0].Emotion != domain.EmotionFear || got[0].Count != 1 {
		t.Fatalf("first cell = %+v", got[0])
	}
	if got[1].Region != "US" || got[1].Emotion != domain.EmotionJoy || got[1].Count != 2 || got[1].AvgIntensity != 4 {
		t.Fatalf("second cell = %+v", got[1])
	}
	if got[2].Emotion != domain.EmotionCalm {
		t.Fatalf("third cell = %+v", got[2])
	}
}

func TestCheckInsStats(t *testing.T) {
	db := newTestDB(t, &domain.CheckIn{})
	ctx := context.Background()

	n, latest, err := CheckInsStats(ctx, db, "device-0001")
	if err != nil || n != 0 || latest != nil {
		t.Fatalf("empty stats = (%d,%v,%v)", n, latest, err)
	}

	t1 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(25 * time.Hour)
	_ = CreateCheckIn(ctx, db, checkIn("a", "device-0001", domain.EmotionJoy, "US", t1))
	_ = CreateCheckIn(ctx, db, checkIn("b", "device-0001", domain.EmotionJoy, "US", t2))

	n, latest, err = CheckInsStats(ctx, db, "device-0001")
	if err != nil || n != 2 || latest == nil || !latest.Equal(t2) {
		t.Fatalf("stats = (%d,%v,%v)", n, latest, err)
	}
}
