package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const windowDays = 7

type Repository interface {
	CountBooked(ctx context.Context, providerID uuid.UUID, day time.Time) (int, error)
	AvgDurationMinutes(ctx context.Context, providerID uuid.UUID, from, to time.Time) (float64, error)
	BookedAndCanceled(ctx context.Context, providerID uuid.UUID, from, to time.Time) (booked, canceled int, err error)
	StatusDistribution(ctx context.Context, providerID uuid.UUID, from, to time.Time) (map[string]int, error)
}

type Snapshot struct {
	WindowStart        string         `json:"window_start"`
	WindowEnd          string         `json:"window_end"`
	TodayBooked        int            `json:"today_booked"`
	YesterdayBooked    int            `json:"yesterday_booked"`
	TodayChange        float64        `json:"today_change"`
	AvgDurationMinutes float64        `json:"avg_duration_minutes"`
	CompletionRate     float64        `json:"completion_rate"`
	StatusDistribution map[string]int `json:"status_distribution"`
}

// Aggregator computes read-only provider statistics over the trailing week.
type Aggregator struct {
	repo Repository
	now  func() time.Time
}

func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo, now: time.Now}
}

// ProviderStats issues its queries concurrently. Any failure fails the snapshot.
func (a *Aggregator) ProviderStats(ctx context.Context, providerID uuid.UUID) (*Snapshot, error) {
	y, m, d := a.now().UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	from := today.AddDate(0, 0, -(windowDays - 1))

	var (
		todayBooked, yesterdayBooked int
		avg                          float64
		booked, canceled             int
		dist                         map[string]int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		todayBooked, err = a.repo.CountBooked(ctx, providerID, today)
		return wrap("today count", err)
	})
	g.Go(func() (err error) {
		yesterdayBooked, err = a.repo.CountBooked(ctx, providerID, yesterday)
		return wrap("yesterday count", err)
	})
	g.Go(func() (err error) {
		avg, err = a.repo.AvgDurationMinutes(ctx, providerID, from, today)
		return wrap("average duration", err)
	})
	g.Go(func() (err error) {
		booked, canceled, err = a.repo.BookedAndCanceled(ctx, providerID, from, today)
		return wrap("completion", err)
	})
	g.Go(func() (err error) {
		dist, err = a.repo.StatusDistribution(ctx, providerID, from, today)
		return wrap("status distribution", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if dist == nil {
		dist = map[string]int{}
	}
	return &Snapshot{
		WindowStart:        from.Format(time.DateOnly),
		WindowEnd:          today.Format(time.DateOnly),
		TodayBooked:        todayBooked,
		YesterdayBooked:    yesterdayBooked,
		TodayChange:        percentChange(todayBooked, yesterdayBooked),
		AvgDurationMinutes: round2(avg),
		CompletionRate:     ratio(booked, booked+canceled),
		StatusDistribution: dist,
	}, nil
}

// percentChange is 0 when there is nothing to compare against.
func percentChange(current, previous int) float64 {
	if previous == 0 {
		return 0
	}
	return round2(float64(current-previous) / float64(previous) * 100)
}

func ratio(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("stats %s: %w", what, err)
}
