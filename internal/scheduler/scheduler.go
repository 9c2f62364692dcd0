// Package scheduler runs the periodic circulation sweeps on cron schedules.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"circulation/internal/config"
)

const jobTimeout = 4 * time.Minute

// Expirer is the part of the circulation service the scheduler drives.
type Expirer interface {
	ExpireHolds(ctx context.Context) (int, error)
	ExpireRequests(ctx context.Context) (int, error)
}

// Sweeper is the part of the notification dispatcher the scheduler drives.
type Sweeper interface {
	DueSoon(ctx context.Context) (int, error)
	Overdue(ctx context.Context) (int, error)
	HoldsExpiring(ctx context.Context) (int, error)
	DeliverPending(ctx context.Context, batch int) (sent, failed int, err error)
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

// New registers every job with a non-empty schedule. Overlapping runs of the
// same job are skipped. The returned cron is not started.
func New(s config.Schedules, expirer Expirer, sweeper Sweeper, mailBatch int) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))

	for _, j := range jobs(s, expirer, sweeper, mailBatch) {
		if j.schedule == "" {
			log.Printf("[INFO] scheduler: %s disabled", j.name)
			continue
		}
		j := j
		if _, err := c.AddFunc(j.schedule, func() { runJob(j) }); err != nil {
			return nil, err
		}
		log.Printf("[INFO] scheduler: %s scheduled at %q", j.name, j.schedule)
	}
	return c, nil
}

func jobs(s config.Schedules, expirer Expirer, sweeper Sweeper, mailBatch int) []job {
	count := func(f func(context.Context) (int, error)) func(context.Context) error {
		return func(ctx context.Context) error {
			_, err := f(ctx)
			return err
		}
	}
	return []job{
		{"expire-holds", s.ExpireHolds, count(expirer.ExpireHolds)},
		{"expire-requests", s.ExpireRequests, count(expirer.ExpireRequests)},
		{"due-soon", s.DueSoon, count(sweeper.DueSoon)},
		{"overdue", s.Overdue, count(sweeper.Overdue)},
		{"holds-expiring", s.HoldsExpiring, count(sweeper.HoldsExpiring)},
		{"deliver-mail", s.DeliverMail, func(ctx context.Context) error {
			_, _, err := sweeper.DeliverPending(ctx, mailBatch)
			return err
		}},
	}
}

func runJob(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	start := time.Now()
	if err := j.run(ctx); err != nil {
		log.Printf("[ERROR] scheduler: %s failed after %s: %v", j.name, time.Since(start), err)
	}
}
