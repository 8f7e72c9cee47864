package stories

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// CleanupService periodically removes expired stories
type CleanupService struct {
	service  Service
	interval time.Duration
	logger   zerolog.Logger
}

func NewCleanupService(service Service, interval time.Duration, logger zerolog.Logger) *CleanupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupService{
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

// Start schedules the cleanup job and returns once it is running. The
// scheduler shuts down when ctx is cancelled.
func (c *CleanupService) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(c.interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			c.runCleanup(ctx)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule story cleanup: %w", err)
	}

	c.logger.Info().Dur("interval", c.interval).Msg("Starting story cleanup service")
	scheduler.Start()

	go func() {
		<-ctx.Done()
		c.logger.Info().Msg("Stopping story cleanup service")
		if err := scheduler.Shutdown(); err != nil {
			c.logger.Error().Err(err).Msg("Failed to shut down cleanup scheduler")
		}
	}()
	return nil
}

// runCleanup performs the actual cleanup
func (c *CleanupService) runCleanup(ctx context.Context) {
	taskCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	startTime := time.Now()
	if err := c.service.CleanupExpiredStories(taskCtx); err != nil {
		c.logger.Error().Err(err).Msg("Failed to cleanup expired stories")
		return
	}
	c.logger.Debug().Dur("took", time.Since(startTime)).Msg("Story cleanup completed")
}
