package tasks

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/switchboard/internal/models"
)

// SyncAll refreshes every mirrored task from the tracker. Per-task
// failures are logged and skipped so one stale task cannot stall the rest.
func (c *Client) SyncAll(ctx context.Context) {
	var links []models.TaskLink
	if err := c.db.Find(&links).Error; err != nil {
		log.Printf("tasks: sync-all: %v", err)
		return
	}
	for _, link := range links {
		if _, err := c.syncTask(ctx, link.TaskID); err != nil {
			log.Printf("tasks: sync %s: %v", link.TaskID, err)
		}
	}
}

// StartSync runs SyncAll on a 5-field cron schedule until ctx is
// cancelled.
func (c *Client) StartSync(ctx context.Context, schedule string) (*cron.Cron, error) {
	cr := cron.New()
	if _, err := cr.AddFunc(schedule, func() { c.SyncAll(ctx) }); err != nil {
		return nil, fmt.Errorf("tasks: bad sync schedule %q: %w", schedule, err)
	}
	cr.Start()

	go func() {
		<-ctx.Done()
		cr.Stop()
	}()
	return cr, nil
}
