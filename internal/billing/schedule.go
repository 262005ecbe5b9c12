package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule runs weekly billing on the cron spec until ctx is canceled.
// Each firing anchors to the most recent Friday in the billing timezone,
// so a job delayed past midnight still bills the intended week.
func (r *Runner) Schedule(ctx context.Context, spec string) error {
	c := cron.New(cron.WithLocation(r.loc))
	_, err := c.AddFunc(spec, func() {
		week := WeekEnding(time.Now(), r.loc)
		if _, err := r.RunWeek(ctx, week, false); err != nil {
			fmt.Fprintf(r.out, "billing: scheduled run: %v\n", err)
		}
	})
	if err != nil {
		return fmt.Errorf("billing: parse cron spec %q: %w", spec, err)
	}
	c.Start()
	fmt.Fprintf(r.out, "billing: scheduled on %q in %s\n", spec, r.loc)

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}
