package step

import (
	"github.com/kuroyamii/playwright-stress-test/internal/config"
	"github.com/kuroyamii/playwright-stress-test/internal/probe"
	"github.com/kuroyamii/playwright-stress-test/internal/runner"
)

// BuildWorkItems creates the queue for a step. User IDs start at 1.
//
// With LoadShapeSample every user gets one URL chosen by intn; with
// LoadShapeCross every user visits every URL in order.
func BuildWorkItems(users int, urls []string, shape config.LoadShape, variant probe.Variant, intn func(n int) int) []runner.WorkItem {
	if users <= 0 || len(urls) == 0 {
		return nil
	}

	if shape == config.LoadShapeCross {
		items := make([]runner.WorkItem, 0, users*len(urls))
		for user := 1; user <= users; user++ {
			for _, u := range urls {
				items = append(items, runner.WorkItem{UserID: user, URL: u, Variant: variant})
			}
		}
		return items
	}

	items := make([]runner.WorkItem, users)
	for i := range items {
		items[i] = runner.WorkItem{
			UserID:  i + 1,
			URL:     urls[intn(len(urls))],
			Variant: variant,
		}
	}
	return items
}
