package executor

import (
	"context"
	"strings"
	"time"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/flow"
)

// pollExpectations waits until every expectation's element text contains its
// expected string. All expectations share one deadline; each poll round reads
// only the ones still unmet. Element lookups that fail with a connection
// error end polling early with that error.
func pollExpectations(ctx context.Context, session core.Session, expectations []flow.Expectation, ids map[string]string, timeout, interval time.Duration) ([]core.ConditionResult, error) {
	results := make([]core.ConditionResult, len(expectations))
	for i, e := range expectations {
		results[i] = core.ConditionResult{Name: e.Name, Target: e.Locator, Expected: e.Expected}
	}

	start := time.Now()
	deadline := start.Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pending := 0
		for i, e := range expectations {
			c := &results[i]
			if c.Met {
				continue
			}
			c.Polls++
			text, err := session.ElementText(ctx, ids[e.Name])
			if err != nil {
				if ctx.Err() != nil {
					return results, ctx.Err()
				}
				if core.CategoryOf(err) == core.ErrCategoryConnection {
					return results, err
				}
				// Stale or not yet rendered; try again next round.
				pending++
				continue
			}
			c.Actual = text
			if strings.Contains(text, e.Expected) {
				c.Met = true
				c.Duration = time.Since(start)
				continue
			}
			pending++
		}

		if pending == 0 {
			return results, nil
		}
		if !time.Now().Before(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			return results, ctx.Err()
		case <-ticker.C:
		}
	}

	elapsed := time.Since(start)
	for i := range results {
		if !results[i].Met {
			results[i].TimedOut = true
			results[i].Duration = elapsed
		}
	}
	return results, nil
}
