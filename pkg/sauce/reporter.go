package sauce

import (
	"context"
	"errors"
	"fmt"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/logger"
)

// Job result values understood by the sauce:job-result hook.
const (
	JobPassed = "passed"
	JobFailed = "failed"
)

// JobResultScript returns the vendor hook for a pass/fail status.
func JobResultScript(passed bool) string {
	status := JobFailed
	if passed {
		status = JobPassed
	}
	return "sauce:job-result=" + status
}

// ContextScript returns the hook that annotates the job's command list.
// No spaces are allowed between "sauce:" and "context".
func ContextScript(text string) string {
	return "sauce:context=" + text
}

// Annotate adds a line to the job's command list on the dashboard.
func Annotate(ctx context.Context, session core.Session, text string) error {
	_, err := session.ExecuteScript(ctx, ContextScript(text))
	return err
}

// Finish reports the job status and then releases the session. The session
// is quit even when reporting fails; reporting errors are returned, never
// swallowed. A nil session is a no-op.
func Finish(ctx context.Context, session core.Session, passed bool) error {
	if session == nil {
		return nil
	}
	id := session.SessionID()

	var reportErr error
	if _, err := session.ExecuteScript(ctx, JobResultScript(passed)); err != nil {
		reportErr = core.ErrReportFailed.
			WithMessage(fmt.Sprintf("failed to report job result for session %s", id)).
			WithCause(err)
		logger.Error("%v", reportErr)
	}

	if err := session.Quit(ctx); err != nil {
		logger.Warn("Quit session %s: %v", id, err)
		return errors.Join(reportErr, fmt.Errorf("quit session %s: %w", id, err))
	}
	logger.Info("Session %s finished (%s)", id, JobResultScript(passed))
	return reportErr
}
