package dispatch

import (
	"fmt"
	"strings"
)

// TaskStatus records the outcome of one worker in a cohort.
type TaskStatus struct {
	TaskID   int
	ExitCode int
	Err      error
}

// CohortError reports a run whose cohort did not fully succeed. It carries
// the status of every failed identity: a failed source's contribution to an
// aggregate must never disappear without a signal, so the driver always sees
// exactly which tasks are missing.
type CohortError struct {
	Component string
	Method    string
	Total     int
	Failed    []TaskStatus
}

func (e *CohortError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, st := range e.Failed {
		ids = append(ids, fmt.Sprintf("%d", st.TaskID))
	}
	return fmt.Sprintf("%s.%s: %d of %d tasks failed (taskids %s)",
		e.Component, e.Method, len(e.Failed), e.Total, strings.Join(ids, ","))
}

// FailedIDs returns the failed task identities in cohort order.
func (e *CohortError) FailedIDs() []int {
	ids := make([]int, 0, len(e.Failed))
	for _, st := range e.Failed {
		ids = append(ids, st.TaskID)
	}
	return ids
}

// Cohort builds a CohortError from per-task statuses, returning nil when
// every task succeeded.
func Cohort(component, method string, statuses []TaskStatus) error {
	var failed []TaskStatus
	for _, st := range statuses {
		if st.Err != nil || st.ExitCode != 0 {
			failed = append(failed, st)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &CohortError{Component: component, Method: method, Total: len(statuses), Failed: failed}
}
