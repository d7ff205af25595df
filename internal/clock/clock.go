// Package clock provides the node-wide now_ms() primitive. spec.md §1
// specifies the clock source as an external "monotonic-enough" wall-time
// collaborator; this is the one place that collaborator is implemented.
package clock

import "time"

// NowMs returns the current wall clock time in milliseconds.
func NowMs() int64 {
	return time.Now().UnixMilli()
}
