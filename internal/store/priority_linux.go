//go:build linux

package store

import (
	"golang.org/x/sys/unix"

	"github.com/fcom-rt/fcom/pkg/log"
)

// applyReceiverPriority maps percentile (0-100) onto this thread's
// SCHED_OTHER nice range and applies it via setpriority, the closest
// portable analogue Linux offers to fc_init.c's pthread real-time
// priority knob (spec.md §4.5's ReceiverPriorityPercentile). Failure is
// logged, not fatal: an unprivileged process cannot raise its priority
// and FCOM must still run.
func applyReceiverPriority(percentile int) {
	if percentile <= 0 {
		return
	}
	if percentile > 100 {
		percentile = 100
	}

	// nice ranges from -20 (highest) to 19 (lowest); map percentile so
	// 100 -> -20 and 0 -> 19.
	const niceMin, niceMax = -20, 19
	nice := niceMax - (percentile*(niceMax-niceMin))/100

	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, nice); err != nil {
		log.Debugf("fcom: receiver: setpriority(%d) failed (expected without CAP_SYS_NICE): %v", nice, err)
	}
}
