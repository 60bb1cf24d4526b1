package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the soft limit below which fsnotify tends to run
// out of watches on a large photo library.
const MinFileDescriptors = 1024

// CheckFileDescriptors inspects RLIMIT_NOFILE. A low limit only pushes
// watch onto the polling fallback, so the check never fails.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:  "file_descriptors",
		Group: GroupSystem,
	}

	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		result.Status = StatusWarn
		result.Message = "limit unknown"
		result.Details = err.Error()
		return result
	}

	result.Message = fmt.Sprintf("soft %d, hard %d", lim.Cur, lim.Max)
	if lim.Cur >= MinFileDescriptors {
		result.Status = StatusPass
		return result
	}

	result.Status = StatusWarn
	if lim.Max >= MinFileDescriptors {
		result.Details = fmt.Sprintf("watch may poll instead of using fsnotify; 'ulimit -n %d' raises it for this shell", lim.Max)
	} else {
		result.Details = fmt.Sprintf("watch may poll instead of using fsnotify; the hard limit is below %d", MinFileDescriptors)
	}
	return result
}
