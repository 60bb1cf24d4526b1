// Package preflight checks that exifturbo can run on this machine. The
// doctor command prints the full report; index runs it silently once per
// build and refuses to start on a critical failure.
//
//	report := preflight.New().RunAll(ctx, cfg)
//	if report.Failed() {
//		for _, r := range report.Critical() {
//			log.Print(r.Name, ": ", r.Message)
//		}
//	}
package preflight
