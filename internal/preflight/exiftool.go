package preflight

import (
	"context"
	"fmt"

	"github.com/exif-turbo/exifturbo/internal/extract"
)

// CheckExifTool runs `exiftool -ver`. A missing tool fails the check only
// when the in-process fallback reader is disabled.
func (c *Checker) CheckExifTool(ctx context.Context, path string, fallback bool) CheckResult {
	result := CheckResult{
		Name:     "exiftool",
		Group:    GroupExtractor,
		Required: !fallback,
	}

	ver, err := extract.NewExifTool(extract.WithToolPath(path), extract.WithLogger(c.logger)).Version(ctx)
	if err != nil {
		if fallback {
			result.Status = StatusWarn
			result.Message = "not available, the built-in EXIF reader will be used (no IPTC or XMP)"
		} else {
			result.Status = StatusFail
			result.Message = "not available and the fallback reader is disabled"
		}
		result.Details = fmt.Sprintf("%v. Install exiftool or set extractor.exiftool_path", err)
		return result
	}

	result.Status = StatusPass
	result.Message = "version " + ver
	result.Details = path
	return result
}
