package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/exif-turbo/exifturbo/internal/store"
)

type rule struct {
	column string
	tags   []string
	apply  func(c *store.Columns, v string) error
}

func text(field func(c *store.Columns) *string) func(*store.Columns, string) error {
	return func(c *store.Columns, v string) error {
		*field(c) = v
		return nil
	}
}

func integer(field func(c *store.Columns) *string, typed func(c *store.Columns) **int64) func(*store.Columns, string) error {
	return func(c *store.Columns, v string) error {
		*field(c) = v
		n, err := parseInt(v)
		if err != nil {
			return err
		}
		*typed(c) = &n
		return nil
	}
}

func decimal(field func(c *store.Columns) *string, typed func(c *store.Columns) **float64) func(*store.Columns, string) error {
	return func(c *store.Columns, v string) error {
		*field(c) = v
		f, err := parseReal(v)
		if err != nil {
			return err
		}
		*typed(c) = &f
		return nil
	}
}

func date(c *store.Columns, v string) error {
	c.Date = v
	t, err := parseDate(v)
	if err != nil {
		return err
	}
	c.Typed.TakenAt = &t
	return nil
}

// rules is the fixed tag table. Order matters only for logging; each rule
// owns a distinct set of tag names.
var rules = []rule{
	{"make", []string{"Make"}, text(func(c *store.Columns) *string { return &c.Make })},
	{"model", []string{"Model", "CameraModelName", "UniqueCameraModel"}, text(func(c *store.Columns) *string { return &c.Model })},
	{"lens", []string{"LensID", "LensModel", "Lens", "LensType"}, text(func(c *store.Columns) *string { return &c.Lens })},
	{"date", []string{"DateTimeOriginal", "CreateDate", "DateCreated", "DateTimeCreated", "DateTimeDigitized", "ModifyDate", "DateTime"}, date},
	{"iso", []string{"ISO", "ISOSpeedRatings", "PhotographicSensitivity"},
		integer(func(c *store.Columns) *string { return &c.ISO }, func(c *store.Columns) **int64 { return &c.Typed.ISO })},
	{"aperture", []string{"FNumber", "Aperture", "ApertureValue"},
		decimal(func(c *store.Columns) *string { return &c.Aperture }, func(c *store.Columns) **float64 { return &c.Typed.Aperture })},
	{"exposure", []string{"ExposureTime", "ShutterSpeed", "ShutterSpeedValue"},
		decimal(func(c *store.Columns) *string { return &c.Exposure }, func(c *store.Columns) **float64 { return &c.Typed.Exposure })},
	{"focal", []string{"FocalLength", "FocalLengthIn35mmFormat"},
		decimal(func(c *store.Columns) *string { return &c.Focal }, func(c *store.Columns) **float64 { return &c.Typed.Focal })},
	{"width", []string{"ImageWidth", "ExifImageWidth", "PixelXDimension"},
		integer(func(c *store.Columns) *string { return &c.Width }, func(c *store.Columns) **int64 { return &c.Typed.Width })},
	{"height", []string{"ImageHeight", "ExifImageHeight", "PixelYDimension"},
		integer(func(c *store.Columns) *string { return &c.Height }, func(c *store.Columns) **int64 { return &c.Typed.Height })},
	{"orientation", []string{"Orientation"}, text(func(c *store.Columns) *string { return &c.Orientation })},
	{"software", []string{"Software", "CreatorTool"}, text(func(c *store.Columns) *string { return &c.Software })},
	{"artist", []string{"Artist", "Creator", "By-line"}, text(func(c *store.Columns) *string { return &c.Artist })},
	{"copyright", []string{"Copyright", "Rights", "CopyrightNotice"}, text(func(c *store.Columns) *string { return &c.Copyright })},
	{"title", []string{"Title", "ObjectName", "Headline"}, text(func(c *store.Columns) *string { return &c.Title })},
	{"description", []string{"ImageDescription", "Description", "Caption-Abstract"}, text(func(c *store.Columns) *string { return &c.Description })},
	{"keywords", []string{"Keywords", "Subject"}, text(func(c *store.Columns) *string { return &c.Keywords })},
	{"rating", []string{"Rating"},
		integer(func(c *store.Columns) *string { return &c.Rating }, func(c *store.Columns) **int64 { return &c.Typed.Rating })},
}

// applyGPS fills the gps column from GPSPosition, or from a latitude and
// longitude pair. Hemisphere references are honored for unsigned values.
func applyGPS(c *store.Columns, entries []entry, consumed map[string]bool) error {
	if pos := pick(entries, consumed, []string{"GPSPosition"}); pos != nil {
		consumed[pos.key] = true
		c.GPS = pos.value
		lat, lon, err := parsePosition(pos.value)
		if err != nil {
			return err
		}
		c.Typed.Latitude, c.Typed.Longitude = &lat, &lon
		return nil
	}

	latE := pick(entries, consumed, []string{"GPSLatitude"})
	lonE := pick(entries, consumed, []string{"GPSLongitude"})
	if latE == nil || lonE == nil {
		return nil
	}
	consumed[latE.key] = true
	consumed[lonE.key] = true
	c.GPS = latE.value + ", " + lonE.value

	lat, err := parseCoordinate(latE.value)
	if err != nil {
		return err
	}
	lon, err := parseCoordinate(lonE.value)
	if err != nil {
		return err
	}
	if ref := pick(entries, consumed, []string{"GPSLatitudeRef"}); ref != nil && isNegativeRef(ref.value) {
		lat = -math.Abs(lat)
	}
	if ref := pick(entries, consumed, []string{"GPSLongitudeRef"}); ref != nil && isNegativeRef(ref.value) {
		lon = -math.Abs(lon)
	}
	c.Typed.Latitude, c.Typed.Longitude = &lat, &lon
	return nil
}

func isNegativeRef(v string) bool {
	v = strings.ToUpper(strings.TrimSpace(v))
	return strings.HasPrefix(v, "S") || strings.HasPrefix(v, "W")
}

func parsePosition(v string) (float64, float64, error) {
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("position %q: want two coordinates", v)
	}
	lat, err := parseCoordinate(fields[0])
	if err != nil {
		return 0, 0, err
	}
	lon, err := parseCoordinate(fields[1])
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

// parseCoordinate accepts signed decimal degrees (exiftool -n) and the
// "deg min sec" rational triple the in-process reader produces.
func parseCoordinate(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f, nil
	}
	parts := strings.Fields(v)
	if len(parts) == 3 {
		var dms [3]float64
		for i, p := range parts {
			f, err := parseRational(p)
			if err != nil {
				return 0, fmt.Errorf("coordinate %q: %w", v, err)
			}
			dms[i] = f
		}
		return dms[0] + dms[1]/60 + dms[2]/3600, nil
	}
	return 0, fmt.Errorf("coordinate %q is not numeric", v)
}

func parseInt(v string) (int64, error) {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty integer")
	}
	// Multi-valued tags such as "100 100" keep the first value.
	n, err := strconv.ParseInt(strings.TrimSuffix(fields[0], ","), 10, 64)
	if err == nil {
		return n, nil
	}
	f, ferr := parseRational(fields[0])
	if ferr != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", v)
	}
	return int64(f), nil
}

// parseReal accepts "2.8", "1/250", "f/2.8" and "50.0 mm".
func parseReal(v string) (float64, error) {
	s := strings.TrimSpace(v)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "f/"), "F/")
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	f, err := parseRational(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", v)
	}
	return f, nil
}

func parseRational(s string) (float64, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, err
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return 0, fmt.Errorf("zero denominator in %q", s)
		}
		return n / d, nil
	}
	return strconv.ParseFloat(s, 64)
}

var dateLayouts = []string{
	"2006:01:02 15:04:05.999999999Z07:00",
	"2006:01:02 15:04:05Z07:00",
	"2006:01:02 15:04:05.999999999",
	"2006:01:02 15:04:05",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006:01:02",
	"2006-01-02",
	"20060102",
}

// parseDate parses the EXIF, XMP and IPTC date spellings. Times without a
// zone are taken as UTC so that sorting is stable across machines.
func parseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			if t.Year() <= 1 {
				break
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}
