package normalize

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exif-turbo/exifturbo/internal/errors"
)

func TestNormalize_MapsCommonTags(t *testing.T) {
	// Given exiftool-style grouped output
	raw := map[string]string{
		"IFD0:Make":                "Canon",
		"IFD0:Model":               "Canon EOS R5",
		"ExifIFD:LensModel":        "RF24-70mm F2.8 L IS USM",
		"ExifIFD:DateTimeOriginal": "2023:06:01 14:30:00",
		"ExifIFD:ISO":              "400",
		"ExifIFD:FNumber":          "2.8",
		"ExifIFD:ExposureTime":     "1/250",
		"ExifIFD:FocalLength":      "50.0 mm",
		"File:ImageWidth":          "8192",
		"File:ImageHeight":         "5464",
		"XMP-dc:Subject":           "beach, sunset",
		"XMP-xmp:Rating":           "4",
	}

	// When normalized
	rec, err := Normalize("/photos/a.jpg", raw)

	// Then each column holds its value and typed values are parsed
	require.NoError(t, err)
	c := rec.Columns
	assert.Equal(t, "/photos/a.jpg", rec.Path)
	assert.Equal(t, "Canon", c.Make)
	assert.Equal(t, "Canon EOS R5", c.Model)
	assert.Equal(t, "Canon EOS R5", c.Camera())
	assert.Equal(t, "RF24-70mm F2.8 L IS USM", c.Lens)
	assert.Equal(t, "2023:06:01 14:30:00", c.Date)
	assert.Equal(t, "beach, sunset", c.Keywords)

	require.NotNil(t, c.Typed.TakenAt)
	assert.True(t, c.Typed.TakenAt.Equal(time.Date(2023, 6, 1, 14, 30, 0, 0, time.UTC)))
	require.NotNil(t, c.Typed.ISO)
	assert.Equal(t, int64(400), *c.Typed.ISO)
	require.NotNil(t, c.Typed.Aperture)
	assert.InDelta(t, 2.8, *c.Typed.Aperture, 1e-9)
	require.NotNil(t, c.Typed.Exposure)
	assert.InDelta(t, 0.004, *c.Typed.Exposure, 1e-9)
	require.NotNil(t, c.Typed.Focal)
	assert.InDelta(t, 50.0, *c.Typed.Focal, 1e-9)
	require.NotNil(t, c.Typed.Width)
	assert.Equal(t, int64(8192), *c.Typed.Width)
	require.NotNil(t, c.Typed.Rating)
	assert.Equal(t, int64(4), *c.Typed.Rating)
	assert.Empty(t, rec.Overflow)
}

func TestNormalize_PrefersGroupByRank(t *testing.T) {
	// Given the same tag from XMP, IPTC and EXIF
	raw := map[string]string{
		"IPTC:Copyright":   "iptc",
		"XMP-dc:Copyright": "xmp",
		"IFD0:Copyright":   "exif",
	}

	// When normalized
	rec, err := Normalize("/p.jpg", raw)

	// Then the EXIF value wins and the others are kept as overflow
	require.NoError(t, err)
	assert.Equal(t, "exif", rec.Columns.Copyright)
	assert.Equal(t, map[string]string{
		"IPTC:Copyright":   "iptc",
		"XMP-dc:Copyright": "xmp",
	}, rec.Overflow)
}

func TestNormalize_PrefersTagOrderOverGroup(t *testing.T) {
	// Given a preferred tag in a low-ranked group and a fallback tag in EXIF
	raw := map[string]string{
		"XMP-exif:DateTimeOriginal": "2020:01:02 03:04:05",
		"IFD0:ModifyDate":           "2024:01:01 00:00:00",
	}

	// When normalized
	rec, err := Normalize("/p.jpg", raw)

	// Then DateTimeOriginal wins
	require.NoError(t, err)
	assert.Equal(t, "2020:01:02 03:04:05", rec.Columns.Date)
	assert.Equal(t, "2024:01:01 00:00:00", rec.Overflow["IFD0:ModifyDate"])
}

func TestNormalize_LensPreference(t *testing.T) {
	// Given lens spellings spread over groups
	raw := map[string]string{
		"Composite:Lens":       "24.0-70.0 mm",
		"XMP-exifEX:LensModel": "RF24-70mm F2.8 L IS USM",
		"EXIF:LensModel":       "RF24-70mm F2.8L",
	}

	// When normalized
	rec, err := Normalize("/p.jpg", raw)

	// Then the preferred spelling wins first, and group rank only breaks ties
	require.NoError(t, err)
	assert.Equal(t, "RF24-70mm F2.8L", rec.Columns.Lens)
	assert.Equal(t, "RF24-70mm F2.8 L IS USM", rec.Overflow["XMP-exifEX:LensModel"])
	assert.Equal(t, "24.0-70.0 mm", rec.Overflow["Composite:Lens"])
}

func TestNormalize_UnknownTagsGoToOverflow(t *testing.T) {
	// Given vendor tags with no column
	raw := map[string]string{
		"MakerNotes:ShutterCount": "12345",
		"Keywords":                "plain key",
	}

	// When normalized
	rec, err := Normalize("/p.jpg", raw)

	// Then vendor tags are overflow and ungrouped keys still map
	require.NoError(t, err)
	assert.Equal(t, "plain key", rec.Columns.Keywords)
	assert.Equal(t, "12345", rec.Overflow["MakerNotes:ShutterCount"])
}

func TestNormalize_DropsEmptyValues(t *testing.T) {
	// Given blank values
	raw := map[string]string{
		"IFD0:Make":    "   ",
		"IFD0:Artist":  "",
		"XMP:Nickname": "\t",
	}

	// When normalized
	rec, err := Normalize("/p.jpg", raw)

	// Then nothing is stored
	require.NoError(t, err)
	assert.Empty(t, rec.Columns.Make)
	assert.Empty(t, rec.Columns.Artist)
	assert.Empty(t, rec.Overflow)
}

func TestNormalize_SanitizesInvalidUTF8(t *testing.T) {
	// Given a value with an invalid byte sequence
	raw := map[string]string{"IFD0:Artist": "Jos\xff Doe"}

	// When normalized
	rec, err := Normalize("/p.jpg", raw)

	// Then the value is valid UTF-8 with a replacement rune
	require.NoError(t, err)
	assert.Equal(t, "Jos� Doe", rec.Columns.Artist)
}

func TestNormalize_CoercionFailureKeepsText(t *testing.T) {
	// Given an ISO that is not a number
	raw := map[string]string{
		"ExifIFD:ISO": "Auto",
		"IFD0:Model":  "X100V",
	}

	// When normalized
	rec, err := Normalize("/p.jpg", raw)

	// Then the record is usable, the text is kept and the error names the field
	require.NotNil(t, rec)
	require.Error(t, err)
	assert.Equal(t, "Auto", rec.Columns.ISO)
	assert.Nil(t, rec.Columns.Typed.ISO)
	assert.Equal(t, "X100V", rec.Columns.Model)

	var ne *errors.NormalizationError
	require.True(t, stderrors.As(err, &ne))
	assert.Equal(t, "iso", ne.Field)
	assert.Equal(t, "/p.jpg", ne.Path)
}

func TestNormalize_GPSPosition(t *testing.T) {
	// Given a composite position
	raw := map[string]string{
		"Composite:GPSPosition": "52.52 -13.405",
		"GPS:GPSLatitude":       "52.52",
		"GPS:GPSLongitude":      "13.405",
	}

	// When normalized
	rec, err := Normalize("/p.jpg", raw)

	// Then the composite wins and the typed pair is set
	require.NoError(t, err)
	assert.Equal(t, "52.52 -13.405", rec.Columns.GPS)
	require.NotNil(t, rec.Columns.Typed.Latitude)
	assert.InDelta(t, 52.52, *rec.Columns.Typed.Latitude, 1e-9)
	assert.InDelta(t, -13.405, *rec.Columns.Typed.Longitude, 1e-9)
	assert.Contains(t, rec.Overflow, "GPS:GPSLatitude")
}

func TestNormalize_GPSPairWithRefs(t *testing.T) {
	// Given unsigned rational coordinates with hemisphere refs
	raw := map[string]string{
		"GPSLatitude":     "33/1 51/1 0/1",
		"GPSLatitudeRef":  "S",
		"GPSLongitude":    "151/1 12/1 36/1",
		"GPSLongitudeRef": "E",
	}

	// When normalized
	rec, err := Normalize("/p.jpg", raw)

	// Then the latitude is negated
	require.NoError(t, err)
	require.NotNil(t, rec.Columns.Typed.Latitude)
	assert.InDelta(t, -33.85, *rec.Columns.Typed.Latitude, 1e-9)
	assert.InDelta(t, 151.21, *rec.Columns.Typed.Longitude, 1e-9)
}

func TestNormalize_EmptyInput(t *testing.T) {
	rec, err := Normalize("/p.jpg", nil)

	require.NoError(t, err)
	assert.Equal(t, "/p.jpg", rec.Path)
	assert.Empty(t, rec.Overflow)
}

func TestParseDate_Layouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2023:06:01 14:30:00", time.Date(2023, 6, 1, 14, 30, 0, 0, time.UTC)},
		{"2023:06:01 14:30:00.25", time.Date(2023, 6, 1, 14, 30, 0, 250000000, time.UTC)},
		{"2023-06-01T14:30:00Z", time.Date(2023, 6, 1, 14, 30, 0, 0, time.UTC)},
		{"2023:06:01", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v", got)
		})
	}

	_, err := parseDate("0000:00:00 00:00:00")
	assert.Error(t, err)
}
