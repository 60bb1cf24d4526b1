package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/exif-turbo/exifturbo/internal/errors"
)

// goexifGroup prefixes every key so the normalizer ranks the values like
// exiftool's EXIF groups.
const goexifGroup = "EXIF"

// GoExif reads EXIF in-process. It covers JPEG and TIFF only and knows
// nothing of XMP or IPTC, which is why it is the fallback.
type GoExif struct{}

// NewGoExif creates the in-process extractor.
func NewGoExif() *GoExif { return &GoExif{} }

// Name implements Extractor.
func (g *GoExif) Name() string { return "goexif" }

// Extract implements Extractor.
func (g *GoExif) Extract(ctx context.Context, path string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := statFile(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewExtractionError(errors.KindNotFound, path, err)
	}
	defer func() { _ = f.Close() }()

	x, err := exif.Decode(f)
	if x == nil || (err != nil && (exif.IsCriticalError(err) || err == io.EOF)) {
		if err == nil {
			err = fmt.Errorf("no exif data")
		}
		return nil, errors.NewExtractionError(errors.KindUnsupportedFormat, path, err)
	}

	w := make(walker)
	_ = x.Walk(w)
	md := Metadata(w)

	if lat, lon, err := x.LatLong(); err == nil {
		md["Composite:GPSPosition"] = strconv.FormatFloat(lat, 'f', -1, 64) + " " + strconv.FormatFloat(lon, 'f', -1, 64)
	}
	return md, nil
}

// walker collects every readable field. Undefined and binary fields
// (maker notes, thumbnails) are skipped.
type walker map[string]string

func (w walker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if s := tagText(tag); s != "" {
		w[goexifGroup+":"+string(name)] = s
	}
	return nil
}

func tagText(tag *tiff.Tag) string {
	n := int(tag.Count)
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return ""
		}
		return strings.TrimRight(s, "\x00 ")
	case tiff.IntVal:
		parts := make([]string, 0, n)
		for i := range n {
			v, err := tag.Int64(i)
			if err != nil {
				break
			}
			parts = append(parts, strconv.FormatInt(v, 10))
		}
		return strings.Join(parts, " ")
	case tiff.RatVal:
		parts := make([]string, 0, n)
		for i := range n {
			num, den, err := tag.Rat2(i)
			if err != nil {
				break
			}
			parts = append(parts, rational(num, den))
		}
		return strings.Join(parts, " ")
	case tiff.FloatVal:
		parts := make([]string, 0, n)
		for i := range n {
			v, err := tag.Float(i)
			if err != nil {
				break
			}
			parts = append(parts, strconv.FormatFloat(v, 'f', -1, 64))
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

// rational prints whole numbers plainly and keeps other fractions as n/d,
// the form exposure times are usually written in.
func rational(num, den int64) string {
	if den == 0 {
		return ""
	}
	if num%den == 0 {
		return strconv.FormatInt(num/den, 10)
	}
	return strconv.FormatInt(num, 10) + "/" + strconv.FormatInt(den, 10)
}
