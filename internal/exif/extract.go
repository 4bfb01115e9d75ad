// Package exif pulls capture-time attributes out of uploaded photos.
//
// Extraction is strictly best-effort: a photo with no embedded attributes, a
// non-JPEG upload, or a corrupt EXIF block all yield an absent result. Callers
// must treat absence as "unknown", never as an error.
package exif

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	goexif "github.com/rwcarlsen/goexif/exif"

	"github.com/precoposto/precoposto/internal/models"
)

// exifTimeLayout is the timestamp format mandated by the EXIF standard.
const exifTimeLayout = "2006:01:02 15:04:05"

// Extractor reads embedded capture attributes from image files.
type Extractor struct {
	loc *time.Location
	log zerolog.Logger
}

// NewExtractor returns an Extractor that interprets embedded timestamps in
// the given location (EXIF timestamps carry no zone information).
func NewExtractor(loc *time.Location, log zerolog.Logger) *Extractor {
	return &Extractor{loc: loc, log: log}
}

// Extract reads the photo's embedded attributes. It returns nil when the
// image has none or parsing fails; it never returns an error or panics.
func (e *Extractor) Extract(r io.Reader) (meta *models.CaptureMetadata) {
	// The EXIF parser is not hardened against hostile input; a malformed
	// tag table can panic deep inside tag decoding.
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Debug().Interface("panic", rec).Msg("exif parse panicked, treating as no metadata")
			meta = nil
		}
	}()

	x, err := goexif.Decode(r)
	if err != nil {
		e.log.Debug().Err(err).Msg("no exif data in image")
		return nil
	}

	meta = &models.CaptureMetadata{
		Make:     e.tagString(x, goexif.Make),
		Model:    e.tagString(x, goexif.Model),
		Software: e.tagString(x, goexif.Software),
	}
	meta.CapturedAt = e.captureTime(x)

	if lat, long, err := x.LatLong(); err == nil {
		meta.Latitude = &lat
		meta.Longitude = &long
	}

	return meta
}

// captureTime returns the embedded capture timestamp, preferring the original
// capture time over the file-modified time over the digitized time.
func (e *Extractor) captureTime(x *goexif.Exif) *time.Time {
	for _, field := range []goexif.FieldName{goexif.DateTimeOriginal, goexif.DateTime, goexif.DateTimeDigitized} {
		raw := e.tagString(x, field)
		if raw == "" {
			continue
		}
		t, err := time.ParseInLocation(exifTimeLayout, raw, e.loc)
		if err != nil {
			e.log.Debug().Str("field", string(field)).Str("value", raw).Msg("unparseable exif timestamp")
			continue
		}
		return &t
	}
	return nil
}

func (e *Extractor) tagString(x *goexif.Exif, field goexif.FieldName) string {
	tag, err := x.Get(field)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}
