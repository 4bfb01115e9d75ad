package exif

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testExtractor() *Extractor {
	return NewExtractor(time.UTC, zerolog.Nop())
}

func TestExtract_NotAnImage(t *testing.T) {
	if meta := testExtractor().Extract(bytes.NewReader([]byte("plain text"))); meta != nil {
		t.Errorf("Extract = %+v, want nil for non-image input", meta)
	}
}

func TestExtract_EmptyInput(t *testing.T) {
	if meta := testExtractor().Extract(bytes.NewReader(nil)); meta != nil {
		t.Errorf("Extract = %+v, want nil for empty input", meta)
	}
}

func TestExtract_JPEGWithoutExif(t *testing.T) {
	// A freshly encoded JPEG carries no EXIF segment; extraction degrades
	// to absent, not an error.
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	if meta := testExtractor().Extract(&buf); meta != nil {
		t.Errorf("Extract = %+v, want nil for JPEG without exif", meta)
	}
}

func TestExtract_TruncatedExifHeader(t *testing.T) {
	// A JPEG that starts an APP1/Exif segment but truncates it must not
	// panic or error, just yield no metadata.
	data := []byte{0xff, 0xd8, 0xff, 0xe1, 0x00, 0x10, 'E', 'x', 'i', 'f', 0x00, 0x00, 0x49, 0x49}
	if meta := testExtractor().Extract(bytes.NewReader(data)); meta != nil {
		t.Errorf("Extract = %+v, want nil for truncated exif", meta)
	}
}
