package decoder

import (
	"bytes"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// exifFields lists the tags copied into Metadata.EXIF.
var exifFields = map[exif.FieldName]bool{
	exif.Make:             true,
	exif.Model:            true,
	exif.LensModel:        true,
	exif.DateTimeOriginal: true,
	exif.ExposureTime:     true,
	exif.FNumber:          true,
	exif.ISOSpeedRatings:  true,
	exif.FocalLength:      true,
	exif.Software:         true,
}

type exifCollector map[string]string

func (c exifCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if !exifFields[name] {
		return nil
	}
	if s, err := tag.StringVal(); err == nil {
		c[string(name)] = strings.TrimSpace(s)
		return nil
	}
	c[string(name)] = tag.String()
	return nil
}

// readEXIF extracts the orientation and a small set of descriptive tags from
// JPEG or TIFF-structured data.  Missing or malformed EXIF yields (1, nil).
func readEXIF(data []byte) (orientation int, fields map[string]string) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil || x == nil {
		return 1, nil
	}
	orientation = 1
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil && v >= 1 && v <= 8 {
			orientation = v
		}
	}
	c := exifCollector{}
	_ = x.Walk(c)
	if len(c) == 0 {
		return orientation, nil
	}
	return orientation, c
}
