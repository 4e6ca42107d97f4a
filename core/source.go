package core

import (
	"encoding/binary"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/disintegration/imaging"

	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/utils"
)

// Origin says where an ImageSource's bytes come from.
type Origin int

const (
	OriginPath Origin = iota
	OriginBytes
	OriginRaster
)

func (o Origin) String() string {
	switch o {
	case OriginPath:
		return "path"
	case OriginBytes:
		return "bytes"
	case OriginRaster:
		return "raster"
	}
	return "unknown"
}

// Fingerprint is a stable content identity used as the cache key.
type Fingerprint string

// ImageSource identifies one requested image.  It is immutable; the With*
// methods return modified copies.
type ImageSource struct {
	origin      Origin
	path        string
	data        []byte
	raster      *image.NRGBA
	fingerprint Fingerprint
	hint        Format
	target      image.Point
}

// NewFileSource stats path and fingerprints it by absolute path, size and
// modification time.  hint may be an extension, file name or MIME type.
func NewFileSource(path, hint string) (ImageSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ImageSource{}, apperrors.Wrap(apperrors.CategoryInput, "source.file", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ImageSource{}, apperrors.New(apperrors.CategoryStorage, "source.file",
				fmt.Errorf("%w: %s", apperrors.ErrNotFound, abs))
		}
		return ImageSource{}, apperrors.Wrap(apperrors.CategoryStorage, "source.file", err)
	}
	if fi.IsDir() {
		return ImageSource{}, apperrors.New(apperrors.CategoryInput, "source.file",
			fmt.Errorf("%s is a directory", abs))
	}

	d := xxhash.New()
	_, _ = d.WriteString(abs)
	var meta [16]byte
	binary.LittleEndian.PutUint64(meta[:8], uint64(fi.ModTime().UnixNano()))
	binary.LittleEndian.PutUint64(meta[8:], uint64(fi.Size()))
	_, _ = d.Write(meta[:])

	return ImageSource{
		origin:      OriginPath,
		path:        abs,
		fingerprint: Fingerprint(fmt.Sprintf("file:%016x", d.Sum64())),
		hint:        ParseFormat(hint),
	}, nil
}

// NewBytesSource wraps an in-memory payload such as a clipboard paste or a
// drag-and-drop buffer.  The bytes are copied.
func NewBytesSource(data []byte, hint string) ImageSource {
	owned := utils.CloneBytes(data)
	return ImageSource{
		origin:      OriginBytes,
		data:        owned,
		fingerprint: Fingerprint(fmt.Sprintf("mem:%016x", xxhash.Sum64(owned))),
		hint:        ParseFormat(hint),
	}
}

// NewRasterSource wraps pixels that are already decoded, such as a clipboard
// bitmap.  The raster is copied into canonical form.
func NewRasterSource(img image.Image) ImageSource {
	n := imaging.Clone(img)
	d := xxhash.New()
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[:4], uint32(n.Rect.Dx()))
	binary.LittleEndian.PutUint32(dims[4:], uint32(n.Rect.Dy()))
	_, _ = d.Write(dims[:])
	_, _ = d.Write(n.Pix)
	return ImageSource{
		origin:      OriginRaster,
		raster:      n,
		fingerprint: Fingerprint(fmt.Sprintf("img:%016x", d.Sum64())),
	}
}

// WithTarget returns a copy carrying a rasterization size for vector sources.
func (s ImageSource) WithTarget(w, h int) ImageSource {
	s.target = image.Pt(w, h)
	return s
}

func (s ImageSource) Origin() Origin           { return s.origin }
func (s ImageSource) Path() string             { return s.path }
func (s ImageSource) Hint() Format             { return s.hint }
func (s ImageSource) Target() image.Point      { return s.target }
func (s ImageSource) Fingerprint() Fingerprint { return s.fingerprint }
func (s ImageSource) IsZero() bool             { return s.fingerprint == "" }

// Data returns the in-memory payload of a bytes source.  Callers must not
// modify it.
func (s ImageSource) Data() []byte { return s.data }

// Raster returns the pixels of a raster source.
func (s ImageSource) Raster() *image.NRGBA { return s.raster }

// Name is a human-readable label for logs and error reports.
func (s ImageSource) Name() string {
	switch s.origin {
	case OriginPath:
		return s.path
	case OriginBytes:
		return fmt.Sprintf("<%d bytes>", len(s.data))
	case OriginRaster:
		return fmt.Sprintf("<%dx%d raster>", s.raster.Rect.Dx(), s.raster.Rect.Dy())
	}
	return "<none>"
}

// ParseFormat maps an extension, file name or MIME type to a Format.
func ParseFormat(hint string) Format {
	if hint == "" {
		return FormatUnknown
	}
	return Format(utils.FormatFromName(hint))
}
