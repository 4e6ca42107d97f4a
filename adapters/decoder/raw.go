package decoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image/jpeg"
	"io"

	"github.com/rwcarlsen/goexif/tiff"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// TIFF tag IDs used to locate embedded previews.
const (
	tagStripOffsets       = 0x0111
	tagStripByteCounts    = 0x0117
	tagSubIFDs            = 0x014A
	tagJPEGInterchange    = 0x0201
	tagJPEGInterchangeLen = 0x0202
)

// maxMarkerScan bounds the brute-force search for JPEG start markers.
const maxMarkerScan = 64

var errNoPreview = errors.New("no embedded JPEG preview")

// RAW decodes camera raw files (CR2, NEF, ARW, DNG, RAF, ORF, RW2 and
// friends) by extracting the largest embedded JPEG preview.  Sensor data is
// not demosaiced.
type RAW struct{}

func NewRAW() *RAW { return &RAW{} }

func (r *RAW) Name() string { return "raw" }

func (r *RAW) CanDecode(format core.Format) bool { return format == core.FormatRAW }

func (r *RAW) Decode(ctx context.Context, rd io.Reader, _ core.DecodeOptions) (*core.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "raw.decode", err)
	}
	data, err := drain(ctx, rd, "raw.drain")
	if err != nil {
		return nil, err
	}

	preview := largestPreview(previewCandidates(data))
	if preview == nil {
		return nil, apperrors.Decode(apperrors.KindUnsupported, "raw.decode", errNoPreview)
	}
	img, err := jpeg.Decode(bytes.NewReader(preview))
	if err != nil {
		return nil, apperrors.DecodeFailure("raw.preview", err)
	}

	raw := still(img, core.FormatRAW)
	raw.Orientation, raw.EXIF = readEXIF(data)
	if raw.EXIF == nil {
		raw.Orientation, raw.EXIF = readEXIF(preview)
	}
	return raw, nil
}

// previewCandidates lists byte ranges that may hold a JPEG stream.
func previewCandidates(data []byte) [][]byte {
	if bytes.HasPrefix(data, []byte("FUJIFILMCCD-RAW")) && len(data) >= 92 {
		off := binary.BigEndian.Uint32(data[84:88])
		n := binary.BigEndian.Uint32(data[88:92])
		if seg := segment(data, int64(off), int64(n)); seg != nil {
			return [][]byte{seg}
		}
	}

	var out [][]byte
	if t, err := tiff.Decode(bytes.NewReader(data)); err == nil {
		br := bytes.NewReader(data)
		dirs := append([]*tiff.Dir(nil), t.Dirs...)
		for i := 0; i < len(dirs) && i < 32; i++ {
			tags := tagMap(dirs[i])
			out = append(out, dirPreviews(data, tags)...)
			if sub, ok := tags[tagSubIFDs]; ok {
				for j := 0; j < int(sub.Count); j++ {
					off, err := sub.Int64(j)
					if err != nil {
						break
					}
					if _, err := br.Seek(off, io.SeekStart); err != nil {
						continue
					}
					if d, _, err := tiff.DecodeDir(br, t.Order); err == nil {
						dirs = append(dirs, d)
					}
				}
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	return scanMarkers(data)
}

func tagMap(d *tiff.Dir) map[uint16]*tiff.Tag {
	m := make(map[uint16]*tiff.Tag, len(d.Tags))
	for _, t := range d.Tags {
		m[t.Id] = t
	}
	return m
}

func dirPreviews(data []byte, tags map[uint16]*tiff.Tag) [][]byte {
	var out [][]byte
	if off, n, ok := tagPair(tags, tagJPEGInterchange, tagJPEGInterchangeLen); ok {
		if seg := segment(data, off, n); seg != nil {
			out = append(out, seg)
		}
	}
	if off, n, ok := tagPair(tags, tagStripOffsets, tagStripByteCounts); ok {
		if seg := segment(data, off, n); seg != nil && isJPEG(seg) {
			out = append(out, seg)
		}
	}
	return out
}

func tagPair(tags map[uint16]*tiff.Tag, offID, lenID uint16) (int64, int64, bool) {
	ot, ok1 := tags[offID]
	lt, ok2 := tags[lenID]
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	off, err1 := ot.Int64(0)
	n, err2 := lt.Int64(0)
	return off, n, err1 == nil && err2 == nil
}

func segment(data []byte, off, n int64) []byte {
	if off <= 0 || n <= 0 || off+n > int64(len(data)) {
		return nil
	}
	return data[off : off+n]
}

func isJPEG(b []byte) bool {
	return len(b) > 3 && b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF
}

// scanMarkers finds JPEG start-of-image markers anywhere in data.  Used for
// containers whose IFDs the TIFF reader cannot follow.
func scanMarkers(data []byte) [][]byte {
	var out [][]byte
	marker := []byte{0xFF, 0xD8, 0xFF}
	for pos := 0; len(out) < maxMarkerScan; {
		i := bytes.Index(data[pos:], marker)
		if i < 0 {
			break
		}
		out = append(out, data[pos+i:])
		pos += i + len(marker)
	}
	return out
}

// largestPreview returns the candidate with the most pixels according to its
// JPEG header.
func largestPreview(candidates [][]byte) []byte {
	var best []byte
	bestArea := 0
	for _, c := range candidates {
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(c))
		if err != nil {
			continue
		}
		if area := cfg.Width * cfg.Height; area > bestArea {
			best, bestArea = c, area
		}
	}
	return best
}
