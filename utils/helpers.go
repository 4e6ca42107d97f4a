package utils

import (
	"bytes"
	"net/http"
	"path/filepath"
	"strings"
)

const (
	formatJPEG    = "jpeg"
	formatPNG     = "png"
	formatGIF     = "gif"
	formatWebP    = "webp"
	formatBMP     = "bmp"
	formatTIFF    = "tiff"
	formatSVG     = "svg"
	formatPSD     = "psd"
	formatRAW     = "raw"
	formatHEIF    = "heif"
	formatAVIF    = "avif"
	formatJP2     = "jp2"
	formatJXL     = "jxl"
	formatPDF     = "pdf"
	formatUnknown = "unknown"
)

// sniffLen is how many leading bytes DetectFormat looks at.
const sniffLen = 512

// DetectFormat sniffs the first 512 bytes of data and returns the image format.
func DetectFormat(data []byte) string {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	if len(data) < 4 {
		return formatUnknown
	}
	switch {
	// JPEG: FF D8 FF
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return formatJPEG
	// PNG: 89 50 4E 47
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return formatPNG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return formatGIF
	// WebP: RIFF....WEBP
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return formatWebP
	case data[0] == 'B' && data[1] == 'M':
		return formatBMP
	case bytes.HasPrefix(data, []byte("8BPS")):
		return formatPSD
	case bytes.HasPrefix(data, []byte("%PDF")):
		return formatPDF
	case bytes.HasPrefix(data, []byte("FUJIFILMCCD-RAW")):
		return formatRAW
	case bytes.HasPrefix(data, []byte("IIRO")), bytes.HasPrefix(data, []byte("IIRS")), bytes.HasPrefix(data, []byte("IIU\x00")):
		// Olympus ORF and Panasonic RW2 use private TIFF magics.
		return formatRAW
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		// Canon CR2 tags its TIFF header; other TIFF-based RAWs need the extension.
		if len(data) >= 10 && data[8] == 'C' && data[9] == 'R' {
			return formatRAW
		}
		return formatTIFF
	case bytes.HasPrefix(data, []byte{0xFF, 0x0A}),
		bytes.HasPrefix(data, []byte("\x00\x00\x00\x0cJXL \r\n\x87\n")):
		return formatJXL
	case bytes.HasPrefix(data, []byte("\x00\x00\x00\x0cjP  \r\n\x87\n")):
		return formatJP2
	}
	if f := isoBMFFBrand(data); f != "" {
		return f
	}
	if looksLikeSVG(data) {
		return formatSVG
	}
	// Fallback to net/http sniffing.
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return formatJPEG
	case "image/png":
		return formatPNG
	case "image/gif":
		return formatGIF
	case "image/webp":
		return formatWebP
	case "image/bmp":
		return formatBMP
	}
	return formatUnknown
}

// isoBMFFBrand recognises HEIF and AVIF from the ftyp box.
func isoBMFFBrand(data []byte) string {
	if len(data) < 12 || !bytes.Equal(data[4:8], []byte("ftyp")) {
		return ""
	}
	switch string(data[8:12]) {
	case "avif", "avis":
		return formatAVIF
	case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
		return formatHEIF
	}
	return ""
}

func looksLikeSVG(data []byte) bool {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF")), " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("<")) {
		return false
	}
	return bytes.Contains(trimmed, []byte("<svg"))
}

// extFormats maps lower-case file extensions to format names.
var extFormats = map[string]string{
	".jpg": formatJPEG, ".jpeg": formatJPEG, ".jpe": formatJPEG, ".jfif": formatJPEG,
	".png":  formatPNG,
	".gif":  formatGIF,
	".webp": formatWebP,
	".bmp":  formatBMP,
	".tif":  formatTIFF, ".tiff": formatTIFF,
	".svg":  formatSVG,
	".psd":  formatPSD,
	".heic": formatHEIF, ".heif": formatHEIF,
	".avif": formatAVIF,
	".jp2":  formatJP2, ".j2k": formatJP2,
	".jxl":  formatJXL,
	".pdf":  formatPDF,
	".cr2":  formatRAW, ".cr3": formatRAW, ".nef": formatRAW, ".nrw": formatRAW,
	".arw":  formatRAW, ".srf": formatRAW, ".sr2": formatRAW, ".dng": formatRAW,
	".orf":  formatRAW, ".rw2": formatRAW, ".raf": formatRAW, ".pef": formatRAW,
	".srw":  formatRAW, ".raw": formatRAW, ".3fr": formatRAW, ".erf": formatRAW,
}

// FormatFromName returns the format implied by a file name, path, or bare
// extension such as "png" or ".png".  MIME types ("image/png") are accepted too.
func FormatFromName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return formatUnknown
	}
	if strings.HasPrefix(name, "image/") {
		sub := strings.TrimPrefix(name, "image/")
		sub = strings.TrimPrefix(sub, "x-")
		switch sub {
		case "svg+xml":
			sub = "svg"
		case "vnd.adobe.photoshop":
			sub = "psd"
		}
		name = sub
	}
	ext := filepath.Ext(name)
	if ext == "" {
		ext = "." + strings.TrimPrefix(name, ".")
	}
	if f, ok := extFormats[ext]; ok {
		return f
	}
	return formatUnknown
}

// KnownExtension reports whether name carries an image extension.
func KnownExtension(name string) bool {
	_, ok := extFormats[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ScaleDimensions computes output (w, h) preserving aspect ratio.
// Pass 0 for either axis to calculate it from the other.
func ScaleDimensions(srcW, srcH, targetW, targetH int) (int, int) {
	if targetW == 0 && targetH == 0 {
		return srcW, srcH
	}
	if targetW == 0 {
		ratio := float64(targetH) / float64(srcH)
		return int(float64(srcW) * ratio), targetH
	}
	if targetH == 0 {
		ratio := float64(targetW) / float64(srcW)
		return targetW, int(float64(srcH) * ratio)
	}
	return targetW, targetH
}

// FitDimensions scales (srcW, srcH) to fit inside (maxW, maxH) keeping aspect
// ratio.  Either result is at least 1.
func FitDimensions(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return maxW, maxH
	}
	rw := float64(maxW) / float64(srcW)
	rh := float64(maxH) / float64(srcH)
	r := rw
	if rh < r {
		r = rh
	}
	w, h := int(float64(srcW)*r+0.5), int(float64(srcH)*r+0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// CloneBytes returns a copy of b (safe for use after the source buffer is released).
func CloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// BytesReader creates an io.Reader backed by b without allocation.
func BytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
