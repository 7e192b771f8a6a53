package census

import (
	"bytes"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding describes how a graph file was decoded.
type Encoding struct {
	Name   string `json:"encoding"`
	HasBOM bool   `json:"has_bom"`
}

// DetectEncoding inspects a byte order mark first, then falls back to UTF-8
// validity and a UTF-16 null-byte heuristic. Anything else is treated as
// Windows-1252, which decodes every byte.
func DetectEncoding(data []byte) Encoding {
	switch {
	case len(data) == 0:
		return Encoding{Name: "utf-8"}
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return Encoding{Name: "utf-8", HasBOM: true}
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return Encoding{Name: "utf-16le", HasBOM: true}
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return Encoding{Name: "utf-16be", HasBOM: true}
	}

	sample := data
	if len(sample) > 8192 {
		sample = sample[:8192]
	}
	if le, be := utf16Score(sample); le > 0.75 {
		return Encoding{Name: "utf-16le"}
	} else if be > 0.75 {
		return Encoding{Name: "utf-16be"}
	}
	if utf8.Valid(trimPartialRune(sample)) {
		return Encoding{Name: "utf-8"}
	}
	return Encoding{Name: "windows-1252"}
}

// utf16Score returns the share of zero bytes at odd and even offsets. ASCII
// heavy text encoded as UTF-16 has one of them close to 1.
func utf16Score(data []byte) (le, be float64) {
	if len(data) < 2 || len(data)%2 != 0 {
		return 0, 0
	}
	var odd, even int
	for i := 0; i+1 < len(data); i += 2 {
		if data[i] == 0 {
			even++
		}
		if data[i+1] == 0 {
			odd++
		}
	}
	half := float64(len(data) / 2)
	return float64(odd) / half, float64(even) / half
}

// trimPartialRune drops a multi-byte sequence cut off by the sample limit.
func trimPartialRune(data []byte) []byte {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				return data[:i]
			}
			break
		}
	}
	return data
}

// Decode converts data to UTF-8 according to enc, stripping any BOM.
func Decode(data []byte, enc Encoding) string {
	var dec *encoding.Decoder
	switch enc.Name {
	case "utf-16le":
		dec = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	case "utf-16be":
		dec = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
	case "windows-1252":
		dec = charmap.Windows1252.NewDecoder()
	default:
		data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
		return string(bytes.ToValidUTF8(data, []byte("\uFFFD")))
	}

	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), dec))
	if err != nil {
		return string(bytes.ToValidUTF8(data, []byte("\uFFFD")))
	}
	return string(bytes.ToValidUTF8(out, []byte("\uFFFD")))
}

func ReadFileAsUTF8(path string) (string, Encoding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", Encoding{}, err
	}
	enc := DetectEncoding(data)
	return Decode(data, enc), enc, nil
}
