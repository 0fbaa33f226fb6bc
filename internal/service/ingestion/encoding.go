package ingestion

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

const (
	// sniffSampleSize bounds the prefix handed to the charset detector.
	sniffSampleSize = 10000
	// minConfidence is the detector score (0-100) below which the fallback list is probed.
	minConfidence = 70
)

// Encoding labels reported in session metadata.
const (
	EncodingUTF8        = "utf-8"
	EncodingLatin1      = "latin-1"
	EncodingWindows1252 = "windows-1252"
	EncodingUTF16LE     = "utf-16le"
	EncodingUTF16BE     = "utf-16be"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// fallbackEncodings are probed in order when detection is inconclusive.
var fallbackEncodings = []string{EncodingUTF8, EncodingLatin1, EncodingWindows1252}

var errUndecodable = errors.New("unable to decode file with any supported encoding")

// detectEncoding picks an encoding label for raw from a bounded prefix sample.
func detectEncoding(raw []byte) string {
	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		return EncodingUTF8
	case bytes.HasPrefix(raw, bomUTF16LE):
		return EncodingUTF16LE
	case bytes.HasPrefix(raw, bomUTF16BE):
		return EncodingUTF16BE
	}

	sample := raw
	if len(sample) > sniffSampleSize {
		sample = sample[:sniffSampleSize]
	}
	if isASCII(sample) {
		return EncodingUTF8
	}

	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err == nil && res != nil && res.Confidence >= minConfidence {
		if label := normalizeLabel(res.Charset); lookupEncoding(label) != nil || label == EncodingUTF8 {
			return label
		}
	}

	for _, label := range fallbackEncodings {
		if _, err := decodeAs(trimSampleTail(sample), label); err == nil {
			return label
		}
	}
	return EncodingUTF8
}

// decodeText decodes raw with the detected label, falling back through the
// fixed list when that fails. It returns the text and the label actually used.
func decodeText(raw []byte, detected string) (string, string, error) {
	if text, err := decodeAs(raw, detected); err == nil {
		return text, detected, nil
	}
	for _, label := range fallbackEncodings {
		if label == detected {
			continue
		}
		if text, err := decodeAs(raw, label); err == nil {
			return text, label, nil
		}
	}
	return "", "", errUndecodable
}

// decodeAs decodes raw strictly as label, stripping any byte-order mark.
func decodeAs(raw []byte, label string) (string, error) {
	if label == EncodingUTF8 {
		raw = bytes.TrimPrefix(raw, bomUTF8)
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("invalid %s byte sequence", label)
		}
		return string(raw), nil
	}

	enc := lookupEncoding(label)
	if enc == nil {
		return "", fmt.Errorf("unsupported encoding %q", label)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", label, err)
	}
	return strings.TrimPrefix(string(out), "\ufeff"), nil
}

// lookupEncoding resolves a label to an x/text decoder, or nil.
func lookupEncoding(label string) encoding.Encoding {
	switch label {
	case EncodingLatin1:
		return charmap.ISO8859_1
	case EncodingWindows1252:
		return charmap.Windows1252
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	}
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil
	}
	return enc
}

// normalizeLabel maps detector charset names onto the labels used elsewhere.
func normalizeLabel(charset string) string {
	switch strings.ToLower(charset) {
	case "utf-8", "utf8", "ascii", "us-ascii":
		return EncodingUTF8
	case "iso-8859-1", "latin-1", "latin1":
		return EncodingLatin1
	case "windows-1252", "cp1252":
		return EncodingWindows1252
	case "utf-16le":
		return EncodingUTF16LE
	case "utf-16be":
		return EncodingUTF16BE
	default:
		return strings.ToLower(charset)
	}
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// trimSampleTail drops a trailing partial UTF-8 sequence that sampling may
// have cut in half so it does not disqualify an otherwise valid prefix.
func trimSampleTail(sample []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(sample) > 0; i++ {
		if utf8.Valid(sample) {
			return sample
		}
		sample = sample[:len(sample)-1]
	}
	return sample
}
