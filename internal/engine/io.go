package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// maxInputSize is a safety limit to prevent memory exhaustion (100 MB).
const maxInputSize = 100 * 1024 * 1024

// Encoding names reported for a decoded document.
const (
	EncUTF16LE = "utf-16-le"
	EncUTF8    = "utf-8"
	// DefaultLegacyCharset is the last resort for bytes that are neither
	// UTF-16 nor UTF-8. It maps every byte, so decoding cannot fail.
	DefaultLegacyCharset = "windows-1252"
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
)

// Document is decoded input text split into lines.
type Document struct {
	Encoding string
	Lines    []string
}

func readInput(path string) ([]byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrInputMissing, path)
		}
		return nil, errors.Wrap(err, "reading input")
	}
	if fi.IsDir() {
		return nil, errors.Errorf("input is a directory, not a file: %s", path)
	}
	if fi.Size() > maxInputSize {
		return nil, errors.Errorf("file too large (%d bytes, max %d)", fi.Size(), maxInputSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading file")
	}
	return data, nil
}

// DecodeDocument detects the encoding of data and splits it into lines:
// UTF-16LE when the BOM says so, then strict UTF-8, then the legacy
// single-byte charset (explicit, else from the locale, else windows-1252).
// It never fails; undecodable bytes become U+FFFD.
func DecodeDocument(data []byte, legacy string) Document {
	if bytes.HasPrefix(data, utf16LEBOM) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		if out, err := dec.Bytes(data); err == nil {
			return Document{Encoding: EncUTF16LE, Lines: splitLines(string(out))}
		}
	}
	if utf8.Valid(data) {
		return Document{Encoding: EncUTF8, Lines: splitLines(string(bytes.TrimPrefix(data, utf8BOM)))}
	}
	for _, name := range []string{legacy, preferredLegacyCharset(), DefaultLegacyCharset} {
		if name == "" {
			continue
		}
		enc, canonical, ok := legacyEncoding(name)
		if !ok {
			continue
		}
		if out, err := enc.NewDecoder().Bytes(data); err == nil {
			return Document{Encoding: canonical, Lines: splitLines(string(out))}
		}
	}
	// Unreachable with windows-1252 in the list, kept so a broken table
	// still yields text.
	return Document{Encoding: EncUTF8, Lines: splitLines(strings.ToValidUTF8(string(data), "�"))}
}

// legacyEncoding looks up a single-byte charset by IANA or common name.
// Multi-byte charsets are refused since their decoders can reject input.
func legacyEncoding(name string) (encoding.Encoding, string, bool) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		enc, err = ianaindex.MIME.Encoding(name)
		if err != nil || enc == nil {
			return nil, "", false
		}
	}
	cm, ok := enc.(*charmap.Charmap)
	if !ok {
		return nil, "", false
	}
	canonical, err := ianaindex.IANA.Name(cm)
	if err != nil {
		canonical = cm.String()
	}
	return cm, strings.ToLower(canonical), true
}

// preferredLegacyCharset reads the charset part of the POSIX locale
// variables, e.g. "ISO-8859-15" from "de_DE.ISO-8859-15@euro".
func preferredLegacyCharset() string {
	for _, k := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		v := os.Getenv(k)
		if v == "" {
			continue
		}
		dot := strings.IndexByte(v, '.')
		if dot < 0 {
			return ""
		}
		cs := v[dot+1:]
		if at := strings.IndexByte(cs, '@'); at >= 0 {
			cs = cs[:at]
		}
		if strings.EqualFold(strings.ReplaceAll(cs, "-", ""), "utf8") {
			return ""
		}
		return cs
	}
	return ""
}

// splitLines splits on CRLF, LF and lone CR. A final terminator does not
// start an extra line.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// writeOutput writes text next to path first and renames it into place,
// so a failed run never leaves a partial file behind.
func writeOutput(path, text string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}
	tmp, err := os.CreateTemp(dir, ".debatch-*")
	if err != nil {
		return errors.Wrap(err, "creating output file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing output")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "writing output")
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return errors.Wrap(err, "writing output")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "writing output")
	}
	return nil
}

// DefaultOutputPath returns "<stem>_deobf<ext>" next to the input.
func DefaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_deobf" + ext
}

// samePath reports whether a and b name the same file. Paths that do not
// exist yet are compared after cleaning.
func samePath(a, b string) bool {
	if fa, err := os.Stat(a); err == nil {
		if fb, err := os.Stat(b); err == nil {
			return os.SameFile(fa, fb)
		}
	}
	pa, errA := filepath.Abs(a)
	pb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return pa == pb
}
