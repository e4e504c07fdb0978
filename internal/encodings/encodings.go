// Package encodings detects text file charsets and rewrites files to
// canonical UTF-8 in the staging area. Detection is bounded and never fails:
// anything ambiguous is treated as UTF-8.
package encodings

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"dataprep/internal/staging"
)

const (
	detectChunk  = 16 * 1024
	convertChunk = 4 * 1024 * 1024

	// DefaultDetectBudget caps how much of a file detection reads.
	DefaultDetectBudget = 200_000

	// minConfidence is the chardet score (0-100) below which the detected
	// charset is distrusted and UTF-8 assumed.
	minConfidence = 60

	// earlyConfidence stops feeding the detector before the budget runs out.
	earlyConfidence = 90
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ConversionError reports a failed re-encode of Path from Encoding.
type ConversionError struct {
	Path     string
	Encoding string
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s from %s: %v", e.Path, e.Encoding, e.Err)
}
func (e *ConversionError) Unwrap() error { return e.Err }

// Service detects and converts file encodings. Staged output lives under the
// Staging manager's root.
type Service struct {
	Staging      *staging.Manager
	Log          zerolog.Logger
	DetectBudget int
}

func NewService(st *staging.Manager, log zerolog.Logger) *Service {
	return &Service{
		Staging:      st,
		Log:          log,
		DetectBudget: DefaultDetectBudget,
	}
}

// Detect returns the normalized charset name for path, reading at most the
// detect budget in chunks. It never returns an error: unreadable files, empty
// files and low-confidence guesses all come back as "utf-8", the
// low-confidence case logged at warn level.
func (s *Service) Detect(path string) string {
	f, err := os.Open(path)
	if err != nil {
		s.Log.Warn().Err(err).Str("path", path).Msg("encoding detection open failed, assuming utf-8")
		return "utf-8"
	}
	defer f.Close()

	budget := s.DetectBudget
	if budget <= 0 {
		budget = DefaultDetectBudget
	}

	buf := make([]byte, 0, budget)
	chunk := make([]byte, detectChunk)
	detector := chardet.NewTextDetector()
	var best *chardet.Result

	for len(buf) < budget {
		n, err := f.Read(chunk)
		if n > 0 {
			if len(buf)+n > budget {
				n = budget - len(buf)
			}
			buf = append(buf, chunk[:n]...)
			if r, derr := detector.DetectBest(buf); derr == nil {
				best = r
				if r.Confidence >= earlyConfidence {
					break
				}
			}
		}
		if err != nil {
			break
		}
	}

	if len(buf) == 0 {
		return "utf-8"
	}
	if bytes.HasPrefix(buf, utf8BOM) {
		return "utf-8"
	}
	// Bytes that already decode as UTF-8 are UTF-8; statistical detection
	// only matters for the rest.
	if validUTF8Sample(buf) {
		return "utf-8"
	}
	if best == nil || best.Confidence < minConfidence {
		conf := 0
		name := ""
		if best != nil {
			conf = best.Confidence
			name = best.Charset
		}
		s.Log.Warn().
			Str("path", path).
			Str("detected", name).
			Int("confidence", conf).
			Msg("low-confidence encoding detection, assuming utf-8")
		return "utf-8"
	}
	return normalizeName(best.Charset)
}

// ScanEncodings detects every path and reports only the text files that are
// not already UTF-8.
func (s *Service) ScanEncodings(paths []string) map[string]string {
	out := make(map[string]string)
	for _, p := range paths {
		if !isTextFile(p) {
			continue
		}
		if enc := s.Detect(p); enc != "utf-8" {
			out[p] = enc
		}
	}
	return out
}

// EnsureUTF8 returns a path whose content is valid UTF-8 with normalized
// newlines: the original path when it already is, otherwise a staged
// conversion.
func (s *Service) EnsureUTF8(path string) (string, error) {
	enc := s.Detect(path)
	if enc == "utf-8" {
		return path, nil
	}
	return s.Convert(path, enc)
}

// Convert rewrites path from sourceEncoding into a staged UTF-8 file and
// returns the staged path. Undecodable bytes are replaced, CRLF and CR become
// LF, NUL bytes are dropped. A partially written staged file is deleted on
// failure.
func (s *Service) Convert(path, sourceEncoding string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", &ConversionError{Path: path, Encoding: sourceEncoding, Err: err}
	}
	defer src.Close()

	dir, err := s.Staging.CreateUniqueDir(filepath.Base(path))
	if err != nil {
		return "", &ConversionError{Path: path, Encoding: sourceEncoding, Err: err}
	}

	staged := filepath.Join(dir, "utf8_"+staging.SanitizeName(filepath.Base(path)))
	dst, err := os.Create(staged)
	if err != nil {
		s.Staging.Remove(dir)
		return "", &ConversionError{Path: path, Encoding: sourceEncoding, Err: err}
	}

	fail := func(cause error) (string, error) {
		dst.Close()
		s.Staging.Remove(dir)
		return "", &ConversionError{Path: path, Encoding: sourceEncoding, Err: cause}
	}

	reader := transform.NewReader(src, decoderFor(sourceEncoding, s.Log))
	w := bufio.NewWriterSize(dst, 64*1024)

	buf := make([]byte, convertChunk)
	skipLF := false
	for {
		n, rerr := reader.Read(buf)
		if n > 0 {
			if werr := writeNormalized(w, buf[:n], &skipLF); werr != nil {
				return fail(werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fail(rerr)
		}
	}

	if err := w.Flush(); err != nil {
		return fail(err)
	}
	if err := dst.Close(); err != nil {
		s.Staging.Remove(dir)
		return "", &ConversionError{Path: path, Encoding: sourceEncoding, Err: err}
	}

	s.Log.Info().Str("path", path).Str("from", sourceEncoding).Str("staged", staged).Msg("converted to utf-8")
	return staged, nil
}

// writeNormalized copies b to w with newline normalization and NUL
// stripping. skipLF carries a pending CRLF across chunk boundaries.
func writeNormalized(w *bufio.Writer, b []byte, skipLF *bool) error {
	for _, c := range b {
		if *skipLF {
			*skipLF = false
			if c == '\n' {
				continue
			}
		}
		switch c {
		case 0x00:
		case '\r':
			*skipLF = true
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		default:
			if err := w.WriteByte(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// decoderFor resolves a charset name to a lossy decoder. Unknown names fall
// back to UTF-8, mirroring the detection default.
func decoderFor(name string, log zerolog.Logger) *encoding.Decoder {
	enc, err := htmlindex.Get(normalizeName(name))
	if err != nil || enc == nil {
		log.Warn().Str("encoding", name).Msg("unknown encoding, decoding as utf-8")
		enc = unicode.UTF8
	}
	return enc.NewDecoder()
}

// normalizeName canonicalizes detector output: lowercase, ascii and BOM
// variants collapse to utf-8.
func normalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "ascii", "us-ascii", "utf-8-sig", "utf8":
		return "utf-8"
	}
	return n
}

// validUTF8Sample tolerates a multibyte rune truncated by the read budget.
func validUTF8Sample(buf []byte) bool {
	for trim := 0; trim <= 3 && trim < len(buf); trim++ {
		if utf8.Valid(buf[:len(buf)-trim]) {
			return true
		}
	}
	return false
}

func isTextFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".tsv", ".json", ".ndjson", ".jsonl":
		return true
	}
	return false
}
