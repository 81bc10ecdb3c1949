package text

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
)

// Encoding names the decoder that produced a Document.
type Encoding string

const (
	EncodingUTF8  Encoding = "utf-8"
	EncodingCP932 Encoding = "cp932"
	EncodingLossy Encoding = "utf-8-lossy"
)

var (
	zipMagic = []byte("PK\x03\x04")
	utf8BOM  = []byte("\xef\xbb\xbf")
)

// Document is decoded text plus the encoding that produced it.
type Document struct {
	Text     string
	Encoding Encoding
	// Entry is the archive member the text came from, empty for plain files.
	Entry string
}

// Decode turns the raw bytes of an Aozora file into text.
//
// ZIP containers are opened and their first .txt entry is decoded. XML
// and XHTML payloads are refused. Plain bytes are tried as strict UTF-8,
// then as CP932, then decoded as UTF-8 with replacement characters. Line
// endings are normalized to "\n".
func Decode(raw []byte) (*Document, error) {
	if bytes.HasPrefix(raw, zipMagic) {
		return decodeContainer(raw)
	}
	return decodePlain(raw)
}

func decodeContainer(raw []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadContainer, err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(path.Ext(f.Name), ".txt") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrBadContainer, f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrBadContainer, f.Name, err)
		}
		doc, err := decodePlain(data)
		if err != nil {
			return nil, err
		}
		doc.Entry = f.Name
		return doc, nil
	}
	return nil, ErrNoTextInContainer
}

func decodePlain(raw []byte) (*Document, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: nil input", ErrDecodeFailure)
	}
	if isMarkup(raw) {
		return nil, ErrUnsupportedFormat
	}

	if utf8.Valid(raw) {
		return &Document{Text: normalizeNewlines(string(bytes.TrimPrefix(raw, utf8BOM))), Encoding: EncodingUTF8}, nil
	}

	// The x/text decoder substitutes U+FFFD for invalid sequences instead of
	// failing, so a replacement character in the output means the bytes were
	// not CP932 either.
	if decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(raw); err == nil && !bytes.ContainsRune(decoded, utf8.RuneError) {
		return &Document{Text: normalizeNewlines(string(decoded)), Encoding: EncodingCP932}, nil
	}

	return &Document{Text: normalizeNewlines(strings.ToValidUTF8(string(raw), "�")), Encoding: EncodingLossy}, nil
}

func isMarkup(raw []byte) bool {
	head := raw
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.TrimPrefix(head, utf8BOM)
	head = bytes.ToLower(bytes.TrimLeft(head, " \t\r\n"))
	return bytes.HasPrefix(head, []byte("<?xml")) ||
		bytes.HasPrefix(head, []byte("<!doctype html")) ||
		bytes.HasPrefix(head, []byte("<html"))
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
