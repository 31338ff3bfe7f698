package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file exceeds upload limit")
	ErrNotText         = errors.New("file is not valid utf-8 text")
	ErrEmpty           = errors.New("file has no text content")
)

const DefaultMaxBytes = 10 << 20

var textExtensions = map[string]struct{}{
	".txt": {}, ".md": {}, ".markdown": {}, ".csv": {}, ".json": {}, ".log": {},
}

var textMediaTypes = map[string]struct{}{
	"application/json": {},
	"application/csv":  {},
}

// Extractor turns an uploaded file into plain text.
type Extractor interface {
	Extract(filename, contentType string, r io.Reader) (string, error)
}

// TextExtractor accepts text-like uploads up to MaxBytes.
type TextExtractor struct {
	MaxBytes int64
}

func NewTextExtractor(maxBytes int64) *TextExtractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &TextExtractor{MaxBytes: maxBytes}
}

func (x *TextExtractor) Extract(filename, contentType string, r io.Reader) (string, error) {
	if !Supported(filename, contentType) {
		return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, filename, contentType)
	}
	data, err := io.ReadAll(io.LimitReader(r, x.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > x.MaxBytes {
		return "", ErrTooLarge
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", ErrNotText
	}
	text := strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n"))
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// Supported reports whether the extension or media type is text-like.
func Supported(filename, contentType string) bool {
	if _, ok := textExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	_, ok := textMediaTypes[mediaType]
	return ok
}
