// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

var (
	// ErrUnsupported is returned for inputs whose extension has no converter.
	ErrUnsupported = errors.New("unsupported file type")

	// ErrContentMismatch is returned when a file's content does not match
	// its extension (for example a text file renamed to .pdf).
	ErrContentMismatch = errors.New("file content does not match extension")
)

// Format describes one supported input type.
type Format struct {
	Ext  string `json:"extension" yaml:"extension"`
	Name string `json:"name" yaml:"name"`

	// accept lists MIME types (or ancestors) the sniffed content may have.
	accept []string
}

var formats = map[string]Format{
	".pdf":  {Ext: ".pdf", Name: "PDF Document", accept: []string{"application/pdf"}},
	".docx": {Ext: ".docx", Name: "Word Document", accept: []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"}},
	".pptx": {Ext: ".pptx", Name: "PowerPoint Presentation", accept: []string{"application/vnd.openxmlformats-officedocument.presentationml.presentation", "application/zip"}},
	".xlsx": {Ext: ".xlsx", Name: "Excel Spreadsheet", accept: []string{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/zip"}},
	".json": {Ext: ".json", Name: "JSON File", accept: []string{"application/json", "text/plain"}},
	".txt":  {Ext: ".txt", Name: "Text File", accept: []string{"text/plain"}},
	".csv":  {Ext: ".csv", Name: "CSV File", accept: []string{"text/csv", "text/plain"}},
}

// Formats returns the supported formats sorted by extension.
func Formats() []Format {
	out := make([]Format, 0, len(formats))
	for _, f := range formats {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ext < out[j].Ext })
	return out
}

// Lookup returns the format for path's extension, case-insensitively.
func Lookup(path string) (Format, bool) {
	f, ok := formats[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// FileInfo is what Inspect learns about an input file.
type FileInfo struct {
	Path   string
	Format Format
	MIME   string
	Size   int64

	// Pages is the page count for PDFs and zero otherwise.
	Pages int
}

// Inspect checks that path is a supported regular file whose sniffed
// content agrees with its extension. For PDFs it also counts pages; a PDF
// that cannot be parsed still passes, with Pages left at zero.
func Inspect(path string) (FileInfo, error) {
	format, ok := Lookup(path)
	if !ok {
		return FileInfo{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}

	st, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("inspecting %s: %w", path, err)
	}
	if !st.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("inspecting %s: not a regular file", path)
	}

	info := FileInfo{Path: path, Format: format, Size: st.Size()}
	if st.Size() == 0 {
		info.MIME = "text/plain"
		return info, nil
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("inspecting %s: %w", path, err)
	}
	info.MIME = mt.String()
	if !accepts(format, mt) {
		return FileInfo{}, fmt.Errorf("%w: %s is %s, expected %s", ErrContentMismatch, path, mt.String(), format.Name)
	}

	if format.Ext == ".pdf" {
		info.Pages = pageCount(path)
	}
	return info, nil
}

// pageCount returns the number of pages in the PDF at path, or zero when
// pdfcpu cannot read it.
func pageCount(path string) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	n, err := pdfapi.PageCountFile(path)
	if err != nil {
		return 0
	}
	return n
}

func accepts(f Format, mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		for _, want := range f.accept {
			if m.Is(want) {
				return true
			}
		}
	}
	return false
}
