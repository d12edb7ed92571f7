// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns office documents into Markdown files. Parsing is
// delegated to a Converter backend (markitdown in a container); this
// package validates inputs, picks output paths, adds YAML frontmatter, and
// writes the result.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/mdconv/pkg/types"
)

// ErrEmptyOutput is returned when a backend produces no Markdown.
var ErrEmptyOutput = errors.New("conversion produced empty output")

// Converter transforms one document into Markdown text. Different backends
// implement this interface.
type Converter interface {
	Convert(ctx context.Context, path string) (string, error)
}

// FileConverter runs a Converter for a job and writes the output file.
// Its Convert method has the shape the task runner expects.
type FileConverter struct {
	backend     Converter
	frontmatter bool
	now         func() time.Time
}

// NewFileConverter wraps backend. When frontmatter is set, each output
// starts with a YAML block describing the source.
func NewFileConverter(backend Converter, frontmatter bool) *FileConverter {
	return &FileConverter{
		backend:     backend,
		frontmatter: frontmatter,
		now:         time.Now,
	}
}

// Convert converts job.Input and writes Markdown to job.Output, creating
// the output directory if needed.
func (f *FileConverter) Convert(ctx context.Context, job types.ConversionJob) error {
	info, err := Inspect(job.Input)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	body, err := f.backend.Convert(ctx, job.Input)
	if err != nil {
		return err
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyOutput, job.Input)
	}

	content := body
	if f.frontmatter {
		content, err = f.addFrontmatter(info, body)
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(job.Output, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", job.Output, err)
	}
	return nil
}

type frontmatter struct {
	Source      string `yaml:"source"`
	Format      string `yaml:"format"`
	MIME        string `yaml:"mime_type"`
	SizeBytes   int64  `yaml:"size_bytes"`
	Pages       int    `yaml:"pages,omitempty"`
	ConvertedAt string `yaml:"converted_at"`
}

func (f *FileConverter) addFrontmatter(info FileInfo, body string) (string, error) {
	meta, err := yaml.Marshal(frontmatter{
		Source:      filepath.Base(info.Path),
		Format:      info.Format.Name,
		MIME:        info.MIME,
		SizeBytes:   info.Size,
		Pages:       info.Pages,
		ConvertedAt: f.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("encoding frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(meta)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String(), nil
}

// PrepareJobs validates inputs and builds one job per accepted input.
// Rejected inputs (missing, unreadable, unsupported, or mapping to an
// output path already claimed by an earlier input) are returned as error
// items so the caller can report them alongside the batch result.
func PrepareJobs(inputs []string, outDir string, options map[string]string) ([]types.ConversionJob, []types.ErrorItem) {
	var (
		jobs     []types.ConversionJob
		rejected []types.ErrorItem
		claimed  = make(map[string]string)
	)
	for _, in := range inputs {
		if _, err := ValidateInput(in); err != nil {
			rejected = append(rejected, types.ErrorItem{Input: in, Error: err.Error()})
			continue
		}
		out := OutputPath(in, outDir)
		if prev, ok := claimed[out]; ok {
			rejected = append(rejected, types.ErrorItem{
				Input: in,
				Error: fmt.Sprintf("output %s already produced by %s", out, prev),
			})
			continue
		}
		claimed[out] = in
		jobs = append(jobs, types.ConversionJob{
			Index:   len(jobs),
			Input:   in,
			Output:  out,
			Options: options,
		})
	}
	return jobs, rejected
}
