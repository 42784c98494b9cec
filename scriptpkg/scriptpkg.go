// Package scriptpkg renders a Plan and its accompanying ImageInfo into a
// single self-extracting POSIX shell script: the wrapper prologue, the
// reconstruction program body, and the concatenated IMAGE-segment bytes
// that the body reads back out of its own trailing region. It implements
// component C6.
package scriptpkg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/sherwoodwang/go-image-reconstructor/continuity"
	"github.com/sherwoodwang/go-image-reconstructor/imageinfo"
	"github.com/sherwoodwang/go-image-reconstructor/offsetmap"
	"github.com/sherwoodwang/go-image-reconstructor/readahead"
	"github.com/sherwoodwang/go-image-reconstructor/reconplan"
	"github.com/sherwoodwang/go-image-reconstructor/scriptpkg/tmpl"
	"github.com/sherwoodwang/go-image-reconstructor/shellquote"
)

// placeholderWidth is the fixed width, in bytes, of the data_offset value
// field in the emitted wrapper: enough decimal digits for any practical
// artifact size, padded with trailing spaces so the field's byte width
// never changes between the unpatched placeholder and the patched value.
const placeholderWidth = 20

// DefaultWriteChunkSize is the default granularity for streaming
// IMAGE-segment bytes into the artifact.
const DefaultWriteChunkSize = 16 * readahead.MiB

var placeholderField = strings.Repeat("0", placeholderWidth)

// directive is one rendered copy instruction: either "read the file
// entry's source file at Offset for Length bytes" or "read the artifact
// itself at data_offset+Offset for Length bytes".
type directive struct {
	IsImage bool
	Offset  uint64
	Length  uint64
	Path    string // shell-quoted; only meaningful when !IsImage
}

// programData is the value text/template renders the program body
// template against.
type programData struct {
	ImageSize   uint64
	Directives  []directive
	SourceFiles []string
	Info        infoFields
}

// infoFields mirrors imageinfo.Info with template-friendly scalar types
// (text/template's reflection-based function calls require exact
// parameter types, which os.FileMode's defined-type wrapping does not
// satisfy against a plain uint32 parameter).
type infoFields struct {
	Permissions uint32
	UID         uint32
	GID         uint32
	Owner       string
	Group       string
	Atime       int64
	Mtime       int64
	Ctime       int64
	MD5         string
	SHA256      string
	ACL         string
	HasACL      bool
}

// Options configures a single packaging run.
type Options struct {
	Plan           reconplan.Plan
	Info           imageinfo.Info
	ImagePath      string
	WriteChunkSize int
}

func (o Options) writeChunkSize() int {
	if o.WriteChunkSize > 0 {
		return o.WriteChunkSize
	}
	return DefaultWriteChunkSize
}

// buildDirectives walks the plan in order, translating IMAGE entries
// through the offset mapper into artifact-relative offsets and quoting
// file entries' source paths.
func buildDirectives(plan reconplan.Plan, layout *offsetmap.Layout) ([]directive, []string, error) {
	var directives []directive
	seen := make(map[string]bool)
	var sourceFiles []string

	for _, e := range plan {
		if e.Len() == 0 {
			// The planner's plan for an empty image is a single
			// zero-length IMAGE entry; it copies nothing.
			continue
		}
		if e.IsImage() {
			off, err := layout.Map(e.SrcStart)
			if err != nil {
				return nil, nil, fmt.Errorf("scriptpkg: mapping image segment [%d,%d): %w", e.SrcStart, e.SrcEnd, err)
			}
			directives = append(directives, directive{
				IsImage: true,
				Offset:  off,
				Length:  e.Len(),
			})
			continue
		}

		directives = append(directives, directive{
			IsImage: false,
			Offset:  e.SrcStart,
			Length:  e.Len(),
			Path:    shellquote.Quote(e.Source),
		})
		if !seen[e.Source] {
			seen[e.Source] = true
			sourceFiles = append(sourceFiles, e.Source)
		}
	}

	return directives, sourceFiles, nil
}

// renderProgramBody executes the reconstruction program template.
func renderProgramBody(plan reconplan.Plan, info imageinfo.Info, layout *offsetmap.Layout) (string, error) {
	directives, sourceFiles, err := buildDirectives(plan, layout)
	if err != nil {
		return "", err
	}

	data := programData{
		ImageSize:   info.Size,
		Directives:  directives,
		SourceFiles: sourceFiles,
		Info: infoFields{
			Permissions: uint32(info.Permissions),
			UID:         info.UID,
			GID:         info.GID,
			Owner:       info.Owner,
			Group:       info.Group,
			Atime:       info.Atime,
			Mtime:       info.Mtime,
			Ctime:       info.Ctime,
			MD5:         info.MD5,
			SHA256:      info.SHA256,
			ACL:         info.ACL,
			HasACL:      info.HasACL,
		},
	}

	var buf bytes.Buffer
	if err := tmpl.Program.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("scriptpkg: rendering program body: %w", err)
	}
	return buf.String(), nil
}

// composeHeader builds the wrapper+program text with the data_offset
// placeholder patched to the header's own final length, preserving the
// placeholder field's byte width exactly.
func composeHeader(programBody string) ([]byte, error) {
	var unpatched bytes.Buffer
	unpatched.WriteString("#!/bin/sh\n")
	unpatched.WriteString("set -e\n")
	unpatched.WriteString("data_offset=")
	unpatched.WriteString(placeholderField)
	unpatched.WriteString("\n")
	unpatched.WriteString(`script_file="$0"` + "\n")
	unpatched.WriteString(programBody)
	if !strings.HasSuffix(programBody, "\n") {
		unpatched.WriteString("\n")
	}
	unpatched.WriteString("exit 0\n")

	header := unpatched.Bytes()

	needle := []byte("data_offset=" + placeholderField)
	idx := bytes.Index(header, needle)
	if idx < 0 {
		return nil, fmt.Errorf("scriptpkg: invariant violation: data_offset placeholder not found in composed wrapper")
	}
	fieldStart := idx + len("data_offset=")

	value := strconv.Itoa(len(header))
	if len(value) > placeholderWidth {
		return nil, fmt.Errorf("scriptpkg: invariant violation: artifact header length %d exceeds placeholder capacity", len(header))
	}
	patched := value + strings.Repeat(" ", placeholderWidth-len(value))
	copy(header[fieldStart:fieldStart+placeholderWidth], patched)

	return header, nil
}

// Write renders the plan and info into a self-extracting script and writes
// it atomically into outputDir, returning the final path. A uuid-named
// temporary file is written first and chmod'd 0755, then renamed into
// place, so a crash mid-write never leaves a corrupt file at the final
// path.
func Write(ctx context.Context, opts Options, outputDir, finalName string) (string, error) {
	var (
		header   []byte
		out      *os.File
		tmpPath  string
		written  uint64
		finalPath = filepath.Join(outputDir, finalName)
	)

	chain := continuity.New().
		Thenf("compose", func() error {
			layout := offsetmap.Build(opts.Plan)
			body, err := renderProgramBody(opts.Plan, opts.Info, layout)
			if err != nil {
				return err
			}
			h, err := composeHeader(body)
			if err != nil {
				return err
			}
			header = h
			return nil
		}).
		Thenf("open", func() error {
			tmpPath = filepath.Join(outputDir, "."+uuid.New().String()+".tmp")
			f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_EXCL, 0o644)
			if err != nil {
				return fmt.Errorf("scriptpkg: creating temporary output file: %w", err)
			}
			out = f
			return nil
		}).
		Thenf("write header", func() error {
			_, err := out.Write(header)
			if err != nil {
				return fmt.Errorf("scriptpkg: writing wrapper header: %w", err)
			}
			return nil
		}).
		Thenf("stream image segments", func() error {
			for _, seg := range opts.Plan.ImageSegments() {
				n, err := streamImageSegment(out, opts.ImagePath, seg, opts.writeChunkSize())
				if err != nil {
					return err
				}
				written += n
			}
			klog.V(1).Infof("scriptpkg: wrote %s of embedded image bytes", humanize.IBytes(written))
			return nil
		}).
		Thenf("finalize", func() error {
			if err := out.Chmod(0o755); err != nil {
				return fmt.Errorf("scriptpkg: chmod temporary output file: %w", err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("scriptpkg: closing temporary output file: %w", err)
			}
			if err := os.Rename(tmpPath, finalPath); err != nil {
				return fmt.Errorf("scriptpkg: renaming into place: %w", err)
			}
			return nil
		})

	if err := chain.Err(); err != nil {
		if out != nil {
			out.Close()
		}
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
		return "", err
	}

	return finalPath, nil
}

// streamImageSegment copies one IMAGE-sourced plan entry's bytes from the
// image file into out, in chunkSize-sized reads via a CachingReader.
func streamImageSegment(out io.Writer, imagePath string, seg reconplan.Entry, chunkSize int) (uint64, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return 0, fmt.Errorf("scriptpkg: opening image file: %w", err)
	}
	defer f.Close()

	section := io.NewSectionReader(f, int64(seg.SrcStart), int64(seg.Len()))
	cr, err := readahead.NewCachingReaderFromReader(io.NopCloser(section), chunkSize)
	if err != nil {
		return 0, fmt.Errorf("scriptpkg: wrapping image segment reader: %w", err)
	}
	defer cr.Close()

	n, err := io.Copy(out, cr)
	if err != nil {
		return 0, fmt.Errorf("scriptpkg: streaming image segment [%d,%d): %w", seg.SrcStart, seg.SrcEnd, err)
	}
	return uint64(n), nil
}
