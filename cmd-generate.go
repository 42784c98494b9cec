package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/sherwoodwang/go-image-reconstructor/blockhash"
	"github.com/sherwoodwang/go-image-reconstructor/extentmatch"
	"github.com/sherwoodwang/go-image-reconstructor/filelist"
	"github.com/sherwoodwang/go-image-reconstructor/imageindex"
	"github.com/sherwoodwang/go-image-reconstructor/imageinfo"
	"github.com/sherwoodwang/go-image-reconstructor/readahead"
	"github.com/sherwoodwang/go-image-reconstructor/reconplan"
	"github.com/sherwoodwang/go-image-reconstructor/scriptpkg"
)

const (
	defaultBlockSize      = 4096
	defaultMinExtentSize  = 1 << 20  // 1 MiB
	defaultWriteChunkSize = 16 << 20 // 16 MiB
)

func newCmd_Generate() *cli.Command {
	return &cli.Command{
		Name:        "generate",
		Usage:       "Generate a self-extracting reconstruction script for an image.",
		Description: "Generates a self-extracting shell script that reproduces IMAGE from a file list of candidate source files, embedding only the bytes of IMAGE that could not be matched against them.",
		ArgsUsage:   "IMAGE",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "block-size",
				Usage: "block hashing granularity, in bytes",
				Value: defaultBlockSize,
			},
			&cli.Int64Flag{
				Name:  "min-extent-size",
				Usage: "minimum matched extent length, in bytes; must be a multiple of --block-size",
				Value: defaultMinExtentSize,
			},
			&cli.Int64Flag{
				Name:  "write-chunk-size",
				Usage: "chunk size used when streaming embedded image bytes into the artifact",
				Value: defaultWriteChunkSize,
			},
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "file containing the candidate source file list, one path per line (or NUL-separated with --null); defaults to stdin",
			},
			&cli.BoolFlag{
				Name:    "null",
				Aliases: []string{"0"},
				Usage:   "the file list is NUL-separated rather than newline-separated",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output path for the generated script; defaults to stdout",
			},
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "allow writing the generated script to a terminal",
			},
		},
		Action: runGenerate,
	}
}

func runGenerate(c *cli.Context) error {
	klog.V(1).Infof("imgrecon: session %s", GetSessionID())

	imagePath := c.Args().First()
	if imagePath == "" {
		return fmt.Errorf("generate: IMAGE argument is required")
	}

	outputPath := c.String("output")
	if outputPath == "" && !c.Bool("force") && isatty.IsTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("generate: refusing to write the generated script to a terminal; pass --output or --force")
	}

	cfg := extentmatch.Config{
		BlockSize:     c.Int("block-size"),
		MinExtentSize: uint64(c.Int64("min-extent-size")),
	}
	writeChunkSize := int(c.Int64("write-chunk-size"))

	sourcePaths, err := readFileList(c.String("input"), c.Bool("null"))
	if err != nil {
		return err
	}

	imageFile, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("generate: opening image: %w", err)
	}
	defer imageFile.Close()

	imageStat, err := imageFile.Stat()
	if err != nil {
		return fmt.Errorf("generate: stat image: %w", err)
	}
	imageSize := uint64(imageStat.Size())

	hasher, err := blockhash.New(cfg.BlockSize)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	imageHashes, err := hashImageWithProgress(hasher, imagePath, imageSize, "hashing image")
	if err != nil {
		return fmt.Errorf("generate: hashing image: %w", err)
	}

	index := imageindex.New(imageHashes)
	matcher, err := extentmatch.New(cfg, index)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	var matches []extentmatch.RawMatch
	bar := newProgressBar(int64(len(sourcePaths)), "matching source files")
	for _, path := range sourcePaths {
		matches, err = matchOneFile(matcher, hasher, path, imageFile, matches)
		if err != nil {
			return err
		}
		bar.Add(1)
	}
	bar.Finish()

	plan := reconplan.Build(matches, imageSize)
	klog.V(1).Infof("generate: plan covers %s across %d entries (%d from image)",
		humanize.IBytes(plan.TotalLen()), len(plan), len(plan.ImageSegments()))

	info, err := imageinfo.Collect(c.Context, imagePath)
	if err != nil {
		return fmt.Errorf("generate: collecting image metadata: %w", err)
	}

	return writeArtifact(c.Context, plan, info, imagePath, outputPath, writeChunkSize)
}

// matchOneFile hashes path through a page-aligned CachingReader, then
// reopens it for the random-access byte verification MatchFile performs
// against the image.
func matchOneFile(matcher *extentmatch.Matcher, hasher *blockhash.Hasher, path string, imageFile *os.File, out []extentmatch.RawMatch) ([]extentmatch.RawMatch, error) {
	cr, err := readahead.NewCachingReader(path, 0)
	if err != nil {
		return out, fmt.Errorf("generate: opening source file %s: %w", path, err)
	}
	hashes, err := hasher.HashStream(cr)
	cr.Close()
	if err != nil {
		return out, fmt.Errorf("generate: hashing source file %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("generate: reopening source file %s: %w", path, err)
	}
	defer f.Close()

	out, err = matcher.MatchFile(path, hashes, f, imageFile, out)
	if err != nil {
		return out, fmt.Errorf("generate: matching source file %s: %w", path, err)
	}
	return out, nil
}

// readFileList reads and resolves the candidate source paths from either
// the named input file or stdin, rejecting any path that escapes the
// current working directory tree.
func readFileList(inputPath string, nulSeparated bool) ([]string, error) {
	var r io.Reader
	if inputPath == "" || inputPath == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(inputPath)
		if err != nil {
			return nil, fmt.Errorf("generate: opening file list %s: %w", inputPath, err)
		}
		defer f.Close()
		r = f
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("generate: determining working directory: %w", err)
	}

	var resolved []string
	var readErr error
	filelist.Read(r, nulSeparated)(func(raw string, err error) bool {
		if err != nil {
			readErr = err
			return false
		}
		path, resolveErr := filelist.Resolve(cwd, raw)
		if resolveErr != nil {
			readErr = resolveErr
			return false
		}
		resolved = append(resolved, path)
		return true
	})
	if readErr != nil {
		return nil, fmt.Errorf("generate: reading file list: %w", readErr)
	}
	return resolved, nil
}

// hashImageWithProgress hashes imagePath through a page-aligned
// CachingReader, driving a terminal-gated progress bar sized to size bytes
// as it reads.
func hashImageWithProgress(hasher *blockhash.Hasher, imagePath string, size uint64, description string) (blockhash.Sequence, error) {
	cr, err := readahead.NewCachingReader(imagePath, 0)
	if err != nil {
		return nil, err
	}
	defer cr.Close()

	bar := newBytesProgressBar(int64(size), description)
	return hasher.HashStream(io.TeeReader(cr, bar))
}

func newProgressBar(total int64, description string) *progressbar.ProgressBar {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return progressbar.DefaultSilent(total, description)
	}
	return progressbar.Default(total, description)
}

func newBytesProgressBar(total int64, description string) *progressbar.ProgressBar {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return progressbar.DefaultBytesSilent(total, description)
	}
	return progressbar.DefaultBytes(total, description)
}

// writeArtifact renders the final script via scriptpkg and places it either
// at outputPath or, when empty, streams it to stdout.
func writeArtifact(ctx context.Context, plan reconplan.Plan, info imageinfo.Info, imagePath, outputPath string, writeChunkSize int) error {
	opts := scriptpkg.Options{
		Plan:           plan,
		Info:           info,
		ImagePath:      imagePath,
		WriteChunkSize: writeChunkSize,
	}

	if outputPath != "" {
		dir := filepath.Dir(outputPath)
		name := filepath.Base(outputPath)
		finalPath, err := scriptpkg.Write(ctx, opts, dir, name)
		if err != nil {
			return err
		}
		klog.Infof("generate: wrote %s", finalPath)
		return nil
	}

	scratchDir, err := os.MkdirTemp("", "imgrecon-")
	if err != nil {
		return fmt.Errorf("generate: creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	finalPath, err := scriptpkg.Write(ctx, opts, scratchDir, "reconstruct.sh")
	if err != nil {
		return err
	}

	f, err := os.Open(finalPath)
	if err != nil {
		return fmt.Errorf("generate: opening rendered script: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(os.Stdout, f); err != nil {
		return fmt.Errorf("generate: writing script to stdout: %w", err)
	}
	return nil
}
