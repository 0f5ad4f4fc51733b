// Package pdf pulls the embedded page images out of invoice PDFs so they can go
// through the same image pipeline as direct uploads.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"invoice-extractor/api/internal/imaging"
)

var ErrNoImages = errors.New("pdf contains no extractable images")

// Page is one embedded image re-encoded as PNG.
type Page struct {
	Name    string // <base>_page<N>_img<M>.png
	PageNr  int    // 1-based
	ImageNr int    // 1-based within the page
	PNG     []byte
}

func configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages in the document.
func PageCount(rs io.ReadSeeker) (int, error) {
	n, err := api.PageCount(rs, configuration())
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return n, nil
}

// ExtractImages returns every embedded image of every page, in page order.
// Images whose encoding cannot be decoded (e.g. JPEG 2000) are skipped.
func ExtractImages(ctx context.Context, rs io.ReadSeeker, baseName string) ([]Page, error) {
	type raw struct {
		page, seq int
		data      []byte
	}
	var (
		raws []raw
		seq  int
	)
	digest := func(img model.Image, _ bool, _ int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := io.ReadAll(img)
		if err != nil {
			return fmt.Errorf("read image %s on page %d: %w", img.Name, img.PageNr, err)
		}
		seq++
		raws = append(raws, raw{page: img.PageNr, seq: seq, data: data})
		return nil
	}
	if err := api.ExtractImages(rs, nil, digest, configuration()); err != nil {
		return nil, fmt.Errorf("failed to extract images: %w", err)
	}

	sort.SliceStable(raws, func(i, j int) bool {
		if raws[i].page != raws[j].page {
			return raws[i].page < raws[j].page
		}
		return raws[i].seq < raws[j].seq
	})

	pages := make([]Page, 0, len(raws))
	perPage := map[int]int{}
	for _, r := range raws {
		img, _, err := imaging.Decode(bytes.NewReader(r.data))
		if err != nil {
			slog.Debug("skipping undecodable pdf image", "pdf", baseName, "page", r.page, "error", err)
			continue
		}
		pngData, err := imaging.EncodePNG(img)
		if err != nil {
			return nil, err
		}
		perPage[r.page]++
		n := perPage[r.page]
		pages = append(pages, Page{
			Name:    fmt.Sprintf("%s_page%d_img%d.png", baseName, r.page, n),
			PageNr:  r.page,
			ImageNr: n,
			PNG:     pngData,
		})
	}
	return pages, nil
}

// FirstImage returns the first page image of the PDF as PNG.
func FirstImage(ctx context.Context, data []byte) ([]byte, error) {
	pages, err := ExtractImages(ctx, bytes.NewReader(data), "upload")
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, ErrNoImages
	}
	return pages[0].PNG, nil
}

// ConvertDir writes the page images of every PDF in inDir into outDir.
// A PDF that fails is logged and skipped so the rest of the folder still converts.
func ConvertDir(ctx context.Context, inDir, outDir string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(inDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}
		path := filepath.Join(inDir, entry.Name())
		paths, pages, err := convertFile(ctx, path, outDir)
		if err != nil {
			logger.Error("pdf conversion failed", "pdf", path, "err", err)
			continue
		}
		logger.Info("pdf converted", "pdf", path, "pages", pages, "images", len(paths))
		written = append(written, paths...)
	}
	return written, nil
}

func convertFile(ctx context.Context, path, outDir string) ([]string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	n, err := PageCount(f)
	if err != nil {
		return nil, 0, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, n, err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	pages, err := ExtractImages(ctx, f, base)
	if err != nil {
		return nil, n, err
	}
	paths := make([]string, 0, len(pages))
	for _, p := range pages {
		dst := filepath.Join(outDir, p.Name)
		if err := os.WriteFile(dst, p.PNG, 0o644); err != nil {
			return paths, n, fmt.Errorf("failed to write page image: %w", err)
		}
		paths = append(paths, dst)
	}
	return paths, n, nil
}
