package service

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/ankitkr9911/vendor-processing/config"
	"github.com/ankitkr9911/vendor-processing/pkg/logger"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
)

// PageImage describes one normalized page output
type PageImage struct {
	Path       string `json:"path"`
	Filename   string `json:"filename"`
	PageNumber int    `json:"page_number"`
	Size       int64  `json:"size"`
	Converted  bool   `json:"converted"`
}

// NormalizeResult carries the page descriptors for one input file.
// Fallback is set when conversion failed and the original source was
// kept as the sole descriptor; the upload path never sees an error.
type NormalizeResult struct {
	Pages          []PageImage
	Fallback       bool
	FallbackReason string
}

// PageRenderer rasterizes each page of a paged document
type PageRenderer interface {
	RenderPages(path string, dpi float64) ([]image.Image, error)
}

type fitzRenderer struct{}

func (fitzRenderer) RenderPages(path string, dpi float64) ([]image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer doc.Close()

	pages := make([]image.Image, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		img, err := doc.ImageDPI(n, dpi)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", n+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// Normalizer converts paged documents into per-page PNG images at a
// fixed DPI. Non-paged inputs pass through unchanged.
type Normalizer struct {
	renderer PageRenderer
	dpi      float64
}

// NewNormalizer creates a Normalizer backed by the MuPDF renderer
func NewNormalizer(cfg *config.PDFConfig) *Normalizer {
	return &Normalizer{
		renderer: fitzRenderer{},
		dpi:      float64(cfg.DPI),
	}
}

// NewNormalizerWithRenderer creates a Normalizer with a custom renderer
func NewNormalizerWithRenderer(renderer PageRenderer, dpi int) *Normalizer {
	return &Normalizer{renderer: renderer, dpi: float64(dpi)}
}

// IsPDF reports whether the path has a .pdf extension
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Normalize converts a PDF into page images next to the source and
// deletes the source on success. Single-page output is named
// {base}.png, multi-page {base}_page_{n}.png. Any failure keeps the
// original file as the sole descriptor and tags the result as a
// fallback; it never returns an error.
func (n *Normalizer) Normalize(ctx context.Context, path string) *NormalizeResult {
	if !IsPDF(path) {
		return n.passthrough(ctx, path)
	}

	images, err := n.renderer.RenderPages(path, n.dpi)
	if err != nil || len(images) == 0 {
		reason := "no pages rendered"
		if err != nil {
			reason = err.Error()
		}
		logger.Warn(ctx, "pdf conversion failed, keeping original", "path", path, "reason", reason)
		result := n.passthrough(ctx, path)
		result.Fallback = true
		result.FallbackReason = reason
		return result
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	pages := make([]PageImage, 0, len(images))
	for i, img := range images {
		var outName string
		if len(images) == 1 {
			outName = base + ".png"
		} else {
			outName = fmt.Sprintf("%s_page_%d.png", base, i+1)
		}
		outPath := filepath.Join(dir, outName)

		if err := imaging.Save(img, outPath); err != nil {
			logger.Warn(ctx, "failed to save page image, keeping original",
				"path", path, "page", i+1, "error", err)
			// Remove partial outputs before falling back
			for _, p := range pages {
				os.Remove(p.Path)
			}
			result := n.passthrough(ctx, path)
			result.Fallback = true
			result.FallbackReason = err.Error()
			return result
		}

		size := int64(0)
		if info, err := os.Stat(outPath); err == nil {
			size = info.Size()
		}
		pages = append(pages, PageImage{
			Path:       outPath,
			Filename:   outName,
			PageNumber: i + 1,
			Size:       size,
			Converted:  true,
		})
	}

	if err := os.Remove(path); err != nil {
		logger.Warn(ctx, "failed to remove source pdf after conversion", "path", path, "error", err)
	}

	logger.Info(ctx, "pdf normalized", "path", path, "pages", len(pages), "dpi", n.dpi)
	return &NormalizeResult{Pages: pages}
}

func (n *Normalizer) passthrough(_ context.Context, path string) *NormalizeResult {
	size := int64(0)
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	return &NormalizeResult{
		Pages: []PageImage{{
			Path:     path,
			Filename: filepath.Base(path),
			Size:     size,
		}},
	}
}
