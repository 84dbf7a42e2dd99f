package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageImage is one rendered page.
type PageImage struct {
	PageIndex int // zero-based
	Image     image.Image
	Width     int
	Height    int
	ErrorCode int
	ErrorMsg  string
	RenderMS  float64
}

// Failed reports whether this page could not be rendered.
func (p *PageImage) Failed() bool { return p.ErrorCode != CodeSuccess }

// RenderResult is the outcome for the whole document.
type RenderResult struct {
	ErrorCode     int
	ErrorMsg      string
	TotalPages    int
	RenderedPages int
	FailedPages   int
	Pages         []PageImage
}

// OK reports document-level success; individual pages may still have failed.
func (r *RenderResult) OK() bool { return r.ErrorCode == CodeSuccess }

// RenderFromBytes parses the document once and renders up to
// cfg.MaxPages pages in parallel under a counting semaphore of width
// cfg.MaxConcurrentRenders. Pages beyond the limit are neither rendered
// nor referenced in the result. A page whose rendered pixel count would
// exceed cfg.MaxPixelsPerPage fails with CodePageSizeError.
func RenderFromBytes(data []byte, cfg RenderConfig) *RenderResult {
	if code, err := cfg.Validate(); code != CodeSuccess {
		return &RenderResult{ErrorCode: code, ErrorMsg: err.Error()}
	}
	if len(data) == 0 {
		return &RenderResult{ErrorCode: CodeFileError, ErrorMsg: ErrorMessage(CodeFileError)}
	}

	tmp, err := os.CreateTemp("", "dxocr-pdf-*.pdf")
	if err != nil {
		return &RenderResult{ErrorCode: CodeFileError, ErrorMsg: err.Error()}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &RenderResult{ErrorCode: CodeFileError, ErrorMsg: err.Error()}
	}
	_ = tmp.Close()

	pageCount, code, err := pageCount(tmpName)
	if code != CodeSuccess {
		return &RenderResult{ErrorCode: code, ErrorMsg: err.Error()}
	}

	result := &RenderResult{TotalPages: pageCount}
	renderCount := pageCount
	if renderCount > cfg.MaxPages {
		renderCount = cfg.MaxPages
	}

	dims, err := api.PageDimsFile(tmpName)
	if err != nil || len(dims) < renderCount {
		return &RenderResult{
			ErrorCode:  CodeFormatError,
			ErrorMsg:   ErrorMessage(CodeFormatError),
			TotalPages: pageCount,
		}
	}

	result.Pages = make([]PageImage, renderCount)
	sem := make(chan struct{}, cfg.MaxConcurrentRenders)
	var wg sync.WaitGroup
	for i := 0; i < renderCount; i++ {
		wg.Add(1)
		go func(pageIdx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result.Pages[pageIdx] = renderPage(tmpName, pageIdx, dims[pageIdx].Width, dims[pageIdx].Height, cfg)
		}(i)
	}
	wg.Wait()

	for i := range result.Pages {
		if result.Pages[i].Failed() {
			result.FailedPages++
		} else {
			result.RenderedPages++
		}
	}
	return result
}

// pageCount validates the document and returns its page count, mapping
// parse failures to the format/password error codes.
func pageCount(filename string) (int, int, error) {
	n, err := api.PageCountFile(filename)
	if err != nil {
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "encrypted") || strings.Contains(msg, "password") ||
			strings.Contains(msg, "decrypt"):
			return 0, CodePasswordRequired, errors.New(ErrorMessage(CodePasswordRequired))
		case strings.Contains(msg, "permission") || strings.Contains(msg, "security"):
			return 0, CodeSecurityError, errors.New(ErrorMessage(CodeSecurityError))
		default:
			return 0, CodeFormatError, fmt.Errorf("%s: %w", ErrorMessage(CodeFormatError), err)
		}
	}
	if n <= 0 {
		return 0, CodePageError, errors.New(ErrorMessage(CodePageError))
	}
	return n, CodeSuccess, nil
}

// renderPage extracts the page's image content and scales it to the
// target DPI. widthPts/heightPts are the page dimensions in PDF points.
func renderPage(filename string, pageIdx int, widthPts, heightPts float64, cfg RenderConfig) PageImage {
	start := time.Now()
	page := PageImage{PageIndex: pageIdx}

	scale := float64(cfg.DPI) / PointsPerInch
	targetW := int(math.Round(widthPts * scale))
	targetH := int(math.Round(heightPts * scale))
	if targetW < 1 || targetH < 1 {
		page.ErrorCode = CodePageSizeError
		page.ErrorMsg = ErrorMessage(CodePageSizeError)
		return page
	}
	if targetW*targetH > cfg.MaxPixelsPerPage {
		page.ErrorCode = CodePageSizeError
		page.ErrorMsg = fmt.Sprintf("page %d would render %d pixels, limit is %d",
			pageIdx+1, targetW*targetH, cfg.MaxPixelsPerPage)
		return page
	}

	img, err := extractPageImage(filename, pageIdx+1)
	if err != nil {
		page.ErrorCode = CodePageError
		page.ErrorMsg = err.Error()
		return page
	}

	if img.Bounds().Dx() != targetW || img.Bounds().Dy() != targetH {
		img = imaging.Resize(img, targetW, targetH, imaging.Lanczos)
	}
	page.Image = img
	page.Width = targetW
	page.Height = targetH
	page.RenderMS = float64(time.Since(start).Microseconds()) / 1000
	return page
}

// extractPageImage pulls the raster content of one page (1-based).
func extractPageImage(filename string, pageNum int) (image.Image, error) {
	tempDir, err := os.MkdirTemp("", "dxocr-page-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	if err := api.ExtractImagesFile(filename, tempDir, []string{strconv.Itoa(pageNum)}, nil); err != nil {
		return nil, fmt.Errorf("extract page %d: %w", pageNum, err)
	}

	var img image.Image
	err = filepath.Walk(tempDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil || info.IsDir() || img != nil {
			return walkErr
		}
		data, readErr := os.ReadFile(path) //nolint:gosec // G304: temp dir we created
		if readErr != nil {
			return nil
		}
		if decoded, _, decodeErr := image.Decode(bytes.NewReader(data)); decodeErr == nil {
			img = decoded
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("page %d has no raster content", pageNum)
	}
	return img, nil
}
