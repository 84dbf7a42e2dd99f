package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deepx-ocr/dxocr/internal/pdf"
	"github.com/deepx-ocr/dxocr/internal/pipeline"
	"github.com/spf13/cobra"
)

var pdfCmd = &cobra.Command{
	Use:   "pdf [file.pdf]",
	Short: "Run OCR on the pages of a PDF document",
	Args:  cobra.ExactArgs(1),
	RunE:  runPDF,
}

func init() {
	f := pdfCmd.Flags()
	f.String("output-dir", "output", "Directory for JSON results")
	f.Bool("vis", false, "Save visualization overlays")
	f.Bool("doc-orientation", false, "Enable document orientation correction")
	f.Bool("textline-orientation", false, "Enable per-line orientation correction")
	f.Bool("uvdoc", false, "Enable document unwarping")
	f.Float32("det-thresh", 0.3, "Detection binary threshold")
	f.Float32("det-box-thresh", 0.6, "Detection box threshold")
	f.Float64("det-unclip-ratio", 1.5, "Detection box expansion ratio")
	f.Float64("rec-score-thresh", 0.0, "Recognition score threshold")
	f.Int("dpi", pdf.DefaultDPI, "Render DPI (72-300)")
	f.Int("max-pages", pdf.DefaultMaxPages, "Maximum pages to process (1-100)")
	f.Int("concurrent-renders", pdf.DefaultMaxConcurrent, "Parallel page renders (1-16)")
	rootCmd.AddCommand(pdfCmd)
}

func runPDF(cmd *cobra.Command, args []string) error {
	pipe, taskCfg, err := buildPipelineFromFlags(cmd)
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}
	defer func() { _ = pipe.Close() }()

	dpi, _ := cmd.Flags().GetInt("dpi")
	maxPages, _ := cmd.Flags().GetInt("max-pages")
	concurrent, _ := cmd.Flags().GetInt("concurrent-renders")
	renderCfg := pdf.RenderConfig{
		DPI:                  dpi,
		MaxPages:             maxPages,
		MaxPixelsPerPage:     pdf.DefaultMaxPixelsPerPage,
		MaxConcurrentRenders: concurrent,
	}

	data, err := os.ReadFile(args[0]) //nolint:gosec // G304: user-provided input path is expected
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	render := pdf.RenderFromBytes(data, renderCfg)
	if !render.OK() {
		return fmt.Errorf("render PDF (code %d): %s", render.ErrorCode, render.ErrorMsg)
	}

	outputDir, _ := cmd.Flags().GetString("output-dir")
	saveVis, _ := cmd.Flags().GetBool("vis")
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	ctx := context.Background()
	for i := range render.Pages {
		page := &render.Pages[i]
		if page.Failed() {
			fmt.Fprintf(cmd.ErrOrStderr(), "page %d skipped (code %d): %s\n",
				page.PageIndex+1, page.ErrorCode, page.ErrorMsg)
			continue
		}
		result, err := pipe.Process(ctx, page.Image, taskCfg)
		if err != nil {
			return fmt.Errorf("process page %d: %w", page.PageIndex+1, err)
		}
		jsonPath := filepath.Join(outputDir, fmt.Sprintf("%s_page%d.json", base, page.PageIndex+1))
		if err := result.SaveJSON(jsonPath); err != nil {
			return err
		}
		if saveVis {
			if _, err := pipeline.SaveVisualization(result, outputDir); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "page %d: %d regions -> %s\n",
			page.PageIndex+1, len(result.Entries), jsonPath)
	}
	return nil
}
