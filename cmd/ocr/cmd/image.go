package cmd

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/deepx-ocr/dxocr/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var imageCmd = &cobra.Command{
	Use:   "image [files...]",
	Short: "Run OCR on one or more image files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImage,
}

func init() {
	f := imageCmd.Flags()
	f.String("output-dir", "output", "Directory for JSON results")
	f.Bool("vis", false, "Save visualization overlays")
	f.Bool("doc-orientation", false, "Enable document orientation correction")
	f.Bool("textline-orientation", false, "Enable per-line orientation correction")
	f.Bool("uvdoc", false, "Enable document unwarping")
	f.Float32("det-thresh", 0.3, "Detection binary threshold")
	f.Float32("det-box-thresh", 0.6, "Detection box threshold")
	f.Float64("det-unclip-ratio", 1.5, "Detection box expansion ratio")
	f.Float64("rec-score-thresh", 0.0, "Recognition score threshold")
	rootCmd.AddCommand(imageCmd)
}

func buildPipelineFromFlags(cmd *cobra.Command) (*pipeline.Pipeline, pipeline.TaskConfig, error) {
	docOri, _ := cmd.Flags().GetBool("doc-orientation")
	lineOri, _ := cmd.Flags().GetBool("textline-orientation")
	uvdoc, _ := cmd.Flags().GetBool("uvdoc")

	b := pipeline.NewBuilder().
		WithModelsDir(viper.GetString("models_dir")).
		WithServerModels(viper.GetString("family") != "mobile").
		WithOrientation(docOri).
		WithTextLineOrientation(lineOri).
		WithRectification(uvdoc)

	pipe, err := b.Build()
	if err != nil {
		return nil, pipeline.TaskConfig{}, err
	}

	cfg := pipeline.DefaultTaskConfig()
	cfg.UseDocOrientation = docOri
	cfg.UseTextLineOrientation = lineOri
	cfg.UseUnwarping = uvdoc
	cfg.DetThresh, _ = cmd.Flags().GetFloat32("det-thresh")
	cfg.DetBoxThresh, _ = cmd.Flags().GetFloat32("det-box-thresh")
	cfg.DetUnclipRatio, _ = cmd.Flags().GetFloat64("det-unclip-ratio")
	cfg.RecScoreThresh, _ = cmd.Flags().GetFloat64("rec-score-thresh")
	return pipe, cfg, nil
}

func runImage(cmd *cobra.Command, args []string) error {
	pipe, taskCfg, err := buildPipelineFromFlags(cmd)
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}
	defer func() { _ = pipe.Close() }()

	outputDir, _ := cmd.Flags().GetString("output-dir")
	saveVis, _ := cmd.Flags().GetBool("vis")
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	ctx := context.Background()
	for _, path := range args {
		img, err := loadImageFile(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		result, err := pipe.Process(ctx, img, taskCfg)
		if err != nil {
			return fmt.Errorf("process %s: %w", path, err)
		}

		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		jsonPath := filepath.Join(outputDir, base+".json")
		if err := result.SaveJSON(jsonPath); err != nil {
			return err
		}
		if saveVis {
			if _, err := pipeline.SaveVisualization(result, outputDir); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d regions -> %s\n", path, len(result.Entries), jsonPath)
	}
	return nil
}

func loadImageFile(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // G304: user-provided input path is expected
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	return img, err
}
