package cmd

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/deepx-ocr/dxocr/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var benchCmd = &cobra.Command{
	Use:   "bench [runs-per-image] [server|mobile] [uvdoc|0]",
	Short: "Benchmark the async pipeline over a directory of images",
	Long: `Push every image in --images-dir through the asynchronous pipeline
scheduler the given number of times and report throughput.

Positional arguments:
  runs-per-image  repetitions per image (default 3)
  server|mobile   model family (default server)
  uvdoc|0         enable or disable document unwarping (default 0)`,
	Args: cobra.MaximumNArgs(3),
	RunE: runBench,
}

func init() {
	benchCmd.Flags().String("images-dir", "test_images", "Directory of benchmark images")
	rootCmd.AddCommand(benchCmd)
}

func parseBenchArgs(args []string) (runs int, family string, uvdoc bool, err error) {
	runs, family, uvdoc = 3, "server", false
	if len(args) >= 1 {
		runs, err = strconv.Atoi(args[0])
		if err != nil || runs < 1 {
			return 0, "", false, fmt.Errorf("runs-per-image must be a positive integer, got %q", args[0])
		}
	}
	if len(args) >= 2 {
		family = args[1]
		if family != "server" && family != "mobile" {
			return 0, "", false, fmt.Errorf("model family must be 'server' or 'mobile', got %q", family)
		}
	}
	if len(args) >= 3 {
		switch args[2] {
		case "uvdoc":
			uvdoc = true
		case "0":
			uvdoc = false
		default:
			return 0, "", false, fmt.Errorf("third argument must be 'uvdoc' or '0', got %q", args[2])
		}
	}
	return runs, family, uvdoc, nil
}

func listBenchImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read images dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".bmp":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func runBench(cmd *cobra.Command, args []string) error {
	runs, family, uvdoc, err := parseBenchArgs(args)
	if err != nil {
		return err
	}

	imagesDir, _ := cmd.Flags().GetString("images-dir")
	files, err := listBenchImages(imagesDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", imagesDir)
	}

	pipe, err := pipeline.NewBuilder().
		WithModelsDir(viper.GetString("models_dir")).
		WithServerModels(family == "server").
		WithTextLineOrientation(true).
		WithRectification(uvdoc).
		Build()
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}
	defer func() { _ = pipe.Close() }()

	images := make([]benchImage, 0, len(files))
	for _, path := range files {
		img, err := loadImageFile(path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", path, err)
			continue
		}
		images = append(images, benchImage{name: filepath.Base(path), img: img})
	}
	if len(images) == 0 {
		return fmt.Errorf("no readable images in %s", imagesDir)
	}

	sched := pipeline.NewScheduler(pipe, pipe.Config().Scheduler)
	sched.Start()

	taskCfg := pipeline.DefaultTaskConfig()
	taskCfg.UseTextLineOrientation = true
	taskCfg.UseUnwarping = uvdoc

	total := len(images) * runs
	start := time.Now()

	done := make(chan struct{})
	go func() {
		defer close(done)
		received := 0
		for result := range sched.Results() {
			received++
			if result.Failed() {
				fmt.Fprintf(cmd.ErrOrStderr(), "task %d failed in %s: %v\n",
					result.ID, result.FailedStage, result.Err)
			}
			if received == total {
				return
			}
		}
	}()

	var id uint64
	for range runs {
		for i := range images {
			id++
			task := &pipeline.Task{
				ID:          id,
				Image:       images[i].img,
				Config:      taskCfg,
				SubmittedAt: time.Now(),
			}
			for !sched.PushTask(task) {
				time.Sleep(time.Millisecond)
			}
		}
	}

	<-done
	elapsed := time.Since(start)
	sched.Stop()

	submitted, succeeded, failed := sched.Counters()
	fmt.Fprintf(cmd.OutOrStdout(), "========== Async Benchmark ==========\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Images: %d  Runs: %d  Tasks: %d\n", len(images), runs, total)
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted: %d  Succeeded: %d  Failed: %d\n", submitted, succeeded, failed)
	fmt.Fprintf(cmd.OutOrStdout(), "Total: %.2f ms  Avg: %.2f ms/image  FPS: %.2f\n",
		float64(elapsed.Microseconds())/1000,
		float64(elapsed.Microseconds())/1000/float64(total),
		float64(total)/elapsed.Seconds())
	return nil
}

type benchImage struct {
	name string
	img  image.Image
}
