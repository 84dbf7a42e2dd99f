package cmd

import (
	"log/slog"
	"os"

	"github.com/deepx-ocr/dxocr/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "dxocr",
	Short: "Hardware-accelerated OCR service and batch tool",
	Long: `dxocr runs a chain of specialized neural models (document
orientation, unwarping, text detection, text line orientation, text
recognition) over images and PDF pages, returning localized text with
confidence scores.

It can process files directly (image, pdf, bench) or serve a shared
asynchronous pipeline to many concurrent HTTP clients (serve).`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("models-dir", "", "Directory containing model files")
	pf.String("family", "server", "Model family to load (server|mobile)")
	pf.String("log-level", "info", "Log level (debug|info|warn|error)")
	pf.BoolP("verbose", "v", false, "Enable verbose output")

	_ = viper.BindPFlag("models_dir", pf.Lookup("models-dir"))
	_ = viper.BindPFlag("family", pf.Lookup("family"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
}

func setupLogging() {
	level := slog.LevelInfo
	switch viper.GetString("log_level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
