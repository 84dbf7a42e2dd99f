package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deepx-ocr/dxocr/internal/config"
	"github.com/deepx-ocr/dxocr/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the OCR pipeline over HTTP",
	Long: `Start a long-lived HTTP server sharing one asynchronous pipeline
instance across all clients. Endpoints: POST /ocr, GET /health,
GET /metrics, GET /static/vis/<file>, and a websocket at /ws/ocr.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("host", "0.0.0.0", "Listen host")
	f.Int("port", 8080, "Listen port")
	f.String("auth-token", "", "Expected bearer token (empty accepts any token)")
	f.Int("timeout", 10, "Per-request result timeout in seconds")
	f.String("vis-dir", "output/vis", "Visualization output directory")
	f.Bool("insecure-downloads", false, "Disable SSL verification for URL inputs")
	f.Bool("doc-orientation", true, "Load the document orientation model")
	f.Bool("textline-orientation", true, "Load the text line orientation model")
	f.Bool("uvdoc", true, "Load the unwarping model")

	_ = viper.BindPFlag("server.host", f.Lookup("host"))
	_ = viper.BindPFlag("server.port", f.Lookup("port"))
	_ = viper.BindPFlag("server.auth_token", f.Lookup("auth-token"))
	_ = viper.BindPFlag("server.timeout_sec", f.Lookup("timeout"))
	_ = viper.BindPFlag("server.vis_output_dir", f.Lookup("vis-dir"))
	_ = viper.BindPFlag("server.insecure_downloads", f.Lookup("insecure-downloads"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.NewLoader().Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = fileCfg.Server.Host
	srvCfg.Port = fileCfg.Server.Port
	srvCfg.AuthToken = fileCfg.Server.AuthToken
	srvCfg.RequestTimeout = time.Duration(fileCfg.Server.TimeoutSec) * time.Second
	srvCfg.MaxBodyBytes = fileCfg.Server.MaxUploadMB * 1024 * 1024
	srvCfg.VisOutputDir = fileCfg.Server.VisOutputDir
	srvCfg.AllowInsecureDownloads = fileCfg.Server.InsecureDownloads
	srvCfg.Pipeline.ModelsDir = fileCfg.ModelsDir
	srvCfg.Pipeline.Family = fileCfg.Family
	srvCfg.PDFLimits = server.PDFLimits{
		DPI:                  fileCfg.PDF.DPI,
		MaxPages:             fileCfg.PDF.MaxPages,
		MaxPixelsPerPage:     fileCfg.PDF.MaxPixelsPerPage,
		MaxConcurrentRenders: fileCfg.PDF.MaxConcurrentRenders,
	}

	docOri, _ := cmd.Flags().GetBool("doc-orientation")
	lineOri, _ := cmd.Flags().GetBool("textline-orientation")
	uvdoc, _ := cmd.Flags().GetBool("uvdoc")
	srvCfg.Pipeline.Orientation.Enabled = docOri
	srvCfg.Pipeline.TextLineOrientation.Enabled = lineOri
	srvCfg.Pipeline.Rectification.Enabled = uvdoc

	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		fmt.Fprintf(cmd.ErrOrStderr(), "received %s, shutting down\n", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
