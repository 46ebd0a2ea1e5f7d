package main

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/autotestd/autotestd/internal/config"
	"github.com/autotestd/autotestd/internal/coordinator"
	"github.com/autotestd/autotestd/internal/logging"
	"github.com/autotestd/autotestd/internal/pixbuf"
	"github.com/autotestd/autotestd/internal/vnc"
)

var (
	cfgFile          string
	logFormat        string
	logLevel         string
	enableScreenshot bool
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "autotestd",
	Short: "Multi-console OS test orchestrator",
	Long:  `autotestd drives a target machine over serial, SSH, and VNC consoles for script-driven OS testing.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the coordinator and block until a shutdown signal arrives",
	Run: func(cmd *cobra.Command, args []string) {
		serve()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a TOML config file (optional; SetConfig can reload later)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format: text or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	serveCmd.Flags().BoolVar(&enableScreenshot, "debug-screenshots", false, "take a debug screenshot on every VNC request and needle mismatch")

	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// startScreenshotSink drains the optional screenshot log channel, writing
// PNGs under <logDir>/<span>/<seq>-<unix time>-<name>.png (seq is a
// five-digit counter over all entries) and skipping a frame identical to the
// last one written for the same span; the core itself writes no files.
func startScreenshotSink(logDir string) chan vnc.ScreenshotLog {
	ch := make(chan vnc.ScreenshotLog, 32)
	if logDir == "" {
		go func() {
			for entry := range ch {
				if entry.DoneCh != nil {
					close(entry.DoneCh)
				}
			}
		}()
		return ch
	}

	go func() {
		lastFrames := map[string]*pixbuf.Buffer{}
		traceID := 0
		for entry := range ch {
			traceID++
			dir := logDir
			if entry.Span != "" {
				dir = dir + "/" + entry.Span
				if err := os.MkdirAll(dir, 0o755); err != nil {
					log.Warn("create screenshot span dir failed", "error", err)
				}
			}

			if entry.Screen != nil {
				if last := lastFrames[entry.Span]; last == nil || !last.Equal(entry.Screen) {
					name := fmt.Sprintf("%s/%05d-%d-%s.png", dir, traceID, time.Now().Unix(), entry.Name)
					if f, err := os.Create(name); err != nil {
						log.Warn("create screenshot file failed", "error", err)
					} else {
						if err := png.Encode(f, entry.Screen.ToImage()); err != nil {
							log.Warn("encode screenshot failed", "error", err)
						}
						f.Close()
					}
					lastFrames[entry.Span] = entry.Screen.Clone()
				}
			}

			if entry.DoneCh != nil {
				close(entry.DoneCh)
			}
		}
	}()
	return ch
}

func serve() {
	var output = os.Stdout
	logging.Init(logFormat, logLevel, output)
	log = logging.L("main")

	var cfg *config.Config
	if cfgFile != "" {
		data, err := os.ReadFile(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read config: %v\n", err)
			os.Exit(1)
		}
		cfg, err = config.FromTOML(string(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse config: %v\n", err)
			os.Exit(1)
		}
	}

	var screenshots chan vnc.ScreenshotLog
	if cfg != nil && cfg.LogDir != "" {
		screenshots = startScreenshotSink(cfg.LogDir)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	co, err := coordinator.New(ctx, cfg, enableScreenshot, screenshots)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start coordinator: %v\n", err)
		os.Exit(1)
	}

	log.Info("autotestd started", "config", cfgFile, "debugScreenshots", enableScreenshot)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := co.Stop(stopCtx); err != nil {
		log.Error("coordinator stop error", "error", err)
	}
	if screenshots != nil {
		close(screenshots)
	}
	log.Info("autotestd stopped")
}
