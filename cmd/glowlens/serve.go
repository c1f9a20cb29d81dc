package main

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/glowlens/internal/app"
	"github.com/ayusman/glowlens/internal/tray"
)

const shutdownTimeout = 5 * time.Second

var serveTray bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web host",
	Long: `Start the glowlens web host.
It serves the session API, live camera previews and session event streams
for face and hand analysis. With --tray a system tray menu is shown as well.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveTray, "tray", false, "Show a system tray menu")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := app.New(app.Config{Settings: settings, Logger: log})
	if err != nil {
		return err
	}
	defer a.Close()

	webDir := app.FindWebDir(settings.DataDir)
	if webDir != "" {
		log.WithField("dir", webDir).Info("serving static files")
	}
	srv := a.Server(webDir)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(settings.Addr)
		cancel()
	}()

	if serveTray {
		runTray(ctx, cancel, a)
	} else {
		<-ctx.Done()
	}

	log.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	return <-serveErr
}

// runTray blocks in the tray event loop until the user quits or ctx ends.
func runTray(ctx context.Context, cancel context.CancelFunc, a *app.App) {
	url := baseURL(settings.Addr)

	t := tray.New()
	t.OnAnalyze(func(kind string) {
		s, ok := a.Session(kind)
		if !ok {
			return
		}
		if err := s.StartCamera(ctx); err != nil {
			log.WithError(err).WithField("kind", kind).Warn("start camera from tray")
		}
		openBrowser(url + "/#/" + kind)
	})
	t.OnOpen(func() { openBrowser(url) })
	t.OnQuit(cancel)

	stopWatch := t.Watch(a.Sessions())
	defer stopWatch()

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
	cancel()
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.WithError(err).Warn("open browser")
		return
	}
	go cmd.Wait()
}
