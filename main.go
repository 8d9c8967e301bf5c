package main

import (
	"embed"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/wailsapp/wails/v3/pkg/application"
	"github.com/wailsapp/wails/v3/pkg/events"

	"go.aimuz.me/saathi/internal/app"
)

//go:embed all:frontend/dist
var assets embed.FS

//go:embed build/tray.png
var trayIconBytes []byte

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel(os.Getenv("SAATHI_LOG_LEVEL")),
		TimeFormat: time.TimeOnly,
	})))
	slog.Info("starting app", "version", version, "commit", commit, "date", date)

	svc := app.New(version)

	wapp := application.New(application.Options{
		Name:        "Saathi",
		Description: "Multilingual financial literacy voice assistant",
		Services: []application.Service{
			application.NewService(svc),
		},
		Assets: application.AssetOptions{
			Handler: application.BundledAssetFileServer(assets),
		},
		Mac: application.MacOptions{
			// Keep running in the tray after the window closes.
			ApplicationShouldTerminateAfterLastWindowClosed: false,
		},
	})

	mainWindow := wapp.Window.NewWithOptions(application.WebviewWindowOptions{
		Title:  "Saathi",
		Width:  480,
		Height: 720,
		URL:    "/",
		Mac: application.MacWindow{
			TitleBar:                application.MacTitleBarHiddenInsetUnified,
			InvisibleTitleBarHeight: 38,
		},
		DevToolsEnabled: version == "dev",
	})

	// Hide instead of destroy so the tray can reopen it.
	mainWindow.RegisterHook(events.Common.WindowClosing, func(e *application.WindowEvent) {
		e.Cancel()
		mainWindow.Hide()
	})

	svc.Init(wapp, mainWindow)

	tray := wapp.SystemTray.New()
	tray.SetIcon(trayIconBytes)

	menu := wapp.NewMenu()
	menu.Add("Show Window").OnClick(func(*application.Context) {
		svc.ShowWindow()
	})
	menu.Add("Voice Chat").
		SetAccelerator("CmdOrCtrl+Shift+Space").
		OnClick(func(*application.Context) {
			go svc.ToggleVoiceChat()
		})
	menu.AddSeparator()
	menu.Add("Quit").
		SetAccelerator("CmdOrCtrl+Q").
		OnClick(func(*application.Context) {
			svc.Shutdown()
			wapp.Quit()
		})
	tray.SetMenu(menu)

	if err := wapp.Run(); err != nil {
		slog.Error("run app", "error", err)
	}
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
