package main

import (
	"context"
	"log/slog"
	"os"

	"janitor/internal/app"
)

func main() {
	// Configuration comes from the environment and JANITOR_CONFIG
	application, err := app.New(nil)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		application.Logger.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
