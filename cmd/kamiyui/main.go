package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/kamiyui/kamiyui/pkg/assets"
	"github.com/kamiyui/kamiyui/pkg/config"
	"github.com/kamiyui/kamiyui/pkg/flow"
	"github.com/kamiyui/kamiyui/pkg/genimage"
	"github.com/kamiyui/kamiyui/pkg/imaging"
	"github.com/kamiyui/kamiyui/pkg/line"
	"github.com/kamiyui/kamiyui/pkg/logger"
	"github.com/kamiyui/kamiyui/pkg/server"
	"github.com/kamiyui/kamiyui/pkg/session"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.FatalCF("main", "Config load failed", map[string]interface{}{"error": err.Error()})
	}
	if err := cfg.Validate(); err != nil {
		logger.FatalCF("main", "Config invalid", map[string]interface{}{"error": err.Error()})
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.FileEnabled {
		if err := logger.EnableFileLogging(cfg.Logging.FilePath); err != nil {
			logger.WarnCF("main", "File logging unavailable", map[string]interface{}{"error": err.Error()})
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messenger, err := line.NewMessenger(cfg.LINE)
	if err != nil {
		logger.FatalCF("main", "LINE client init failed", map[string]interface{}{"error": err.Error()})
	}

	generator, err := genimage.NewGeminiClient(ctx, cfg.Gemini)
	if err != nil {
		logger.FatalCF("main", "Gemini client init failed", map[string]interface{}{"error": err.Error()})
	}

	store, err := assets.NewStore(cfg.Assets)
	if err != nil {
		logger.FatalCF("main", "Asset store init failed", map[string]interface{}{"error": err.Error()})
	}
	store.StartSweeper(ctx, cfg.Assets.CleanupSchedule)

	machine := flow.NewMachine(flow.Deps{
		Sessions:  session.NewStore(),
		Messenger: messenger,
		Fetcher:   messenger,
		Generator: generator,
		Publisher: store,
		Processor: imaging.NewProcessor(),
	})
	dispatcher := flow.NewDispatcher(machine)

	srv := server.New(cfg.Server, messenger, dispatcher, store.Handler(cfg.Assets.CacheSeconds))

	logger.InfoCF("main", "kamiyui starting", map[string]interface{}{
		"host": cfg.Server.Host, "port": cfg.Server.Port, "model": cfg.Gemini.Model,
	})
	if err := srv.Start(ctx); err != nil {
		logger.FatalCF("main", "Server failed", map[string]interface{}{"error": err.Error()})
	}

	// Drain in-flight events and pipelines before exiting.
	dispatcher.Wait()
	machine.Wait()
	logger.InfoC("main", "kamiyui stopped")
}
