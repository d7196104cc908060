package main

import (
	"flag"
	"fmt"
	"os"

	"assetbank/internal/config"
	"assetbank/internal/constants"
	"assetbank/internal/logger"
	"assetbank/internal/server"
	"assetbank/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (default: ~/"+constants.ConfigDir+"/"+constants.ConfigFile+")")
	flag.Parse()
	if *showVersion {
		fmt.Printf("%s %s\n", constants.AppDisplayName, version.Version)
		os.Exit(0)
	}

	log := logger.NewLogger(constants.DefaultLogLevel)
	log.Info("%s version %s starting", constants.AppDisplayName, version.Version)

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadConfigFrom(*configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		log.Error("Failed to load config: %v", err)
		os.Exit(1)
	}

	if cfg.LogLevel != constants.DefaultLogLevel || cfg.LogDir != "" {
		log.Close()
		log = logger.NewLoggerWithOptions(logger.Options{
			Level:         cfg.LogLevel,
			LogDir:        cfg.LogDir,
			WriteToStdout: true,
		})
	}
	defer log.Close()

	app, err := server.NewApp(cfg, log)
	if err != nil {
		log.Error("Failed to initialize: %v", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := server.NewServer(app, addr)

	log.Info("Starting %s on port %d", constants.AppDisplayName, cfg.Port)
	if err := srv.Start(); err != nil {
		log.Error("Server error: %v", err)
		os.Exit(1)
	}
}
