package main

import (
	"flag"

	"hadiscover/internal/config"
	"hadiscover/internal/database"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	configPath := flag.String("config", "", "config file (default is ./config.yml)")
	flag.Parse()

	if *configPath != "" {
		viper.SetConfigFile(*configPath)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	config.BindEnv()
	_ = viper.ReadInConfig()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log, err := config.InitLogger(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}

	db, err := database.Open(cfg.Database, false, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Info("Starting database migration...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Info("Database migration completed")
}
