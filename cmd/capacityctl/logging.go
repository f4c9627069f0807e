package main

import (
	"github.com/sirupsen/logrus"
)

// LoggerConfig is a plain, injected configuration record: never a
// package-level global logger.
type LoggerConfig struct {
	UseJSON        bool   `yaml:"use_json"`
	Level          string `yaml:"level"`
	DisableSrcFile bool   `yaml:"disable_src_file"`
}

func defaultLoggerConfig() LoggerConfig {
	return LoggerConfig{Level: "info"}
}

func newLogger(cfg LoggerConfig) (*logrus.Logger, error) {
	log := logrus.New()
	if cfg.UseJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	log.SetReportCaller(!cfg.DisableSrcFile)

	levelName := cfg.Level
	if levelName == "" {
		levelName = "info"
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	return log, nil
}
