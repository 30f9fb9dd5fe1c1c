package main

import (
	"os"
	"strings"

	"recipe-api/config"

	log "github.com/sirupsen/logrus"
)

func init() {
	log.SetOutput(os.Stdout)
	// log level will be set after config processing based on LOG_LEVEL
	// for now set to debug for initial startup logs
	log.SetLevel(log.DebugLevel)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

func main() {
	log.Info("initializing recipe-api")

	cmd, args := splitCommand(os.Args[1:])

	cfg, err := config.LoadAndProcessConfig()
	if err != nil {
		log.Fatal(err)
	}
	setLogLevel(cfg.Settings.LogLevel)

	err = run(cmd, args, cfg, os.Stdout)
	if err != nil {
		log.Fatal(err)
	}
}

// splitCommand returns the sub command and its arguments, "serve" if none is given
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return commandServe, args
	}
	return args[0], args[1:]
}

func setLogLevel(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithError(err).Warnf("Invalid LOG_LEVEL %q, keeping %s", level, log.GetLevel())
		return
	}
	log.SetLevel(lvl)
}
