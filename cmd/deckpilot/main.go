package main

import (
	"os"

	"deckpilot/internal/events"
	"deckpilot/internal/logger"
)

var log = logger.Named("cli")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger.Configure()
	if logFile, _, err := logger.SetupFile(logger.DefaultLogPath); err != nil {
		log.Warnf("failed to initialize log file: %v", err)
	} else {
		defer logFile.Close()
	}
	if wire, closer, _, err := logger.SetupComponentFile("wire", logger.DefaultWireLogPath); err != nil {
		log.Warnf("failed to initialize wire log (%s): %v", logger.DefaultWireLogPath, err)
	} else {
		logger.SetWireLogger(logger.NewWireLogger(wire))
		defer closer.Close()
	}

	cmd := newRootCmd(queueLogs{sq: events.DefaultSQLogPath, eq: events.DefaultEQLogPath})
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		return 1
	}
	return 0
}
