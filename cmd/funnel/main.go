package main

import (
	"go.uber.org/zap"

	"github.com/Patil2099/posthog/internal/cli"
	"github.com/Patil2099/posthog/internal/logging"
)

func main() {
	defer func() { _ = logging.Sync() }()

	if err := cli.Execute(); err != nil {
		logging.Fatal("command failed", zap.Error(err))
	}
}
