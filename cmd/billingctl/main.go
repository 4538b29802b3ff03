package main

import (
	"fmt"
	"os"

	"github.com/juan49ers-spec/Repaart-sub012/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log := logger.WithComponent("billingctl")
		log.Error().Err(err).Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
