// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/anvil/internal/adapters/logger"
	_ "go.trai.ch/anvil/internal/adapters/telemetry"
	// Register app nodes.
	_ "go.trai.ch/anvil/internal/app"
)
