package commands_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/anvil/cmd/anvil/commands"
	"go.trai.ch/anvil/internal/adapters/logger"
	"go.trai.ch/anvil/internal/adapters/telemetry"
	"go.trai.ch/anvil/internal/app"
)

func newCLI() *commands.CLI {
	a := app.New(logger.New(), telemetry.NewNoop())
	return commands.New(a)
}

func TestCLI_Version(t *testing.T) {
	cli := newCLI()
	cli.SetArgs([]string{"version"})
	require.NoError(t, cli.Execute(context.Background()))
}

func TestCLI_Help(t *testing.T) {
	cli := newCLI()
	cli.SetArgs([]string{"--help"})
	require.NoError(t, cli.Execute(context.Background()))
}

func TestCLI_BuildWithoutTargetFails(t *testing.T) {
	cli := newCLI()
	cli.SetArgs([]string{"build", "--no-db"})
	err := cli.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no target specified")
}
