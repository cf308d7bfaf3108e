package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	apperrors "github.com/kadirpekel/supervisor/internal/errors"
)

// CLI is the root kong command set. Every subcommand receives *Globals
// for the flags shared across the whole tool.
type CLI struct {
	Globals

	InitState InitStateCmd `cmd:"" name:"init-state" help:"Create the initial state blob for a project."`
	SetGoal   SetGoalCmd   `cmd:"" name:"set-goal" help:"Update a project's goal description."`
	Enqueue   EnqueueCmd   `cmd:"" help:"Add tasks to the project's queue."`
	Start     StartCmd     `cmd:"" help:"Run the control loop until it halts or completes."`
	Halt      HaltCmd      `cmd:"" help:"Pause a running project."`
	Resume    ResumeCmd    `cmd:"" help:"Resume a halted project."`
	Status    StatusCmd    `cmd:"" help:"Show a project's current state."`
	Metrics   MetricsCmd   `cmd:"" help:"Show aggregated analytics for a project."`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("supervisor"),
		kong.Description("Control plane that dispatches queued tasks to AI coding agents and validates the results."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if apperrors.Is(err, apperrors.KindInvariantViolation) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
