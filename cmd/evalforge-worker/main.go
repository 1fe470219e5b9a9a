package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "evalforge-worker",
		Usage:                 "Run analysis agents fed from the task queue",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
			NewDispatchCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
