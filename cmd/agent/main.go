package main

import (
	"errors"
	"fmt"
	"os"

	"fleetwatch/agent"
)

func main() {
	if err := agent.Run(os.Args[1:]); err != nil {
		if errors.Is(err, agent.ErrUsage) {
			fmt.Fprintln(os.Stderr, agent.Usage)
		} else {
			fmt.Fprintf(os.Stderr, "fleetwatch-agent: %v\n", err)
		}
		os.Exit(1)
	}
}
