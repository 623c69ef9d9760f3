package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tatianab/dicetale/internal/tui"
)

func main() {
	ctx := context.Background()

	deps, cleanup, err := tui.Setup(ctx)
	defer cleanup()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		cleanup()
		os.Exit(1)
	}

	if err := tui.Run(deps); err != nil {
		fmt.Printf("Error running TUI: %v\n", err)
		cleanup()
		os.Exit(1)
	}
}
