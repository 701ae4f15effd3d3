package main

import (
	"context"
	"fmt"
	"os"

	"github.com/MrSnakeDoc/breachwatch/internal/cli"
	"github.com/MrSnakeDoc/breachwatch/internal/version"
)

func main() {
	if err := cli.NewRoot(version.String()).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ breachwatch: %v\n", err)
		os.Exit(1)
	}
}
