package main

import (
	"fmt"
	"os"

	"github.com/okian/rankd/internal/rankctl"
)

func main() {
	if err := rankctl.NewApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "rankctl:", err)
		os.Exit(1)
	}
}
