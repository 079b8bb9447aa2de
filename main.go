package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/stocksync/internal/commands"
)

func main() {
	err := commands.Execute()
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	if errors.Is(err, commands.ErrPartialSync) {
		os.Exit(2)
	}
	os.Exit(1)
}
