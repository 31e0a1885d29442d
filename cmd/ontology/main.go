package main

import (
	"errors"
	"os"

	"github.com/mattbaird/ontology-sub000/internal/commands"
	"github.com/mattbaird/ontology-sub000/internal/output"
)

func main() {
	rootCmd := commands.RootCmd()
	commands.Register(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, commands.ErrReported) {
			output.Error(err.Error())
		}
		os.Exit(1)
	}
}
