package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func printSuccess(format string, a ...any) {
	green.Printf("✓ "+format+"\n", a...)
}

func printBlocked(format string, a ...any) {
	red.Fprintf(os.Stderr, "✗ "+format+"\n", a...)
}

func printWarning(format string, a ...any) {
	yellow.Fprintf(os.Stderr, "⚠ "+format+"\n", a...)
}

func printField(name, value string) {
	cyan.Printf("%-12s", name+":")
	fmt.Printf(" %s\n", value)
}

func printError(err error) {
	red.Fprintf(os.Stderr, "Error: %v\n", err)
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
