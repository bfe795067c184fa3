// Package output centralizes the CLI's --json/--quiet/--verbose flag state
// and the envelope format used when --json is set, so every subcommand
// renders consistently instead of hand-rolling its own output switch.
package output

import (
	"encoding/json"
	"fmt"
	"io"
)

const (
	ExitSuccess  = 0
	ExitError    = 1
	ExitNotFound = 4
)

var (
	flagJSON    bool
	flagQuiet   bool
	flagVerbose bool
)

// SetFlags is called by the root command's PersistentPreRun to propagate
// flag values to every subcommand without threading them through RunE.
func SetFlags(jsonMode, quiet, verbose bool) {
	flagJSON = jsonMode
	flagQuiet = quiet
	flagVerbose = verbose
}

func IsJSON() bool    { return flagJSON }
func IsQuiet() bool    { return flagQuiet }
func IsVerbose() bool { return flagVerbose }

// PrintJSON marshals v as indented JSON and writes it to w.
func PrintJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// PrintError writes a JSON error envelope to w.
func PrintError(w io.Writer, code string, message string) error {
	return PrintJSON(w, map[string]string{
		"error":   code,
		"message": message,
	})
}
