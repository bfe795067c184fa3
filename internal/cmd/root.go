package cmd

import (
	"fmt"
	"os"

	"github.com/friscy/rve/internal/config"
	"github.com/friscy/rve/internal/output"
	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	jsonFlag    bool
	verboseFlag bool
	quietFlag   bool
	ConfigDir   string
)

func NewRootCmd() *cobra.Command {
	cmd := newRootCmd()
	addRunCommand(cmd)
	addInspectCommand(cmd)
	addConfigCommands(cmd)
	addVersionCommand(cmd)
	return cmd
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rve",
		Short:         "RISC-V 64 user-space Linux emulator",
		Long:          "rve — boots unmodified RISC-V 64 Linux binaries from a tar rootfs against an emulated Linux syscall surface.",
		Version:       fmt.Sprintf("rve v%s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verboseFlag && quietFlag {
				return fmt.Errorf("--verbose and --quiet are mutually exclusive")
			}
			if jsonFlag {
				quietFlag = true
			}
			output.SetFlags(jsonFlag, quietFlag, verboseFlag)
			return nil
		},
	}

	rootCmd.SetVersionTemplate("{{.Version}}\n")

	pflags := rootCmd.PersistentFlags()
	pflags.BoolVarP(&jsonFlag, "json", "j", false, "Output as JSON")
	pflags.BoolVarP(&verboseFlag, "verbose", "v", false, "Extra detail to stderr")
	pflags.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	pflags.StringVar(&ConfigDir, "config-dir", "", "Override config directory (default: ~/.rve)")

	if v := os.Getenv("RVE_HOME"); v != "" && ConfigDir == "" {
		ConfigDir = v
	}
	if os.Getenv("RVE_JSON") == "1" {
		jsonFlag = true
	}

	return rootCmd
}

func Execute() error {
	cmd := NewRootCmd()
	return cmd.Execute()
}
