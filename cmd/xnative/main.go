package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/xuperchain/xnative/cmd/xnative/cmd"
	"github.com/xuperchain/xnative/lib/metrics"
)

func main() {
	rootCmd, err := NewNativeCommand()
	if err != nil {
		log.Fatalf("init command failed.err:%v", err)
	}

	metrics.RegisterMetrics()
	if err = rootCmd.Execute(); err != nil {
		log.Fatalf("xnative failed.err:%v", err)
	}
}

func NewNativeCommand() (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:           "xnative <command> [arguments]",
		Short:         "Xnative inspects and runs the native contract registry.",
		Long:          "Xnative inspects and runs the native contract registry against an in-memory state.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       "xnative list --conf conf/native.yaml",
	}

	rootCmd.AddCommand(cmd.GetVersionCmd().GetCmd())
	rootCmd.AddCommand(cmd.GetListCmd().GetCmd())
	rootCmd.AddCommand(cmd.GetCallCmd().GetCmd())
	rootCmd.AddCommand(cmd.GetBenchCmd().GetCmd())
	return rootCmd, nil
}
