package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xuperchain/xnative/kernel/native"
	"github.com/xuperchain/xnative/lib/logs"
)

type ListCmd struct {
	BaseCmd
}

func GetListCmd() *ListCmd {
	listCmdIns := new(ListCmd)

	var (
		confPath string
		features []string
	)

	listCmdIns.cmd = &cobra.Command{
		Use:     "list",
		Short:   "List the native contracts and whether the config enables them.",
		Example: "xnative list --conf conf/native.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return List(cmd.OutOrStdout(), confPath, features)
		},
	}

	listCmdIns.cmd.Flags().StringVarP(&confPath, "conf", "c", "", "native contract config file path")
	listCmdIns.cmd.Flags().StringSliceVar(&features, "features", nil, "extra features to enable")

	return listCmdIns
}

// List prints every known native contract ordered by address.
func List(w io.Writer, confPath string, features []string) error {
	env, err := newNativeEnv(confPath, features, logs.NewDiscardLogger())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tNAME\tFEATURE\tREGISTERED")
	for _, desc := range native.Descriptors() {
		feature := desc.Feature
		if feature == "" {
			feature = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", desc.Address.Hex(), desc.Name, feature,
			env.factory.IsNative(desc.Address))
	}
	return tw.Flush()
}
