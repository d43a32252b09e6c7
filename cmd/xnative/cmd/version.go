package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// set by build flags
var (
	buildVersion = "0.0.0"
	commitHash   = "default"
	buildDate    = "default"
)

type versionCmd struct {
	BaseCmd
}

func GetVersionCmd() *versionCmd {
	versionCmdIns := new(versionCmd)

	versionCmdIns.cmd = &cobra.Command{
		Use:     "version",
		Short:   "View process version information.",
		Example: "xnative version",
		Run: func(cmd *cobra.Command, args []string) {
			Version(cmd.OutOrStdout())
		},
	}

	return versionCmdIns
}

func Version(w io.Writer) {
	fmt.Fprintf(w, "%s-%s %s\n", buildVersion, commitHash, buildDate)
}
