package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for chainlet
var RootCmd = &cobra.Command{
	Use:              "chainlet",
	Short:            "chainlet proof-of-work ledger node",
	TraverseChildren: true,
}
