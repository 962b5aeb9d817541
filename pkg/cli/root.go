package cli

import (
	"github.com/spf13/cobra"

	internalcli "github.com/SmitUplenchwar2687/gatekeeper/internal/cli"
)

// NewRootCmd creates the public gatekeeper root command for embedding.
func NewRootCmd() *cobra.Command {
	return internalcli.NewRootCmd()
}
