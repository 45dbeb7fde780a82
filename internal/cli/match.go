package cli

import (
	"context"
	"fmt"

	"github.com/KafClaw/KafMarket/internal/catalog"
	"github.com/spf13/cobra"
)

var matchDomains []string

var matchCmd = &cobra.Command{
	Use:   "match <capability_type>",
	Short: "List agents eligible to supply a capability type",
	Args:  cobra.ExactArgs(1),
	RunE:  runMatch,
}

func init() {
	matchCmd.Flags().StringSliceVar(&matchDomains, "domain", nil, "Domain filter (repeatable or comma separated)")
}

func runMatch(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	agents, err := catalog.New(st, nil).Match(context.Background(), args[0], matchDomains)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(agents) == 0 {
		fmt.Fprintln(out, "No matching agents.")
		return nil
	}
	for _, a := range agents {
		fmt.Fprintf(out, "%s\t%s\t%s\n", a.ID, a.Type, a.Name)
	}
	return nil
}
