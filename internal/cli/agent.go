package cli

import (
	"context"
	"fmt"

	"github.com/KafClaw/KafMarket/internal/identity"
	"github.com/KafClaw/KafMarket/internal/market"
	"github.com/KafClaw/KafMarket/internal/store"
	"github.com/fatih/color"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

var (
	agentName   string
	agentType   string
	agentDID    string
	agentQRPath string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage marketplace agents",
}

var agentRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an agent and print its API key (shown once)",
	RunE:  runAgentRegister,
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	RunE:  runAgentList,
}

func init() {
	agentRegisterCmd.Flags().StringVar(&agentName, "name", "", "Display name (required)")
	agentRegisterCmd.Flags().StringVar(&agentType, "type", "publisher", "Agent type: publisher, studio or other")
	agentRegisterCmd.Flags().StringVar(&agentDID, "did", "", "Decentralized identifier (generated when empty)")
	agentRegisterCmd.Flags().StringVar(&agentQRPath, "qr", "", "Also write the API key as a QR code PNG to this path")
	_ = agentRegisterCmd.MarkFlagRequired("name")
	agentCmd.AddCommand(agentRegisterCmd)
	agentCmd.AddCommand(agentListCmd)
}

func runAgentRegister(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	gate := identity.NewGate(st, cfg.Auth.APIKeyHeader, cfg.Auth.DIDPrefix, nil)
	reg, err := gate.Register(context.Background(), identity.RegisterInput{
		Name: agentName,
		Type: agentType,
		DID:  agentDID,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Agent:   %s\n", reg.ID)
	fmt.Fprintf(out, "DID:     %s\n", reg.DID)
	fmt.Fprintf(out, "Type:    %s\n", reg.Type)
	fmt.Fprintf(out, "API key: %s\n", reg.APIKey)
	fmt.Fprintln(out, color.YellowString("Store the key now; it cannot be shown again. Send it in the %s header.", cfg.Auth.APIKeyHeader))

	if agentQRPath != "" {
		if err := qrcode.WriteFile(reg.APIKey, qrcode.Medium, 512, agentQRPath); err != nil {
			return fmt.Errorf("write qr code: %w", err)
		}
		fmt.Fprintf(out, "QR code: %s\n", agentQRPath)
	}
	return nil
}

func runAgentList(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var agents []*market.Agent
	if err := st.InTx(cmd.Context(), func(tx *store.Tx) error {
		var err error
		agents, err = tx.ListAgents(cmd.Context())
		return err
	}); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(agents) == 0 {
		fmt.Fprintln(out, "No agents registered.")
		return nil
	}
	for _, a := range agents {
		fmt.Fprintf(out, "%s  %-9s %s  %s\n", a.ID, a.Type, color.CyanString(a.Name), a.DID)
	}
	return nil
}
