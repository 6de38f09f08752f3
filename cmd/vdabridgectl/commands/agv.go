package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func agvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agv",
		Short: "Inspect bridged AGVs",
	}

	cmd.AddCommand(agvListCmd())
	cmd.AddCommand(agvShowCmd())

	return cmd
}

// --- agv list ---

func agvListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all bridged AGVs",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			agvs, err := api.listAGVs(context.Background())
			if err != nil {
				return fmt.Errorf("list AGVs: %w", err)
			}

			out, err := formatAGVs(agvs, outputFormat)
			if err != nil {
				return fmt.Errorf("format AGVs: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- agv show ---

func agvShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <serial>",
		Short: "Show details of one bridged AGV",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			vs, err := api.getAGV(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("get AGV: %w", err)
			}

			out, err := formatAGV(vs, outputFormat)
			if err != nil {
				return fmt.Errorf("format AGV: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}
