package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"portalpilot-go/domain/script"
)

func newExportCmd(e *env) *cobra.Command {
	var (
		kind   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <target>",
		Short: "Write a saved script to YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := script.ParseKind(kind)
			if err != nil {
				return err
			}

			cfg, logger, closeLog, err := e.loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := cmd.Context()
			st, err := openStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close(context.Background())

			sc, err := st.targets.GetScript(ctx, args[0], k)
			if err != nil {
				return err
			}
			data, err := script.Marshal(sc)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d steps to %s\n", len(sc.Steps), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", string(script.KindLogin), "Script kind: login or extraction")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}
