package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"portalpilot-go/application/session"
	"portalpilot-go/domain/script"
	"portalpilot-go/domain/target"
	"portalpilot-go/infrastructure/logging"
)

type replayOptions struct {
	targetID    string
	kind        string
	file        string
	url         string
	binding     string
	snapshotDir string
	asJSON      bool
}

func newReplayCmd(e *env) *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a saved script unattended in a headless browser",
		Example: `  portalpilot replay --target viaverde_rpa --kind login
  portalpilot replay --file login.yaml --url https://portal.example.com/login`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.file == "" && opts.targetID == "" {
				return errors.New("either --target or --file is required")
			}

			cfg, logger, closeLog, err := e.loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			if opts.snapshotDir == "" {
				opts.snapshotDir = cfg.Browser.SnapshotDir
			}

			ctx := cmd.Context()
			st, err := openStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close(context.Background())

			sc, err := loadScript(ctx, st.targets, opts)
			if err != nil {
				return err
			}
			startURL, binding, err := replayTarget(ctx, st.targets, sc.TargetID, opts)
			if err != nil {
				return err
			}

			driver := e.newFactory(cfg.DriverConfig())()
			if err := driver.Start(ctx); err != nil {
				return fmt.Errorf("start browser: %w", err)
			}
			defer func() {
				if err := driver.Stop(); err != nil {
					logger.Warn("Failed to stop browser", "error", err)
				}
			}()

			runID := "replay-" + uuid.NewString()[:8]
			runLogger := logger.With("session_id", runID, "target_id", sc.TargetID, "kind", sc.Kind)
			ctrl := session.NewBrowserController(driver, runLogger)
			if err := ctrl.Navigate(ctx, startURL); err != nil {
				return fmt.Errorf("open %s: %w", startURL, err)
			}

			engine := session.NewReplayEngine(session.ReplayConfig{
				SessionID:         runID,
				Controller:        ctrl,
				Vault:             st.vault,
				CredentialBinding: binding,
				Snapshots:         session.NewScreenCapture(opts.snapshotDir, runLogger),
				Logger:            runLogger,
			})
			result := engine.Run(ctx, sc.Steps)

			if err := printReplay(cmd.OutOrStdout(), result, opts.asJSON); err != nil {
				return err
			}
			if result.StepsFailed > 0 {
				return fmt.Errorf("replay incomplete: %s", result.Summary())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.targetID, "target", "t", "", "Target whose saved script to replay")
	cmd.Flags().StringVarP(&opts.kind, "kind", "k", string(script.KindLogin), "Script kind: login or extraction")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Replay a script exported to YAML instead of the saved one")
	cmd.Flags().StringVar(&opts.url, "url", "", "Start URL (defaults to the target's initial URL)")
	cmd.Flags().StringVar(&opts.binding, "binding", "", "Credential binding (defaults to the target's only binding)")
	cmd.Flags().StringVar(&opts.snapshotDir, "snapshot-dir", "", "Directory for failed-step screenshots")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the replay result as JSON")
	return cmd
}

func loadScript(ctx context.Context, targets *target.Service, opts replayOptions) (*script.Script, error) {
	if opts.file != "" {
		sc, err := script.LoadFile(opts.file)
		if err != nil {
			return nil, err
		}
		if opts.targetID != "" {
			sc.TargetID = opts.targetID
		}
		return sc, nil
	}

	kind, err := script.ParseKind(opts.kind)
	if err != nil {
		return nil, err
	}
	return targets.GetScript(ctx, opts.targetID, kind)
}

// replayTarget resolves the start URL and credential binding. Flags win over
// the stored target, which may be absent when replaying a file.
func replayTarget(ctx context.Context, targets *target.Service, targetID string, opts replayOptions) (string, string, error) {
	startURL, binding := opts.url, opts.binding

	tgt, err := targets.GetTarget(ctx, targetID)
	switch {
	case err == nil:
		if startURL == "" {
			startURL = tgt.InitialURL
		}
		if binding == "" {
			binding = tgt.DefaultBinding()
		}
	case errors.Is(err, target.ErrTargetNotFound):
		logging.From(ctx).Debug("Target not configured, relying on flags", "target_id", targetID)
	default:
		return "", "", err
	}

	if startURL == "" {
		return "", "", fmt.Errorf("no start URL for target %q; pass --url", targetID)
	}
	return startURL, binding, nil
}

func printReplay(w io.Writer, result *session.ReplayResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	for _, o := range result.PerStepOutcomes {
		if o.Outcome == session.OutcomeOK {
			fmt.Fprintf(w, "  [ok]     %2d  %s\n", o.Order, o.Description)
			continue
		}
		fmt.Fprintf(w, "  [failed] %2d  %s (%s)\n", o.Order, o.Description, o.Reason)
		if o.SnapshotPath != "" {
			fmt.Fprintf(w, "              snapshot: %s\n", o.SnapshotPath)
		}
	}
	fmt.Fprintf(w, "%s, final URL %s\n", result.Summary(), result.FinalURL)
	return nil
}
