package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"taskdesk/internal/app"
	"taskdesk/internal/config"
	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "td",
	Short: "Taskdesk CLI",
	Long: `Taskdesk tracks internal task requests from draft to completion.
- Requests move DRAFT -> SUBMITTED -> ASSIGNED -> COMPLETED; CANCELLED is the exit.
- Requesters create and submit, assigners take submitted work, executors complete it.
- Every request belongs to a category; exactly one category is the default.
- Comments and attachments are append-only.
- Event log: every change, view with 'td log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return setupLogger(workspace)
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	err := rootCmd.Execute()
	_ = zap.L().Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := filepath.Join(viper.GetString("workspace"), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, color.YellowString("warning:"), "load", envFile+":", err)
	}
	viper.SetEnvPrefix("TASKDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); defaults to taskdesk.yml")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(categoryCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func setupLogger(workspace string) error {
	level := viper.GetString("log-level")
	if level == "" {
		if cfg, err := config.LoadOptional(workspace); err == nil && cfg != nil {
			level = cfg.Log.Level
		}
	}
	if level == "" {
		level = "warn"
	}
	logger, err := logging.New(level)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create taskdesk.yml and seed categories and roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s exists, keeping it\n", path)
			} else {
				if err := os.WriteFile(path, []byte(config.GenerateDefault(viper.GetString("actor-id"))), 0o644); err != nil {
					return err
				}
				fmt.Printf("%s %s\n", color.GreenString("wrote"), path)
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws app.Workspace) error {
				report, err := app.Bootstrap(ctx, ws.Engine, ws.Config)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("schema version %d, %d categories created, %d role grants\n", ws.SchemaVersion, len(report.Categories), report.Grants)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing taskdesk.yml")
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current actor and its roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				return printJSONOrTable(actor)
			})
		},
	}
}

// --- helpers ---

func withWorkspace(ctx context.Context, fn func(context.Context, app.Workspace) error) error {
	ws, err := app.Open(viper.GetString("workspace"), zap.L())
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws app.Workspace) error {
		return fn(ctx, ws.Engine)
	})
}

func currentActor(ctx context.Context, e engine.Engine) (domain.Actor, error) {
	id := strings.TrimSpace(viper.GetString("actor-id"))
	if id == "" {
		return domain.Actor{}, fmt.Errorf("--actor-id required")
	}
	return e.WhoAmI(ctx, id)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func statusColor(s domain.Status) string {
	switch s {
	case domain.StatusDraft:
		return color.New(color.Faint).Sprint(s)
	case domain.StatusSubmitted:
		return color.CyanString(string(s))
	case domain.StatusAssigned, domain.StatusInProgress:
		return color.YellowString(string(s))
	case domain.StatusCompleted:
		return color.GreenString(string(s))
	case domain.StatusCancelled:
		return color.RedString(string(s))
	}
	return string(s)
}

func done(format string, args ...any) {
	fmt.Println(color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}
