package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"taskdesk/internal/app"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/repo"
	"taskdesk/internal/server"
)

func statsCmd() *cobra.Command {
	var f repo.RequestFilters
	var status string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count requests per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = domain.Status(strings.ToUpper(status))
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.StatusCounts(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Status", "Count"})
				total := 0
				for _, s := range domain.Statuses {
					if n, ok := counts[s]; ok {
						tw.AppendRow(table.Row{statusColor(s), n})
						total += n
					}
				}
				tw.AppendFooter(table.Row{"Total", total})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.RequesterID, "requester", "", "requester filter")
	cmd.Flags().StringVar(&f.AssignerID, "assigner", "", "assigner filter")
	cmd.Flags().StringVar(&f.CategoryID, "category", "", "category filter")
	return cmd
}

func roleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Role administration",
	}
	cmd.AddCommand(roleListCmd())
	cmd.AddCommand(roleChangeCmd("grant", "Grant a role to an actor (admin)"))
	cmd.AddCommand(roleChangeCmd("revoke", "Revoke a role from an actor (admin)"))
	return cmd
}

func roleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List actors and their roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListActorRoles(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Actor", "Roles"})
				for _, a := range items {
					roles := make([]string, 0, len(a.Roles))
					for _, r := range a.Roles {
						roles = append(roles, string(r))
					}
					tw.AppendRow(table.Row{a.ActorID, strings.Join(roles, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func roleChangeCmd(verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <actor> <role>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := domain.Role(args[1])
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				if verb == "grant" {
					err = e.GrantRole(ctx, actor, args[0], role)
				} else {
					err = e.RevokeRole(ctx, actor, args[0], role)
				}
				if err != nil {
					return err
				}
				done("%s %s %s", verb, strings.ToUpper(args[1]), args[0])
				return nil
			})
		},
	}
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var owner, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the plaintext is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				if owner == "" {
					owner = actor.ID
				}
				key, plain, err := e.IssueAPIKey(ctx, actor, owner, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": key, "api_key": plain})
				}
				done("api key %s for %s", key.ID, key.ActorID)
				fmt.Println(color.New(color.Bold).Sprint(plain))
				fmt.Println(color.YellowString("store it now; it cannot be shown again"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "actor", "", "key owner (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "actor", "", "owner filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				if err := e.RevokeAPIKey(ctx, actor, args[0]); err != nil {
					return err
				}
				done("revoked api key %s", args[0])
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	var roles []string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws app.Workspace) error {
				secretEnv := ws.Config.Server.JWTSecretEnv
				secret := os.Getenv(secretEnv)
				if secret == "" {
					return fmt.Errorf("%s is not set", secretEnv)
				}
				for i, r := range roles {
					role, err := domain.ParseRole(r)
					if err != nil {
						return err
					}
					roles[i] = string(role)
				}
				token, err := server.SignToken(secret, viper.GetString("actor-id"), roles, ttl)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"token": token})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "extra role claims")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every change to requests, categories and roles, newest first.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evts, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"#", "At", "Type", "Entity", "Actor", "Payload"})
				for _, ev := range evts {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + "/" + ev.EntityID, ev.ActorID, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws app.Workspace) error {
				cfg := ws.Config
				if _, err := app.Bootstrap(ctx, ws.Engine, cfg); err != nil {
					return err
				}
				if !cmd.Flags().Changed("addr") {
					addr = cfg.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") {
					basePath = cfg.Server.BasePath
				}
				authCfg := server.AuthConfig{
					JWTSecret:              os.Getenv(cfg.Server.JWTSecretEnv),
					AllowLegacyActorHeader: cfg.Server.AllowActorHeader,
				}
				if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
					return fmt.Errorf("%s is required for bearer auth", cfg.Server.JWTSecretEnv)
				}
				handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Auth: authCfg, Log: zap.L()})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				zap.L().Info("serving", zap.String("addr", addr), zap.String("base_path", basePath))
				fmt.Printf("Serving Taskdesk API on http://%s%s (OpenAPI at %s/openapi.json, docs at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}
