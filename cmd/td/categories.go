package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
)

func categoryCmd() *cobra.Command {
	cat := &cobra.Command{
		Use:     "category",
		Aliases: []string{"cat"},
		Short:   "Manage request categories",
	}
	cat.AddCommand(categoryListCmd())
	cat.AddCommand(categoryCreateCmd())
	cat.AddCommand(categoryUpdateCmd())
	cat.AddCommand(categoryDefaultCmd())
	cat.AddCommand(categoryDeleteCmd())
	return cat
}

func categoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cats, err := e.ListCategories(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cats)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Color", "Default", "Description"})
				for _, c := range cats {
					def := ""
					if c.IsDefault {
						def = color.GreenString("yes")
					}
					tw.AppendRow(table.Row{c.ID, c.Name, c.Color, def, c.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func categoryCreateCmd() *cobra.Command {
	var in engine.CategoryInput
	var makeDefault bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a category (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				c, err := e.CreateCategory(ctx, actor, in)
				if err != nil {
					return err
				}
				if makeDefault && !c.IsDefault {
					if c, err = e.SetDefaultCategory(ctx, actor, c.ID); err != nil {
						return err
					}
				}
				return printCategory(c, "created")
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "name")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Color, "color", "#607d8b", "display color")
	cmd.Flags().BoolVar(&makeDefault, "default", false, "make it the default category")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func categoryUpdateCmd() *cobra.Command {
	var name, description, colour string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a category (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.CategoryPatch{
				Name:        optionalString(cmd, "name", name),
				Description: optionalString(cmd, "description", description),
				Color:       optionalString(cmd, "color", colour),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				c, err := e.UpdateCategory(ctx, actor, args[0], patch)
				if err != nil {
					return err
				}
				return printCategory(c, "updated")
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&colour, "color", "", "display color")
	return cmd
}

func categoryDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default <id>",
		Short: "Make a category the default (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				c, err := e.SetDefaultCategory(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printCategory(c, "default is now")
			})
		},
	}
}

func categoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a non-default category; its requests move to the default (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				if err := e.DeleteCategory(ctx, actor, args[0]); err != nil {
					return err
				}
				done("deleted category %s", args[0])
				return nil
			})
		},
	}
}

func printCategory(c domain.Category, verb string) error {
	if viper.GetBool("json") {
		return printJSON(c)
	}
	done("%s %s (%s)", verb, c.Name, c.ID)
	return nil
}
