package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/engine/auth"
	"taskdesk/internal/repo"
)

const dateLayout = "2006-01-02"

func requestCmd() *cobra.Command {
	req := &cobra.Command{
		Use:     "request",
		Aliases: []string{"req"},
		Short:   "Manage task requests",
	}
	req.AddCommand(requestCreateCmd())
	req.AddCommand(requestUpdateCmd())
	for _, rule := range auth.Transitions() {
		req.AddCommand(requestTransitionCmd(rule))
	}
	req.AddCommand(requestDeleteCmd())
	req.AddCommand(requestListCmd())
	req.AddCommand(requestShowCmd())
	req.AddCommand(requestCommentCmd())
	req.AddCommand(requestAttachCmd())
	return req
}

func parseDue(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	if err != nil {
		return nil, fmt.Errorf("--due must be YYYY-MM-DD or RFC3339: %w", err)
	}
	return &t, nil
}

func requestCreateCmd() *cobra.Command {
	var opts engine.CreateRequestOptions
	var priority, due string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a request (DRAFT unless --submit)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dueDate, err := parseDue(due)
			if err != nil {
				return err
			}
			opts.DueDate = dueDate
			opts.Priority = domain.Priority(priority)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				t, err := e.CreateRequest(ctx, actor, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				done("created %s (%s)", t.ID, statusColor(t.Status))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.CategoryID, "category", "", "category id (default category when empty)")
	cmd.Flags().StringVar(&priority, "priority", "", "CRITICAL, HIGH, MEDIUM, LOW or TRIVIAL")
	cmd.Flags().StringVar(&due, "due", "", "due date")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	cmd.Flags().BoolVar(&opts.SubmitImmediately, "submit", false, "submit right away")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func requestUpdateCmd() *cobra.Command {
	var title, description, category, priority, notes, due string
	var clearDue, submit bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a DRAFT or SUBMITTED request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.UpdateRequestOptions{
				ID:           args[0],
				Title:        optionalString(cmd, "title", title),
				Description:  optionalString(cmd, "description", description),
				CategoryID:   optionalString(cmd, "category", category),
				Notes:        optionalString(cmd, "notes", notes),
				ClearDueDate: clearDue,
				Submit:       submit,
			}
			if cmd.Flags().Changed("priority") {
				p := domain.Priority(priority)
				opts.Priority = &p
			}
			dueDate, err := parseDue(due)
			if err != nil {
				return err
			}
			opts.DueDate = dueDate
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				t, err := e.UpdateRequest(ctx, actor, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				done("updated %s (%s)", t.ID, statusColor(t.Status))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "category id")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&due, "due", "", "due date")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due date")
	cmd.Flags().BoolVar(&submit, "submit", false, "submit after editing")
	return cmd
}

func requestTransitionCmd(rule auth.Rule) *cobra.Command {
	from := make([]string, 0, len(rule.From))
	for _, s := range rule.From {
		from = append(from, string(s))
	}
	return &cobra.Command{
		Use:   string(rule.Name) + " <id>",
		Short: fmt.Sprintf("Move a request from %v to %s", from, rule.To),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				t, err := e.Transition(ctx, actor, args[0], rule.Name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				done("%s is now %s", t.ID, statusColor(t.Status))
				return nil
			})
		},
	}
}

func requestDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a request with its comments and attachments (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				if err := e.DeleteRequest(ctx, actor, args[0]); err != nil {
					return err
				}
				done("deleted %s", args[0])
				return nil
			})
		},
	}
}

func requestListCmd() *cobra.Command {
	var f repo.RequestFilters
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = domain.Status(status)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListRequests(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				cats, err := e.ListCategories(ctx)
				if err != nil {
					return err
				}
				names := make(map[string]string, len(cats))
				for _, c := range cats {
					names[c.ID] = c.Name
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Category", "Requester", "Assigner", "Requested"})
				for _, t := range items {
					assigner := ""
					if t.AssignerID != nil {
						assigner = *t.AssignerID
					}
					tw.AppendRow(table.Row{t.ID, t.Title, statusColor(t.Status), t.Priority, names[t.CategoryID], t.RequesterID, assigner, t.RequestDate.Format(dateLayout)})
				}
				tw.AppendFooter(table.Row{"", "", fmt.Sprintf("%d requests", len(items))})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.RequesterID, "requester", "", "requester filter")
	cmd.Flags().StringVar(&f.AssignerID, "assigner", "", "assigner filter")
	cmd.Flags().StringVar(&f.CategoryID, "category", "", "category filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func requestShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request with its comments and attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetRequest(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				printRequest(t)
				return nil
			})
		},
	}
}

func printRequest(t domain.TaskRequest) {
	fmt.Printf("%s  %s\n", t.ID, statusColor(t.Status))
	fmt.Printf("title:     %s\n", t.Title)
	fmt.Printf("priority:  %s\n", t.Priority)
	fmt.Printf("requester: %s\n", t.RequesterID)
	if t.AssignerID != nil && t.AssignmentDate != nil {
		fmt.Printf("assigner:  %s (%s)\n", *t.AssignerID, t.AssignmentDate.Format(time.RFC3339))
	}
	if t.DueDate != nil {
		fmt.Printf("due:       %s\n", t.DueDate.Format(dateLayout))
	}
	if t.Description != "" {
		fmt.Printf("\n%s\n", t.Description)
	}
	if t.Notes != "" {
		fmt.Printf("\nnotes: %s\n", t.Notes)
	}
	if len(t.Comments) > 0 {
		tw := newTable()
		tw.SetTitle("Comments")
		tw.AppendHeader(table.Row{"#", "Author", "At", "Content"})
		for _, c := range t.Comments {
			tw.AppendRow(table.Row{c.Seq, c.AuthorID, c.CreatedAt.Format(time.RFC3339), c.Content})
		}
		tw.Render()
	}
	if len(t.Attachments) > 0 {
		tw := newTable()
		tw.SetTitle("Attachments")
		tw.AppendHeader(table.Row{"#", "File", "Type", "Size", "Uploader"})
		for _, a := range t.Attachments {
			tw.AppendRow(table.Row{a.Seq, a.FileName, a.Metadata.ContentType, a.Metadata.Size, a.UploaderID})
		}
		tw.Render()
	}
}

func requestCommentCmd() *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "comment <id>",
		Short: "Append a comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				t, err := e.AddComment(ctx, actor, args[0], content)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				done("comment #%d on %s", len(t.Comments), t.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&content, "message", "m", "", "comment text")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func requestAttachCmd() *cobra.Command {
	var in engine.AttachmentInput
	cmd := &cobra.Command{
		Use:   "attach <id>",
		Short: "Record attachment metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				t, err := e.AddAttachment(ctx, actor, args[0], in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				done("attached %s to %s", in.FileName, t.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.FileName, "file-name", "", "file name")
	cmd.Flags().StringVar(&in.Metadata.ContentType, "content-type", "", "MIME type")
	cmd.Flags().Int64Var(&in.Metadata.Size, "size", 0, "size in bytes")
	cmd.Flags().StringVar(&in.Metadata.StorageRef, "ref", "", "where the bytes are stored")
	_ = cmd.MarkFlagRequired("file-name")
	return cmd
}
