package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"safetydesk/internal/app"
	"safetydesk/internal/config"
	"safetydesk/internal/db"
	"safetydesk/internal/engine"
	"safetydesk/internal/engine/access"
	"safetydesk/internal/migrate"
	"safetydesk/internal/repo"
	"safetydesk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sd",
	Short: "SafetyDesk CLI",
	Long: `SafetyDesk is the backend for a workplace safety dashboard.
Core concepts:
- Account: one tenant. Every user, event, task, and record belongs to exactly one account.
- Users: admins manage the account; employees see their own assignments.
- Calendar events: month-scoped safety activities (Inspection, Audit, Training) assigned to a user.
- Tasks: assigned work with a one-submission completion workflow; submitting a file completes the task, once.
- Monthly records: per-user counters of programmed vs completed inspections and training.
- Audit log: every mutation is recorded; view with 'sd log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SAFETYDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-admin", "acting user id")
	rootCmd.PersistentFlags().String("account", "", "account id (overrides workspace default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("account", rootCmd.PersistentFlags().Lookup("account"))
}

func registerCommands() {
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(monthlyCmd())
	rootCmd.AddCommand(fileCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func accountCmd() *cobra.Command {
	acc := &cobra.Command{Use: "account", Short: "Manage accounts"}
	acc.AddCommand(accountInitCmd())
	acc.AddCommand(accountListCmd())
	acc.AddCommand(accountShowCmd())
	acc.AddCommand(accountUseCmd())
	return acc
}

func accountInitCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an account with default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, config.Default(id))
			a, err := e.InitAccount(cmd.Context(), id, name, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(a)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "account id")
	cmd.Flags().StringVar(&name, "name", "", "account display name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func accountListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAccounts(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func accountShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ access.Actor) error {
				a, err := e.Repo.GetAccount(ctx, e.Config.Account.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func accountUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set default account for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID := strings.TrimSpace(args[0])
			if accountID == "" {
				return fmt.Errorf("account id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "SAFETYDESK_ACCOUNT", accountID); err != nil {
				return err
			}
			fmt.Printf("Set SAFETYDESK_ACCOUNT=%s in %s/.env\n", accountID, workspace)
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect account config",
		Long:  "Config is the per-account rulebook stored in the DB: calendar categories, query limits, task list defaults, placeholder names, and webhook targets. Import from safetydesk.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show account config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ access.Actor) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ access.Actor) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import account config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			accountID := cfg.Account.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ access.Actor) error {
				if accountID == "" {
					accountID = e.Config.Account.ID
				}
				if err := e.Repo.UpsertAccountConfig(ctx, accountID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configInitCmd() *cobra.Command {
	var accountID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default safetydesk.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(accountID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account-id", "default", "account id to seed")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show account status",
		Long:  "Scoreboard for the active account: task counts by status and the account record.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				a, err := e.Repo.GetAccount(ctx, e.Config.Account.ID)
				if err != nil {
					return err
				}
				counts, err := e.TaskCounters(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"account_id":  a.ID,
						"name":        a.Name,
						"task_counts": counts,
					})
				}
				fmt.Printf("Account: %s (%s)\n", a.ID, a.Name)
				fmt.Println("Tasks:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage the account directory",
		Long:  "Users belong to one account and carry a role: admin (manages everything) or employee (sees own assignments).",
	}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userShowCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var opts engine.UserCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ access.Actor) error {
				if opts.AccountID == "" {
					opts.AccountID = e.Config.Account.ID
				}
				u, err := e.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "user id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.FullName, "full-name", "", "full name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Role, "role", "employee", "role (admin, employee)")
	cmd.Flags().StringVar(&opts.Avatar, "avatar", "", "avatar URL")
	_ = cmd.MarkFlagRequired("full-name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				users, err := e.ListUsers(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.FullName, u.Email, u.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ access.Actor) error {
				u, err := e.Repo.GetUser(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	return cmd
}

func eventCmd() *cobra.Command {
	ev := &cobra.Command{
		Use:   "event",
		Short: "Manage calendar events",
		Long:  "Calendar events are month-scoped safety activities (Inspection, Audit, Training) with a start/end window and an assignee. Admins manage them; employees see their own.",
	}
	ev.AddCommand(eventAddCmd())
	ev.AddCommand(eventListCmd())
	ev.AddCommand(eventShowCmd())
	ev.AddCommand(eventUpdateCmd())
	ev.AddCommand(eventDeleteCmd())
	return ev
}

func eventAddCmd() *cobra.Command {
	var opts engine.EventCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a calendar event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				opts.Actor = actor
				res, err := e.CreateEvent(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "event id (optional)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category (Inspection, Audit, Training)")
	cmd.Flags().StringVar(&opts.Start, "start", "", "start time (RFC3339)")
	cmd.Flags().StringVar(&opts.End, "end", "", "end time (RFC3339)")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee-id", "", "assignee user id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	_ = cmd.MarkFlagRequired("assignee-id")
	return cmd
}

func eventListCmd() *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events for a calendar month",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if year == 0 {
				year = now.Year()
			}
			if month == 0 {
				month = int(now.Month())
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				events, err := e.ListEventsForMonth(ctx, actor, year, time.Month(month))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Start", "End", "Assignee"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.Title, ev.Category, ev.Start, ev.End, ev.AssigneeName})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year (defaults to current)")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12 (defaults to current)")
	return cmd
}

func eventShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				ev, err := e.GetEvent(ctx, actor, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	return cmd
}

func eventUpdateCmd() *cobra.Command {
	var title, category, start, end, assignee string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.EventUpdateOptions{ID: args[0]}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("category") {
				opts.Category = &category
			}
			if cmd.Flags().Changed("start") {
				opts.Start = &start
			}
			if cmd.Flags().Changed("end") {
				opts.End = &end
			}
			if cmd.Flags().Changed("assignee-id") {
				opts.AssigneeID = &assignee
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				opts.Actor = actor
				ev, err := e.UpdateEvent(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&start, "start", "", "start time (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "end time (RFC3339)")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "assignee user id")
	return cmd
}

func eventDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				return e.DeleteEvent(ctx, actor, id)
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are assigned safety work with an optional deadline. Status flows pending -> completed and completion is terminal: the assignee submits a file, or an admin closes the task directly. Re-submitting returns the original submission.",
	}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskPendingCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskSubmitCmd())
	task.AddCommand(taskSubmissionsCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Assign a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				opts.Actor = actor
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee-id", "", "assignee user id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("assignee-id")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, description, deadline, assignee, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{ID: args[0]}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("deadline") {
				opts.Deadline = &deadline
			}
			if cmd.Flags().Changed("assignee-id") {
				opts.AssigneeID = &assignee
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				opts.Actor = actor
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339 or YYYY-MM-DD, empty clears)")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "assignee user id")
	cmd.Flags().StringVar(&status, "status", "", "status (completed closes the task without a submission)")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, assignee, sort string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				tasks, err := e.ListTasks(ctx, engine.TaskListOptions{
					Status:     status,
					AssigneeID: assignee,
					Sort:       sort,
					Limit:      limit,
					Actor:      actor,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assignee", "Deadline"})
				for _, t := range tasks {
					deadline := ""
					if t.Deadline != nil {
						deadline = *t.Deadline
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.AssigneeID, deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (pending, completed)")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "assignee filter")
	cmd.Flags().StringVar(&sort, "sort", "", "sort (deadline-asc, deadline-desc, created_at-asc, created_at-desc, title-asc, title-desc)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max results")
	return cmd
}

func taskPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending tasks with resolved names",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				views, err := e.ListPendingTasks(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Assignee", "Created by", "Deadline"})
				for _, v := range views {
					deadline := ""
					if v.Deadline != nil {
						deadline = *v.Deadline
					}
					tw.AppendRow(table.Row{v.ID, v.Title, v.AssigneeName, v.CreatorName, deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				t, err := e.GetTask(ctx, actor, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskSubmitCmd() *cobra.Command {
	var fileID, fileName string
	var fileSize int64
	cmd := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit a file and complete a task",
		Long:  "Submits a file reference for the task. Pass --file-id for an already registered file, or --file-name to register one inline. Repeating the command is safe: the original submission is returned.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			if fileID == "" && fileName == "" {
				return fmt.Errorf("--file-id or --file-name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				if fileID == "" {
					f, err := e.RegisterFile(ctx, actor, fileName, fileSize)
					if err != nil {
						return err
					}
					fileID = f.ID
				}
				res, err := e.SubmitTask(ctx, actor, taskID, fileID)
				if err != nil {
					return err
				}
				if !viper.GetBool("json") && res.AlreadyCompleted {
					fmt.Println("task already completed; returning original submission")
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&fileID, "file-id", "", "registered file id")
	cmd.Flags().StringVar(&fileName, "file-name", "", "file name to register inline")
	cmd.Flags().Int64Var(&fileSize, "file-size", 0, "file size in bytes")
	return cmd
}

func taskSubmissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submissions <id>",
		Short: "List submissions for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				items, err := e.ListTaskSubmissions(ctx, actor, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				return e.DeleteTask(ctx, actor, id)
			})
		},
	}
	return cmd
}

func monthlyCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "monthly",
		Short: "Manage monthly counter records",
		Long:  "Monthly records hold per-user counters for a YYYY-MM month: inspections and training, programmed vs completed. Completed counters are clamped to their programmed pair on write.",
	}
	m.AddCommand(monthlySetCmd())
	m.AddCommand(monthlyListCmd())
	m.AddCommand(monthlyDeleteCmd())
	return m
}

func monthlySetCmd() *cobra.Command {
	var opts engine.MonthlyUpsertOptions
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Write a user's counters for a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				opts.Actor = actor
				rec, err := e.UpsertMonthlyRecord(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&opts.UserID, "user-id", "", "user id")
	cmd.Flags().StringVar(&opts.Month, "month", "", "month (YYYY-MM)")
	cmd.Flags().IntVar(&opts.InspectionsProgrammed, "inspections-programmed", 0, "inspections programmed")
	cmd.Flags().IntVar(&opts.InspectionsCompleted, "inspections-completed", 0, "inspections completed")
	cmd.Flags().IntVar(&opts.TrainingProgrammed, "training-programmed", 0, "training programmed")
	cmd.Flags().IntVar(&opts.TrainingCompleted, "training-completed", 0, "training completed")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func monthlyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List monthly records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				items, err := e.ListMonthlyRecords(ctx, actor, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Month", "User", "Insp prog", "Insp done", "Train prog", "Train done"})
				for _, rec := range items {
					tw.AppendRow(table.Row{rec.Month, rec.UserID,
						rec.InspectionsProgrammed, rec.InspectionsCompleted,
						rec.TrainingProgrammed, rec.TrainingCompleted})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "filter by user")
	return cmd
}

func monthlyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a monthly record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				return e.DeleteMonthlyRecord(ctx, actor, id)
			})
		},
	}
	return cmd
}

func fileCmd() *cobra.Command {
	f := &cobra.Command{Use: "file", Short: "Manage file references"}
	f.AddCommand(fileRegisterCmd())
	return f
}

func fileRegisterCmd() *cobra.Command {
	var name string
	var size int64
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an uploaded file reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor access.Actor) error {
				f, err := e.RegisterFile(ctx, actor, name, size)
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "file name")
	cmd.Flags().Int64Var(&size, "size", 0, "file size in bytes")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyRevokeCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for a user",
		Long:  "Prints the raw key once. Only the hash is stored; the key cannot be recovered later.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user-id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ access.Actor) error {
				k, raw, err := e.CreateAPIKey(ctx, userID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": k.ID, "user_id": k.UserID, "name": k.Name, "key": raw})
				}
				fmt.Printf("API key for %s (id %s):\n%s\n", k.UserID, k.ID, raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user-id required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeysForUser(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, id)
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Audit log",
		Long:  "The diary of everything that happened in the account: user, event, task, submission, and record changes.",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ access.Actor) error {
				entries, err := e.Repo.LatestAuditEntries(ctx, repo.AuditFilters{
					AccountID:  e.Config.Account.ID,
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&evtType, "type", "", "entry type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowDevUser bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveAccountAndConfig(cmd.Context(), viper.GetString("account"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:          os.Getenv("SAFETYDESK_JWT_SECRET"),
				AllowDevUserHeader: allowDevUser,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("SAFETYDESK_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving SafetyDesk API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowDevUser, "allow-dev-user", false, "accept X-User-Id header auth (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, access.Actor) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	accountID, cfg, err := app.ResolveAccountAndConfig(ctx, viper.GetString("account"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	actor := resolveActor(ctx, r, accountID)
	return fn(ctx, e, actor)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

// resolveActor looks up --actor-id in the directory so role checks see the
// real role. The local CLI is trusted: an unknown actor id acts as admin.
func resolveActor(ctx context.Context, r repo.Repo, accountID string) access.Actor {
	actorID := viper.GetString("actor-id")
	if u, err := r.GetUser(ctx, actorID); err == nil && u.AccountID == accountID {
		return access.Actor{ID: u.ID, AccountID: u.AccountID, Role: u.Role, Name: u.FullName}
	}
	return access.Actor{ID: actorID, AccountID: accountID, Role: "admin"}
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

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
