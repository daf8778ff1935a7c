package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/app"
	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
	"fieldline/internal/server"
	"fieldline/schedule/timeline"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Fieldline CLI",
	Long: `Fieldline derives a market-research project's schedule from four anchor dates.
Core concepts:
- Workspace: your .fieldline directory holding the database; project config lives in the DB and can be imported from fieldline.yml.
- Anchors: KO date, fieldwork start, fieldwork end, report due. Everything else is computed from these.
- Timeline: five contiguous phase segments (Kickoff, Pre-Field, Fielding, Post-Field Analysis, Reporting) rebuilt whenever anchors move.
- Date rules: free-text phrases like "KO date, 1 day before" resolved to concrete due dates with business-day arithmetic.
- Key dates: calendar milestones re-stamped from phase boundaries when the timeline shifts.
- Team: members hold roles; role-tagged tasks are assigned to every current holder of the role.
- Event log: diary of changes, view with 'fl log tail'.`,
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
	viper.SetEnvPrefix("FIELDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(anchorsCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(keyDateCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectInitCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var id, name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id, name)
			e := engine.New(conn, cfg)
			e.Log = newLogger()
			p, err := e.InitProject(cmd.Context(), id, name, desc, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "project name (defaults to id)")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var status string
	var description string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var descPtr *string
				if cmd.Flags().Changed("description") {
					descPtr = &description
				}
				if err := e.Repo.UpdateProject(ctx, e.Config.Project.ID, status, descPtr); err != nil {
					return err
				}
				p, err := e.Repo.GetProject(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status (active, paused, archived)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteProject(ctx, e.Config.Project.ID)
			})
		},
	}
	return cmd
}

func projectInitCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default fieldline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			if name == "" {
				name = id
			}
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(id, name)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "project name (defaults to id)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage project config",
	}
	cfg.AddCommand(projectConfigShowCmd())
	cfg.AddCommand(projectConfigImportCmd())
	return cfg
}

func projectConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show project config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func projectConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import project config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			projectID := cfg.Project.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if projectID == "" {
					projectID = e.Config.Project.ID
				}
				if err := e.Repo.UpsertProjectConfig(ctx, projectID, cfg); err != nil {
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

func anchorsCmd() *cobra.Command {
	anchors := &cobra.Command{
		Use:   "anchors",
		Short: "Manage anchor dates",
		Long:  "Anchors are the four milestones the whole schedule hangs off: KO date, fieldwork start, fieldwork end, report due. Setting them rebuilds the phase timeline, recomputes rule-tagged task due dates, and re-stamps key dates.",
	}
	anchors.AddCommand(anchorsSetCmd())
	anchors.AddCommand(anchorsShowCmd())
	return anchors
}

func anchorsSetCmd() *cobra.Command {
	var ko, fieldStart, fieldEnd, reportDue string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the four anchor dates and rebuild the timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				segs, err := e.SetAnchorDates(ctx, engine.SetAnchorDatesOptions{
					ProjectID:      e.Config.Project.ID,
					KODate:         ko,
					FieldworkStart: fieldStart,
					FieldworkEnd:   fieldEnd,
					ReportDue:      reportDue,
					ActorID:        viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printSegments(segs)
			})
		},
	}
	cmd.Flags().StringVar(&ko, "ko-date", "", "kick-off date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&fieldStart, "fieldwork-start", "", "fieldwork start date")
	cmd.Flags().StringVar(&fieldEnd, "fieldwork-end", "", "fieldwork end date")
	cmd.Flags().StringVar(&reportDue, "report-due", "", "report due date")
	_ = cmd.MarkFlagRequired("ko-date")
	_ = cmd.MarkFlagRequired("fieldwork-start")
	_ = cmd.MarkFlagRequired("fieldwork-end")
	_ = cmd.MarkFlagRequired("report-due")
	return cmd
}

func anchorsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show stored anchor dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetAnchorDates(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func timelineCmd() *cobra.Command {
	tl := &cobra.Command{
		Use:   "timeline",
		Short: "Inspect and adjust the phase timeline",
	}
	tl.AddCommand(timelineShowCmd())
	tl.AddCommand(timelineShiftCmd())
	tl.AddCommand(timelineCurrentCmd())
	return tl
}

func timelineShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show phase segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				segs, err := e.Repo.ListSegments(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printSegments(segs)
			})
		},
	}
	return cmd
}

func timelineShiftCmd() *cobra.Command {
	var edge, date string
	cmd := &cobra.Command{
		Use:   "shift <phase>",
		Short: "Move one boundary of one phase",
		Long:  "Moves the start or end of the named phase to a new date and re-pins the touching edge of the immediate neighbor. Other segments are left alone.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase := timeline.Phase(args[0])
			if !timeline.KnownPhase(phase) {
				return fmt.Errorf("unknown phase %q", args[0])
			}
			if edge != string(timeline.EdgeStart) && edge != string(timeline.EdgeEnd) {
				return fmt.Errorf("--edge must be start or end")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				segs, err := e.ShiftPhaseBoundary(ctx, e.Config.Project.ID, phase, timeline.Edge(edge), date, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printSegments(segs)
			})
		},
	}
	cmd.Flags().StringVar(&edge, "edge", "", "boundary to move (start or end)")
	cmd.Flags().StringVar(&date, "date", "", "new boundary date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("edge")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func timelineCurrentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the phase containing today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				seg, state, err := e.CurrentPhase(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"phase": seg.Phase, "state": state, "start_date": seg.StartDate, "end_date": seg.EndDate})
				}
				fmt.Printf("%s (%s) %s .. %s\n", seg.Phase, state, seg.StartDate, seg.EndDate)
				return nil
			})
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show project status",
		Long:  "The scoreboard for your project: current phase, phase state, and task counts by status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				projectID := e.Config.Project.ID
				p, err := e.Repo.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountTasksByStatus(ctx, projectID)
				if err != nil {
					return err
				}
				phase, state := "", ""
				if seg, st, err := e.CurrentPhase(ctx, projectID); err == nil {
					phase, state = seg.Phase, string(st)
				} else if !errors.Is(err, repo.ErrNotFound) {
					return err
				}
				out := map[string]any{
					"project_id":    p.ID,
					"status":        p.Status,
					"current_phase": phase,
					"phase_state":   state,
					"task_counts":   counts,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Project: %s (%s)\n", p.ID, p.Status)
				if phase != "" {
					fmt.Printf("Current phase: %s (%s)\n", phase, state)
				} else {
					fmt.Println("Current phase: timeline not built")
				}
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

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks carry a free-text date rule resolved against the anchors, a phase tag, and a role tag that drives assignment. Statuses go pending -> in_progress -> done (skipped is an exit).",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var dueDate string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			opts.DueDate = optionalString(dueDate)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.ProjectID == "" {
					opts.ProjectID = e.Config.Project.ID
				}
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Phase, "phase", "", "phase tag")
	cmd.Flags().StringVar(&opts.Role, "role", "", "role tag (drives assignment)")
	cmd.Flags().StringVar(&opts.DateRule, "date-rule", "", `date rule, e.g. "KO date, 1 day before"`)
	cmd.Flags().StringVar(&dueDate, "due-date", "", "manual due date (YYYY-MM-DD, exclusive with --date-rule)")
	cmd.Flags().BoolVar(&opts.IsOngoing, "ongoing", false, "ongoing task, never gets a due date")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.ProjectID == "" {
					f.ProjectID = e.Config.Project.ID
				}
				tasks, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Description", "Phase", "Due", "Role", "Assigned", "Status"})
				for _, t := range tasks {
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
					}
					if t.IsOngoing {
						due = "ongoing"
					}
					tw.AppendRow(table.Row{t.ID, t.Description, t.Phase, due, t.Role, strings.Join(t.AssignedTo, ","), t.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Phase, "phase", "", "phase filter")
	cmd.Flags().StringVar(&f.Role, "role", "", "role filter")
	cmd.Flags().StringVar(&f.MemberID, "member-id", "", "assignee filter")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var description, phase, role, dateRule, dueDate, status, notes string
	var ongoing bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("phase") {
				opts.Phase = &phase
			}
			if cmd.Flags().Changed("role") {
				opts.Role = &role
			}
			if cmd.Flags().Changed("date-rule") {
				opts.DateRule = &dateRule
			}
			if cmd.Flags().Changed("due-date") {
				opts.DueDate = &dueDate
			}
			if cmd.Flags().Changed("ongoing") {
				opts.IsOngoing = &ongoing
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("notes") {
				opts.Notes = &notes
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&phase, "phase", "", "phase tag (empty clears)")
	cmd.Flags().StringVar(&role, "role", "", "role tag (empty clears)")
	cmd.Flags().StringVar(&dateRule, "date-rule", "", "date rule (empty clears)")
	cmd.Flags().StringVar(&dueDate, "due-date", "", "manual due date")
	cmd.Flags().BoolVar(&ongoing, "ongoing", false, "ongoing flag")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteTask(ctx, id)
			})
		},
	}
	return cmd
}

func teamCmd() *cobra.Command {
	team := &cobra.Command{
		Use:   "team",
		Short: "Manage the project roster",
		Long:  "Members hold roles from the config's known list. Granting or revoking a role updates the assignee list of every task tagged with that role and nothing else.",
	}
	team.AddCommand(teamAddCmd())
	team.AddCommand(teamListCmd())
	team.AddCommand(teamGrantRoleCmd())
	team.AddCommand(teamRevokeRoleCmd())
	team.AddCommand(teamRemoveCmd())
	team.AddCommand(teamReassignCmd())
	return team
}

func teamAddCmd() *cobra.Command {
	var name string
	var roles []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a team member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.AddMember(ctx, e.Config.Project.ID, name, roles, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "member name")
	cmd.Flags().StringArrayVar(&roles, "role", []string{}, "role held by the member (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func teamListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List team members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				members, err := e.Repo.ListMembers(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Roles"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.ID, m.Name, strings.Join(m.Roles, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func teamGrantRoleCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "grant-role <member-id>",
		Short: "Grant a role to a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.ChangeMemberRole(ctx, memberID, role, true, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role to grant")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func teamRevokeRoleCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "revoke-role <member-id>",
		Short: "Revoke a role from a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.ChangeMemberRole(ctx, memberID, role, false, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role to revoke")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func teamRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <member-id>",
		Short: "Remove a member from the roster",
		Long:  "Revokes each of the member's roles first so role-tagged tasks drop the departing assignee, then deletes the roster entry.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Repo.GetMember(ctx, memberID)
				if err != nil {
					return err
				}
				for _, role := range m.Roles {
					if _, err := e.ChangeMemberRole(ctx, memberID, role, false, viper.GetString("actor-id")); err != nil {
						return err
					}
				}
				return e.Repo.DeleteMember(ctx, memberID)
			})
		},
	}
	return cmd
}

func teamReassignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reassign",
		Short: "Rebuild every role-tagged task's assignees from the roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				changed, err := e.ReassignAll(ctx, e.Config.Project.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{"tasks_changed": changed})
			})
		},
	}
	return cmd
}

func keyDateCmd() *cobra.Command {
	kd := &cobra.Command{
		Use:   "keydate",
		Short: "Manage calendar key dates",
	}
	kd.AddCommand(keyDateAddCmd())
	kd.AddCommand(keyDateListCmd())
	kd.AddCommand(keyDateDeleteCmd())
	return kd
}

func keyDateAddCmd() *cobra.Command {
	var label, date string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a key date",
		Long:  "Labels that reference a phase (\"Fielding begins\", \"Report due\") are stamped from the current segments and re-stamped whenever the timeline moves.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				kd, err := e.AddKeyDate(ctx, e.Config.Project.ID, label, date, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(kd)
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "key date label")
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("label")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func keyDateListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List key dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListKeyDates(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func keyDateDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a key date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteKeyDate(ctx, id)
			})
		},
	}
	return cmd
}

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <rule>",
		Short: "Resolve a date rule against the project anchors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.PreviewDueDates(ctx, e.Config.Project.ID, []timeline.TaskRule{{ID: "rule", Rule: rule}})
				if err != nil {
					return err
				}
				d := res[0]
				if d.Err != nil {
					return d.Err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"rule": rule, "due_date": d.Date})
				}
				if d.Date == nil {
					fmt.Println("no date")
					return nil
				}
				fmt.Println(*d.Date)
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Project.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveProjectAndConfig(cmd.Context(), workspace, viper.GetString("project"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			e.Log = newLogger()
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
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
			fmt.Printf("Serving Fieldline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
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
	_, cfg, err := app.ResolveProjectAndConfig(ctx, workspace, viper.GetString("project"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	e.Log = newLogger()
	return fn(ctx, e)
}

// newLogger emits resolver and recompute diagnostics on stderr so they
// never mix with command output on stdout.
func newLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
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

func printSegments(segs []domain.PhaseSegment) error {
	if viper.GetBool("json") {
		return printJSON(segs)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Phase", "Start", "End"})
	for _, s := range segs {
		start, end := s.StartDate, s.EndDate
		if start > end {
			start, end = "-", "-"
		}
		tw.AppendRow(table.Row{s.Position, s.Phase, start, end})
	}
	tw.Render()
	return nil
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

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
