package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/TWRT/task-tracker/internal/client/tracker"
	"github.com/TWRT/task-tracker/internal/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create, change and inspect tasks",
	Long: `Task commands run against the local replica. Mutations are forwarded to the
server right away when it is reachable and nothing is waiting ahead of them;
otherwise they are queued and replayed by "sync" or "agent".`,
}

var (
	createNotes    string
	createCategory string
	createPriority string
	createDays     int
	createStart    string

	editTitle    string
	editNotes    string
	editCategory string
	editPriority string
	editAssignee string
	editDays     int
	editArchived bool

	listSearch   string
	listStatus   string
	listCategory string
	listPriority string
	listFrom     string
	listTo       string
	listAll      bool
	listRemote   bool

	showRemote bool
)

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCreate,
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit task fields",
	Long:  "Edit task fields. Only flags that are set are changed; a new --days re-derives the due date.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskEdit,
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a task completed now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyAndPrint(cmd, models.Operation{Kind: models.OpComplete, TaskId: args[0]})
	},
}

var taskReopenCmd = &cobra.Command{
	Use:   "reopen <id>",
	Short: "Clear a task's completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyAndPrint(cmd, models.Operation{Kind: models.OpReopen, TaskId: args[0]})
	},
}

var taskExtendCmd = &cobra.Command{
	Use:   "extend <id> <days>",
	Short: "Push a task's due date out by whole days",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid day count %q: %w", args[1], err)
		}
		return applyAndPrint(cmd, models.Operation{Kind: models.OpExtend, TaskId: args[0], AddDays: days})
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task and its history",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

func init() {
	taskCreateCmd.Flags().StringVar(&createNotes, "notes", "", "Free-form notes")
	taskCreateCmd.Flags().StringVar(&createCategory, "category", "", "Category (default General)")
	taskCreateCmd.Flags().StringVar(&createPriority, "priority", "", "Priority: Low, Medium or High")
	taskCreateCmd.Flags().IntVar(&createDays, "days", 0, "Estimated duration in days")
	taskCreateCmd.Flags().StringVar(&createStart, "start", "", "Start date, YYYY-MM-DD or RFC3339 (default now)")

	taskEditCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	taskEditCmd.Flags().StringVar(&editNotes, "notes", "", "New notes")
	taskEditCmd.Flags().StringVar(&editCategory, "category", "", "New category")
	taskEditCmd.Flags().StringVar(&editPriority, "priority", "", "New priority")
	taskEditCmd.Flags().StringVar(&editAssignee, "assignee", "", "Assignee id")
	taskEditCmd.Flags().IntVar(&editDays, "days", 0, "New estimated duration in days")
	taskEditCmd.Flags().BoolVar(&editArchived, "archived", false, "Archive or unarchive")

	taskListCmd.Flags().StringVar(&listSearch, "search", "", "Match title or notes")
	taskListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by derived status")
	taskListCmd.Flags().StringVar(&listCategory, "category", "", "Filter by category")
	taskListCmd.Flags().StringVar(&listPriority, "priority", "", "Filter by priority")
	taskListCmd.Flags().StringVar(&listFrom, "from", "", "Start on or after this date")
	taskListCmd.Flags().StringVar(&listTo, "to", "", "Start on or before this date")
	taskListCmd.Flags().BoolVar(&listAll, "all", false, "Include archived tasks")
	taskListCmd.Flags().BoolVar(&listRemote, "remote", false, "Read from the server instead of the local replica")

	taskShowCmd.Flags().BoolVar(&showRemote, "remote", false, "Read from the server instead of the local replica")

	taskCmd.AddCommand(taskCreateCmd, taskEditCmd, taskCompleteCmd, taskReopenCmd, taskExtendCmd, taskListCmd, taskShowCmd)
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	in := models.CreateInput{
		Title:         args[0],
		Notes:         createNotes,
		Category:      createCategory,
		Priority:      createPriority,
		EstimatedDays: createDays,
	}
	if createStart != "" {
		start, err := parseDate(createStart)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		in.StartAt = &start
	}
	return applyAndPrint(cmd, models.Operation{Kind: models.OpCreate, Create: &in})
}

func runTaskEdit(cmd *cobra.Command, args []string) error {
	in, err := editInputFromFlags(cmd)
	if err != nil {
		return err
	}
	return applyAndPrint(cmd, models.Operation{Kind: models.OpEdit, TaskId: args[0], Edit: &in})
}

func editInputFromFlags(cmd *cobra.Command) (models.EditInput, error) {
	var in models.EditInput
	flags := cmd.Flags()
	if flags.Changed("title") {
		in.Title = &editTitle
	}
	if flags.Changed("notes") {
		in.Notes = &editNotes
	}
	if flags.Changed("category") {
		in.Category = &editCategory
	}
	if flags.Changed("priority") {
		in.Priority = &editPriority
	}
	if flags.Changed("assignee") {
		in.AssigneeId = &editAssignee
	}
	if flags.Changed("days") {
		in.EstimatedDays = &editDays
	}
	if flags.Changed("archived") {
		in.Archived = &editArchived
	}
	if in == (models.EditInput{}) {
		return in, fmt.Errorf("nothing to edit: set at least one field flag")
	}
	return in, nil
}

func applyAndPrint(cmd *cobra.Command, op models.Operation) error {
	return withClient(func(env *clientEnv) error {
		task, err := env.session.Apply(cmd.Context(), op)
		if tracker.IsNotFound(err) {
			return fmt.Errorf("task %s no longer exists on the server, local change kept: %w", op.TaskId, err)
		}
		if err != nil {
			return err
		}
		if err := printTask(cmd.OutOrStdout(), outputFormat, task); err != nil {
			return err
		}
		if n, err := env.session.Pending(cmd.Context()); err == nil && n > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d change(s) waiting to sync\n", n)
		}
		return nil
	})
}

func runTaskList(cmd *cobra.Command, args []string) error {
	filter := models.TaskFilter{
		Search:          listSearch,
		Status:          models.Status(listStatus),
		Category:        listCategory,
		Priority:        listPriority,
		IncludeArchived: listAll,
	}
	if listFrom != "" {
		from, err := parseDate(listFrom)
		if err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
		filter.From = &from
	}
	if listTo != "" {
		to, err := parseDate(listTo)
		if err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
		filter.To = &to
	}

	return withClient(func(env *clientEnv) error {
		var tasks []models.Task
		var err error
		if listRemote {
			tasks, err = env.remote.ListTasks(cmd.Context(), filter)
		} else {
			tasks, err = env.local.List(cmd.Context(), filter)
		}
		if err != nil {
			return err
		}
		return printTasks(cmd.OutOrStdout(), outputFormat, tasks)
	})
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	return withClient(func(env *clientEnv) error {
		var task *models.Task
		var err error
		if showRemote {
			task, err = env.remote.GetTask(cmd.Context(), args[0])
		} else {
			task, err = env.local.Get(cmd.Context(), args[0])
		}
		if err != nil {
			return err
		}
		return printTask(cmd.OutOrStdout(), outputFormat, task)
	})
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateFormat, s, time.Local)
}
