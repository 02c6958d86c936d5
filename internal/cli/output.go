package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TWRT/task-tracker/internal/models"
)

const dateFormat = "2006-01-02"

func printTasks(w io.Writer, format string, tasks []models.Task) error {
	if tasks == nil {
		tasks = []models.Task{}
	}
	switch format {
	case "json":
		return writeJSON(w, tasks)
	case "yaml":
		return writeYAML(w, tasks)
	case "table", "":
		if len(tasks) == 0 {
			fmt.Fprintln(w, "No tasks found.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPRIORITY\tCATEGORY\tDUE\tCOMPLETED")
		for _, t := range tasks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				t.Id, t.Title, t.Status, t.Priority, t.Category, t.DueAt.Format(dateFormat), formatOptional(t.CompletedAt))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printTask(w io.Writer, format string, task *models.Task) error {
	switch format {
	case "json":
		return writeJSON(w, task)
	case "yaml":
		return writeYAML(w, task)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "ID:\t%s\n", task.Id)
		fmt.Fprintf(tw, "Title:\t%s\n", task.Title)
		if task.Notes != "" {
			fmt.Fprintf(tw, "Notes:\t%s\n", task.Notes)
		}
		fmt.Fprintf(tw, "Status:\t%s\n", task.Status)
		fmt.Fprintf(tw, "Priority:\t%s\n", task.Priority)
		fmt.Fprintf(tw, "Category:\t%s\n", task.Category)
		fmt.Fprintf(tw, "Start:\t%s\n", task.StartAt.Format(dateFormat))
		fmt.Fprintf(tw, "Estimate:\t%d days\n", task.EstimatedDays)
		fmt.Fprintf(tw, "Due:\t%s\n", task.DueAt.Format(dateFormat))
		fmt.Fprintf(tw, "Completed:\t%s\n", formatOptional(task.CompletedAt))
		if task.Archived {
			fmt.Fprintln(tw, "Archived:\tyes")
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if len(task.AuditLog) > 0 {
			fmt.Fprintln(w, "\nHistory:")
			for _, e := range task.AuditLog {
				fmt.Fprintf(w, "  %s  %s\n", e.CreatedAt.Local().Format(time.DateTime), e.Action)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printPending(w io.Writer, format string, pending []models.PendingMutation) error {
	if pending == nil {
		pending = []models.PendingMutation{}
	}
	switch format {
	case "json":
		return writeJSON(w, pending)
	case "yaml":
		return writeYAML(w, pending)
	case "table", "":
		if len(pending) == 0 {
			fmt.Fprintln(w, "Nothing waiting to sync.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tREQUEST\tQUEUED\tATTEMPTS\tLAST ERROR")
		for _, m := range pending {
			fmt.Fprintf(tw, "%d\t%s %s\t%s\t%d\t%s\n",
				m.Seq, m.Method, m.Path, m.EnqueuedAt.Local().Format(time.DateTime), m.Attempts, m.LastError)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateFormat)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
