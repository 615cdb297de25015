package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskboard/internal/dashboard"
	"taskboard/internal/session"
	taskboardsdk "taskboard/sdk/go"
)

func tasksCmd() *cobra.Command {
	tasks := &cobra.Command{Use: "tasks", Aliases: []string{"task"}, Short: "Manage your tasks"}
	tasks.AddCommand(taskListCmd())
	tasks.AddCommand(taskAddCmd())
	tasks.AddCommand(taskEditCmd())
	tasks.AddCommand(taskDoneCmd("done", "Mark a task completed", true))
	tasks.AddCommand(taskDoneCmd("undo", "Mark a task pending again", false))
	tasks.AddCommand(taskRemoveCmd())
	tasks.AddCommand(taskStatsCmd())
	return tasks
}

// withDashboard loads the signed-in user's tasks into a dashboard so list
// filters and stats behave the same as in the interactive view.
func withDashboard(ctx context.Context, fn func(*dashboard.Dashboard) error) error {
	c, u, err := authedClient(ctx)
	if err != nil {
		return err
	}
	d := dashboard.New(func(string) dashboard.API { return c }, zerolog.Nop())
	job := d.HandleSession(session.Snapshot{Identity: u, Token: c.BearerToken})
	for job != nil {
		res := job(ctx)
		if err := res.Err(); err != nil {
			return err
		}
		job = d.Apply(res)
	}
	return fn(d)
}

func withClient(ctx context.Context, fn func(*taskboardsdk.Client) error) error {
	c, _, err := authedClient(ctx)
	if err != nil {
		return err
	}
	return fn(c)
}

func taskListCmd() *cobra.Command {
	var search, priority string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDashboard(cmd.Context(), func(d *dashboard.Dashboard) error {
				d.SetSearch(search)
				d.SetPriorityFilter(priority)
				tasks := d.Visible()
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				printTasks(tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "substring of title or description")
	cmd.Flags().StringVar(&priority, "priority", dashboard.PriorityAll, "Low, Medium, High or All")
	return cmd
}

func taskAddCmd() *cobra.Command {
	var description, priority, due string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(c *taskboardsdk.Client) error {
				nt := taskboardsdk.NewTask{Title: args[0], Description: description, Priority: priority}
				if due != "" {
					nt.DueDate = &due
				}
				t, err := c.CreateTask(cmd.Context(), nt)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "Low", "Low, Medium or High")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	return cmd
}

func taskEditCmd() *cobra.Command {
	var title, description, priority, due string
	var clearDue bool
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch taskboardsdk.TaskPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if cmd.Flags().Changed("priority") {
				patch.Priority = &priority
			}
			if cmd.Flags().Changed("due") {
				patch.DueDate = &due
			}
			patch.ClearDueDate = clearDue
			return withClient(cmd.Context(), func(c *taskboardsdk.Client) error {
				t, err := c.UpdateTask(cmd.Context(), args[0], patch)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "Low, Medium or High")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due date")
	cmd.MarkFlagsMutuallyExclusive("due", "clear-due")
	return cmd
}

func taskDoneCmd(use, short string, completed bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(c *taskboardsdk.Client) error {
				t, err := c.UpdateTask(cmd.Context(), args[0], taskboardsdk.TaskPatch{Completed: &completed})
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func taskRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(c *taskboardsdk.Client) error {
				if err := c.DeleteTask(cmd.Context(), args[0]); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": args[0], "message": "Task deleted successfully"})
				}
				fmt.Println("Task deleted successfully")
				return nil
			})
		},
	}
}

func taskStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count tasks by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDashboard(cmd.Context(), func(d *dashboard.Dashboard) error {
				st := d.Stats()
				if viper.GetBool("json") {
					return printJSON(st)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Total", "Completed", "Pending", "Missed"})
				tw.AppendRow(table.Row{st.Total, st.Completed, st.Pending, st.Missed})
				tw.Render()
				return nil
			})
		},
	}
}

func printTask(t taskboardsdk.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	printTasks([]taskboardsdk.Task{t})
	return nil
}

func printTasks(tasks []taskboardsdk.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Status", "Due", "Created"})
	for _, t := range tasks {
		due := ""
		if t.DueDate != nil {
			due = *t.DueDate
		}
		tw.AppendRow(table.Row{t.ID, t.Title, t.Priority, t.Status, due, t.CreatedAt})
	}
	tw.Render()
}
