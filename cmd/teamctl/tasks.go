package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jg-phare/claude-teams/internal/model"
	"github.com/jg-phare/claude-teams/internal/store"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <team> <subject> <description>",
	Short: "Create a task",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBoundary()
		if err != nil {
			return err
		}
		task, taskErr := b.TaskCreate(args[0], args[1], args[2], "", nil)
		if taskErr != nil {
			return taskErr
		}
		fmt.Printf("task %s created\n", task.ID)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list <team>",
	Short: "List tasks for a team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBoundary()
		if err != nil {
			return err
		}
		tasks, taskErr := b.TaskList(args[0])
		if taskErr != nil {
			return taskErr
		}
		printHeader("ID", "STATUS", "OWNER", "SUBJECT")
		for _, t := range tasks {
			owner := dimStyle.Render("-")
			if t.Owner != nil {
				owner = *t.Owner
			}
			fmt.Printf("%-4s %-12s %-12s %s\n", t.ID, t.Status, owner, t.Subject)
		}
		return nil
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <team> <id>",
	Short: "Update a task's status, owner, or dependencies",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBoundary()
		if err != nil {
			return err
		}

		fields := store.UpdateFields{}
		if status, _ := cmd.Flags().GetString("status"); status != "" {
			s := model.TaskStatus(status)
			fields.Status = &s
		}
		if owner, _ := cmd.Flags().GetString("owner"); owner != "" {
			fields.Owner = &owner
		}
		if blocks, _ := cmd.Flags().GetString("add-blocks"); blocks != "" {
			fields.AddBlocks = strings.Split(blocks, ",")
		}
		if blockedBy, _ := cmd.Flags().GetString("add-blocked-by"); blockedBy != "" {
			fields.AddBlockedBy = strings.Split(blockedBy, ",")
		}

		task, taskErr := b.TaskUpdate(args[0], args[1], fields)
		if taskErr != nil {
			return taskErr
		}
		fmt.Printf("task %s now %s\n", task.ID, task.Status)
		return nil
	},
}

func init() {
	taskUpdateCmd.Flags().String("status", "", "new status: pending, in_progress, completed, deleted")
	taskUpdateCmd.Flags().String("owner", "", "new owner agent name")
	taskUpdateCmd.Flags().String("add-blocks", "", "comma-separated task ids this task newly blocks")
	taskUpdateCmd.Flags().String("add-blocked-by", "", "comma-separated task ids this task newly depends on")
	taskCmd.AddCommand(taskCreateCmd, taskListCmd, taskUpdateCmd)
	rootCmd.AddCommand(taskCmd)
}
