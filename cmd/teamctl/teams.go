package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Manage teams",
}

var teamCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBoundary()
		if err != nil {
			return err
		}
		description, _ := cmd.Flags().GetString("description")
		cwd, _ := cmd.Flags().GetString("cwd")
		if cwd == "" {
			cwd = "."
		}
		result, teamErr := b.TeamCreate(args[0], description, cwd)
		if teamErr != nil {
			return teamErr
		}
		fmt.Printf("team %q created (lead %s)\n", result.Name, result.LeadAgentID)
		return nil
	},
}

var teamDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a team (fails if teammates remain)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBoundary()
		if err != nil {
			return err
		}
		if teamErr := b.TeamDelete(args[0]); teamErr != nil {
			return teamErr
		}
		fmt.Printf("team %q deleted\n", args[0])
		return nil
	},
}

var teamShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a team's members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBoundary()
		if err != nil {
			return err
		}
		cfg, teamErr := b.ReadConfig(args[0])
		if teamErr != nil {
			return teamErr
		}
		printHeader("NAME", "ROLE", "MODEL", "JOINED")
		for _, m := range cfg.Members {
			role := "teammate"
			if m.IsLead() {
				role = "lead"
			}
			name := styledName(m.Name, m.Color)
			if m.IsLead() {
				name = leadStyle.Render(m.Name)
			}
			fmt.Printf("%-20s %-10s %-10s %s\n", name, role, m.Model, relativeTime(m.JoinedAt))
		}
		return nil
	},
}

func init() {
	teamCreateCmd.Flags().String("description", "", "team description")
	teamCreateCmd.Flags().String("cwd", "", "working directory for the team lead")
	teamCmd.AddCommand(teamCreateCmd, teamDeleteCmd, teamShowCmd)
	rootCmd.AddCommand(teamCmd)
}
