package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jg-phare/claude-teams/internal/backend"
	"github.com/jg-phare/claude-teams/internal/boundary"
	"github.com/jg-phare/claude-teams/internal/model"
)

var spawnCmd = &cobra.Command{
	Use:   "spawn <team> <name> <prompt>",
	Short: "Spawn a new teammate",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBoundary()
		if err != nil {
			return err
		}
		modelName, _ := cmd.Flags().GetString("model")
		agentType, _ := cmd.Flags().GetString("agent-type")
		backendName, _ := cmd.Flags().GetString("backend")
		planMode, _ := cmd.Flags().GetBool("plan-mode-required")
		cwd, _ := cmd.Flags().GetString("cwd")
		opencodeAgent, _ := cmd.Flags().GetString("opencode-agent")
		if cwd == "" {
			cwd = "."
		}

		result, spawnErr := b.SpawnTeammate(context.Background(), boundary.SpawnTeammateRequest{
			TeamName:          args[0],
			Name:              args[1],
			Prompt:            args[2],
			Model:             modelName,
			SubagentType:      agentType,
			PlanModeRequired:  planMode,
			CWD:               cwd,
			Backend:           model.BackendKind(backendName),
			OpencodeBinary:    backend.DiscoverBinary("opencode"),
			OpencodeServerURL: b.Config.OpencodeServerURL,
			OpencodeAgent:     opencodeAgent,
		})
		if spawnErr != nil {
			return spawnErr
		}
		fmt.Printf("spawned %s (%s)\n", result.Name, result.AgentID)
		return nil
	},
}

var killCmd = &cobra.Command{
	Use:   "kill <team> <name>",
	Short: "Force-kill a teammate's multiplexer target and remove it from the team",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBoundary()
		if err != nil {
			return err
		}
		if killErr := b.ForceKillTeammate(context.Background(), args[0], args[1]); killErr != nil {
			return killErr
		}
		fmt.Printf("%s stopped\n", args[1])
		return nil
	},
}

func init() {
	spawnCmd.Flags().String("model", "", "model for the teammate (default from config)")
	spawnCmd.Flags().String("agent-type", "", "subagent type (default from config)")
	spawnCmd.Flags().String("backend", "", "backend kind: claude or opencode (default from config)")
	spawnCmd.Flags().Bool("plan-mode-required", false, "require plan-mode approval before execution")
	spawnCmd.Flags().String("cwd", "", "working directory for the teammate")
	spawnCmd.Flags().String("opencode-agent", "", "opencode subagent name for the teammate")
	rootCmd.AddCommand(spawnCmd, killCmd)
}
