package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jg-phare/claude-teams/internal/boundary"
)

var baseDirFlag string

var rootCmd = &cobra.Command{
	Use:   "teamctl",
	Short: "Inspect and drive claude-teams state from the filesystem",
	Long:  `teamctl reads and mutates teams/, tasks/, and inbox state directly under its base directory, without going through a running MCP server.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseDirFlag, "base-dir", "", "base directory for team state (default: ~/.claude)")
}

func resolveBaseDir() (string, error) {
	if baseDirFlag != "" {
		return baseDirFlag, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".claude"), nil
}

func newBoundary() (*boundary.Boundary, error) {
	dir, err := resolveBaseDir()
	if err != nil {
		return nil, err
	}
	return boundary.NewBoundary(dir, nowMS)
}
