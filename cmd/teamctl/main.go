// Command teamctl is the operator CLI for inspecting and driving a
// team's filesystem state directly — team/member/task listing and
// lifecycle commands, independent of any running MCP server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
