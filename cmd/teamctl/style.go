package main

import (
	"fmt"
	"os"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

func nowMS() int64 { return time.Now().UnixMilli() }

var colorEnabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

var memberColors = map[string]lipgloss.Color{
	"blue":   lipgloss.Color("33"),
	"green":  lipgloss.Color("34"),
	"yellow": lipgloss.Color("178"),
	"purple": lipgloss.Color("99"),
	"orange": lipgloss.Color("208"),
	"pink":   lipgloss.Color("205"),
	"cyan":   lipgloss.Color("37"),
	"red":    lipgloss.Color("160"),
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("250"))
	leadStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// styledName renders a member's name in its assigned color, or plain
// text when stdout isn't a terminal.
func styledName(name, color string) string {
	if !colorEnabled {
		return name
	}
	c, ok := memberColors[color]
	if !ok {
		return name
	}
	return lipgloss.NewStyle().Foreground(c).Render(name)
}

// relativeTime renders a millisecond epoch as a humanized relative
// duration ("3 minutes ago").
func relativeTime(epochMS int64) string {
	return humanize.Time(time.UnixMilli(epochMS))
}

func printHeader(cols ...string) {
	line := ""
	for i, c := range cols {
		if i > 0 {
			line += "  "
		}
		line += c
	}
	fmt.Println(headerStyle.Render(line))
}
