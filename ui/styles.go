// Package ui holds the console styles shared by the command line and the processors.
package ui

import "github.com/fatih/color"

var (
	Header  = color.New(color.FgHiCyan, color.Bold)
	Success = color.New(color.FgHiGreen, color.Bold)
	Warn    = color.New(color.FgHiYellow)
	Error   = color.New(color.FgHiRed, color.Bold)
	Muted   = color.New(color.FgHiBlack)
	Info    = color.New(color.FgHiBlue)
	Path    = color.New(color.FgHiWhite)
)
