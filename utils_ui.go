package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
)

// Logging (C11): an ISO-UTC-timestamped, level-coloured console logger,
// generalising the teacher's ad hoc PrintSuccess/PrintError/PrintInfo/
// PrintWarning helpers into the four levels
// original_source/jollycoin/log.py uses (info/warn/error/debug), each
// printing a UTC timestamp followed by the coloured message. Used by the
// engine, store, sync loop, mining loop, API server and `node start`; the
// other CLI commands print with fmt directly.

func logLine(c *color.Color, msg string) {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	c.Printf("%s %s\n", ts, msg)
}

func Info(format string, a ...interface{}) {
	logLine(color.New(color.FgCyan), fmt.Sprintf(format, a...))
}

func Warn(format string, a ...interface{}) {
	logLine(color.New(color.FgYellow), fmt.Sprintf(format, a...))
}

func Error(format string, a ...interface{}) {
	logLine(color.New(color.FgRed), fmt.Sprintf(format, a...))
}

func Debug(format string, a ...interface{}) {
	logLine(color.New(color.FgWhite), fmt.Sprintf(format, a...))
}

func PrintSuccess(format string, a ...interface{}) {
	color.Green("✅ "+format, a...)
}

func PrintMiner(format string, a ...interface{}) {
	c := color.New(color.FgYellow, color.Bold)
	c.Printf("⛏️  "+format+"\n", a...)
}

func PrintNetwork(format string, a ...interface{}) {
	c := color.New(color.FgBlue)
	c.Printf("🌐 "+format+"\n", a...)
}
