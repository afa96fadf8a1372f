// Package console implements a small interactive operator shell for a
// running node: status inspection and manual payload submission. It is a
// much smaller cousin of a full JS-scripting RPC console — line editing
// and a handful of built-in commands, nothing else.
package console

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mccloud/chain"
	"mccloud/node"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/peterh/liner"
)

const historyFileName = ".mccloud_history"

// Console drives the interactive shell for a single in-process Node.
type Console struct {
	node   *node.Node
	prompt *liner.State
	out    io.Writer

	historyPath string
}

// New builds a Console around an already-running node.
func New(n *node.Node) *Console {
	home, err := os.UserHomeDir()
	historyPath := historyFileName
	if err == nil {
		historyPath = filepath.Join(home, historyFileName)
	}
	return &Console{
		node:        n,
		prompt:      liner.NewLiner(),
		out:         colorable.NewColorableStdout(),
		historyPath: historyPath,
	}
}

// Interactive runs the read-eval-print loop until the user exits or EOF.
func (c *Console) Interactive() error {
	defer c.prompt.Close()
	c.prompt.SetCtrlCAborts(true)

	if f, err := os.Open(c.historyPath); err == nil {
		c.prompt.ReadHistory(f)
		f.Close()
	}
	defer c.saveHistory()

	banner := color.New(color.FgCyan).Sprint("mccloud")
	fmt.Fprintf(c.out, "%s console. Type 'help' for commands.\n", banner)

	for {
		line, err := c.prompt.Prompt("> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c.prompt.AppendHistory(line)
		if c.dispatch(line) {
			return nil
		}
	}
}

func (c *Console) saveHistory() {
	f, err := os.Create(c.historyPath)
	if err != nil {
		return
	}
	defer f.Close()
	c.prompt.WriteHistory(f)
}

// dispatch executes one command line and reports whether the console
// should exit.
func (c *Console) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]

	switch cmd {
	case "help":
		c.printHelp()
	case "exit", "quit":
		return true
	case "status":
		c.status()
	case "share":
		c.share(strings.TrimSpace(strings.TrimPrefix(line, cmd)))
	default:
		fmt.Fprintf(c.out, "unknown command %q, type 'help'\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, "status           show tip, block count, membership size and state")
	fmt.Fprintln(c.out, "share <text>     submit a payload carrying <text>")
	fmt.Fprintln(c.out, "exit             leave the console")
}

func (c *Console) status() {
	tip, blocks, known, sessions, state := c.node.Status()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(c.out, "state:      %s\n", green(state))
	fmt.Fprintf(c.out, "tip:        %s\n", chain.PublicKey(tip).Hex())
	fmt.Fprintf(c.out, "blocks:     %d\n", blocks)
	fmt.Fprintf(c.out, "known:      %d\n", known)
	fmt.Fprintf(c.out, "sessions:   %d\n", sessions)
}

func (c *Console) share(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		fmt.Fprintln(c.out, "usage: share <text>")
		return
	}
	if err := c.node.Submit([]byte(text)); err != nil {
		fmt.Fprintf(c.out, "submit failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "submitted %d bytes\n", len(text))
}
