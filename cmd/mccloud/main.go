// Copyright 2017 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// Command mccloud runs one participant of the overlay: the accept/dial
// loop, the producer state machine, and (via the "console" subcommand) an
// interactive operator shell.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mccloud/console"
	"mccloud/key"
	"mccloud/node"
	"mccloud/store"

	"github.com/ethereum/go-ethereum/log"
	cli "gopkg.in/urfave/cli.v1"
)

var (
	hostFlag    = cli.StringFlag{Name: "host", Usage: "Listen host"}
	portFlag    = cli.IntFlag{Name: "port", Usage: "Listen port"}
	thinFlag    = cli.BoolFlag{Name: "thin", Usage: "Run as a thin observer, excluded from membership gossip and production"}
	folderFlag  = cli.StringFlag{Name: "folder", Usage: "Block store data folder"}
	keyFileFlag = cli.StringFlag{Name: "keyfile", Usage: "Node identity key file"}
	verboseFlag = cli.IntFlag{Name: "verbosity", Usage: "Log verbosity (0-5)", Value: 3}

	nodeFlags = []cli.Flag{configFileFlag, hostFlag, portFlag, thinFlag, folderFlag, keyFileFlag, verboseFlag}
)

func fatalf(format string, args ...interface{}) {
	log.Crit(fmt.Sprintf(format, args...))
}

func notifyInterrupt(c chan os.Signal) {
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
}

func main() {
	app := cli.NewApp()
	app.Name = "mccloud"
	app.Usage = "peer-to-peer distributed ledger node"
	app.Flags = nodeFlags
	app.Action = runNode
	app.Commands = []cli.Command{
		dumpConfigCommand,
		genKeyCommand,
		consoleCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(verbosity int) {
	handler := log.StreamHandler(os.Stderr, log.TerminalFormat(true))
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(verbosity), handler))
}

func runNode(ctx *cli.Context) error {
	setupLogging(ctx.GlobalInt(verboseFlag.Name))
	cfg := makeConfig(ctx)

	k, err := key.LoadOrCreate(cfg.KeyFile)
	if err != nil {
		fatalf("unable to load or create node key: %v", err)
	}
	s, err := store.Open(cfg.Folder)
	if err != nil {
		fatalf("unable to open block store: %v", err)
	}

	n := node.New(cfg, k, s, nil)

	sig := make(chan os.Signal, 1)
	notifyInterrupt(sig)
	go func() {
		<-sig
		log.Info("received interrupt, shutting down")
		n.Shutdown()
	}()

	return n.Run()
}

var genKeyCommand = cli.Command{
	Action:      genKey,
	Name:        "genkey",
	Usage:       "Generate a node identity key file",
	ArgsUsage:   "<keyfile>",
	Description: "genkey writes a freshly generated SEC1-DER identity key to the given path, failing if it already exists.",
}

func genKey(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("usage: mccloud genkey <keyfile>")
	}
	path := ctx.Args().Get(0)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	k, err := key.Generate()
	if err != nil {
		return err
	}
	if err := k.Save(path); err != nil {
		return err
	}
	fmt.Printf("wrote new node key to %s (public: %s)\n", path, k.Public().Hex())
	return nil
}

var consoleCommand = cli.Command{
	Action:      runConsole,
	Name:        "console",
	Usage:       "Start a node and attach an interactive operator console",
	Flags:       nodeFlags,
	Description: "console starts the node in-process and drops into a line-editing shell for status and manual payload submission.",
}

func runConsole(ctx *cli.Context) error {
	setupLogging(ctx.GlobalInt(verboseFlag.Name))
	cfg := makeConfig(ctx)

	k, err := key.LoadOrCreate(cfg.KeyFile)
	if err != nil {
		fatalf("unable to load or create node key: %v", err)
	}
	s, err := store.Open(cfg.Folder)
	if err != nil {
		fatalf("unable to open block store: %v", err)
	}

	n := node.New(cfg, k, s, nil)
	go func() {
		if err := n.Run(); err != nil {
			log.Warn("node run loop exited", "err", err)
		}
	}()

	c := console.New(n)
	return c.Interactive()
}
