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

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"unicode"

	"mccloud/config"

	"github.com/naoina/toml"
	cli "gopkg.in/urfave/cli.v1"
)

// tomlSettings keeps TOML keys identical to Go struct field names, the way
// cmd/berith's own config loader does, so the dumped config round-trips.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

var configFileFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML configuration file",
}

func loadConfig(file string, cfg *config.Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

func makeConfig(ctx *cli.Context) config.Config {
	cfg := config.Default()

	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			fatalf("unable to load config file: %v", err)
		}
	}

	if ctx.GlobalIsSet(hostFlag.Name) {
		cfg.Host = ctx.GlobalString(hostFlag.Name)
	}
	if ctx.GlobalIsSet(portFlag.Name) {
		cfg.Port = uint16(ctx.GlobalInt(portFlag.Name))
	}
	if ctx.GlobalIsSet(thinFlag.Name) {
		cfg.Thin = ctx.GlobalBool(thinFlag.Name)
	}
	if ctx.GlobalIsSet(folderFlag.Name) {
		cfg.Folder = ctx.GlobalString(folderFlag.Name)
	}
	if ctx.GlobalIsSet(keyFileFlag.Name) {
		cfg.KeyFile = ctx.GlobalString(keyFileFlag.Name)
	}
	return cfg
}

var dumpConfigCommand = cli.Command{
	Action:      dumpConfig,
	Name:        "dumpconfig",
	Usage:       "Show the effective configuration",
	ArgsUsage:   "",
	Flags:       nodeFlags,
	Description: "The dumpconfig command prints the effective TOML configuration: defaults overlaid with the config file and flags.",
}

func dumpConfig(ctx *cli.Context) error {
	cfg := makeConfig(ctx)
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	_, err = io.WriteString(os.Stdout, string(out))
	return err
}
