// Copyright 2015 The kadcore Authors
// This file is part of the kadcore library.
//
// The kadcore library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The kadcore library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the kadcore library. If not, see <http://www.gnu.org/licenses/>.

// kadctl is a REPL that drives the client command protocol (spec §6.4)
// against a running kad daemon over the TCP frame shim. It is a
// demonstration driver only, not part of the core library.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/mod/kadcore/pipe"
)

var Version = "unknown"

var historyFile = ".kadctl_history"

// commandArity mirrors engine/commands.go's table: how many argument
// lines the REPL must collect before sending a command.
var commandArity = map[string]int{
	"NODE": 0, "PEERS": 0, "RESET": 2, "START": 2, "STOP": 0,
	"FNOD": 1, "FVAL": 2, "STOR": 3, "REMV": 2, "PUBL": 0, "HASH": 0,
}

func main() {
	app := cli.NewApp()
	app.Name = "kadctl"
	app.Version = Version
	app.Usage = "interactive client for a kad daemon"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "pipeaddr", Value: "127.0.0.1:7100", Usage: "address of the kad daemon's client shim"},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	conn, err := net.Dial("tcp", ctx.String("pipeaddr"))
	if err != nil {
		return err
	}
	defer conn.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Println("kadctl connected. Commands: NODE PEERS RESET START STOP FNOD FVAL STOR REMV PUBL HASH")
	for {
		input, err := line.Prompt("kad> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		fields := strings.Fields(input)
		name := strings.ToUpper(fields[0])
		need, ok := commandArity[name]
		if !ok {
			fmt.Println(red("unknown command"))
			continue
		}
		if len(fields)-1 != need {
			fmt.Printf(red("%s needs %d argument(s)\n"), name, need)
			continue
		}

		if err := sendFrame(conn, pipe.Frame(name)); err != nil {
			return err
		}
		for _, arg := range fields[1:] {
			if err := sendFrame(conn, pipe.Frame(arg)); err != nil {
				return err
			}
		}

		reply, err := recvFrame(conn)
		if err != nil {
			return err
		}
		fmt.Println(green(string(reply)))

		if name == "STOP" {
			return nil
		}
	}
}

func sendFrame(conn net.Conn, f pipe.Frame) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(f)))
	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := conn.Write(f)
	return err
}

func recvFrame(conn net.Conn) (pipe.Frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, err
	}
	buf := make([]byte, binary.BigEndian.Uint32(hdr[:]))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return pipe.Frame(buf), nil
}
