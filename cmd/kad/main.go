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

// kad runs a kadcore engine as a standalone daemon, exposing the actor
// pipe's client side over a length-prefixed TCP shim so cmd/kadctl (or
// any other client) can drive it without linking the engine package
// directly.
package main

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/nacl/box"
	"gopkg.in/urfave/cli.v1"

	"github.com/rjeczalik/notify"

	"github.com/mod/kadcore/engine"
	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/logger"
	"github.com/mod/kadcore/nat"
	"github.com/mod/kadcore/persist"
	"github.com/mod/kadcore/pipe"
	"github.com/mod/kadcore/storage"
	"github.com/mod/kadcore/z85"
)

// Version is the application revision identifier. It can be set with the
// linker as in: go build -ldflags "-X main.Version="`git describe --tags`
var Version = "unknown"

var (
	ListenAddrFlag = cli.StringFlag{Name: "addr", Value: "0.0.0.0", Usage: "UDP listen address"}
	ListenPortFlag = cli.IntFlag{Name: "port", Value: 7000, Usage: "UDP listen port"}
	NodeKeyFlag    = cli.StringFlag{Name: "nodekey", Usage: "z85-encoded Curve25519 secret key (generated if omitted)"}
	SeedFileFlag   = cli.StringFlag{Name: "seeds", Usage: "path to a seed list file, watched for changes"}
	StorageFlag    = cli.StringFlag{Name: "storage", Value: "file", Usage: "persistence backend: file, leveldb, bolt, or none"}
	DataDirFlag    = cli.StringFlag{Name: "datadir", Value: "./kaddata", Usage: "directory for the persistence backend"}
	NatFlag        = cli.StringFlag{Name: "nat", Value: "any", Usage: "NAT traversal: any or none"}
	PipeAddrFlag   = cli.StringFlag{Name: "pipeaddr", Value: "127.0.0.1:7100", Usage: "TCP address the client shim listens on"}
	VerbosityFlag  = cli.StringFlag{Name: "verbosity", Value: "info", Usage: "log level: debug, info, warn, error, crit"}
)

func main() {
	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Version = Version
	app.Usage = "run a kadcore engine daemon"
	app.Flags = []cli.Flag{
		ListenAddrFlag, ListenPortFlag, NodeKeyFlag, SeedFileFlag,
		StorageFlag, DataDirFlag, NatFlag, PipeAddrFlag, VerbosityFlag,
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	setVerbosity(ctx.String(VerbosityFlag.Name))

	secret, pub, err := loadOrGenerateKey(ctx.String(NodeKeyFlag.Name))
	if err != nil {
		return err
	}
	logger.Std.Infof("local node id %s", identifier.ID(pub).String())

	store, err := openStorage(ctx.String(StorageFlag.Name), ctx.String(DataDirFlag.Name))
	if err != nil {
		return err
	}

	seeds, err := parseSeedFile(ctx.String(SeedFileFlag.Name))
	if err != nil {
		return err
	}

	cfg := engine.Config{
		ListenAddr: ctx.String(ListenAddrFlag.Name),
		ListenPort: uint16(ctx.Int(ListenPortFlag.Name)),
		PrivateKey: secret,
		PublicKey:  pub,
		LocalID:    identifier.ID(pub),
		Seeds:      seeds,
		Storage:    store,
	}

	engineSide, clientSide := pipe.New(16)
	e, err := engine.New(cfg, engineSide)
	if err != nil {
		return err
	}

	if mapper, ok := setupNAT(ctx.String(NatFlag.Name), cfg.ListenPort); ok {
		logger.Std.Infof("NAT mapping via %s", mapper)
	}

	if path := ctx.String(SeedFileFlag.Name); path != "" {
		go watchSeeds(path, e)
	}

	go e.Run()
	clientSide.WaitReady()
	logger.Std.Infof("engine ready, listening on %s:%d", cfg.ListenAddr, cfg.ListenPort)

	return serveClientShim(ctx.String(PipeAddrFlag.Name), clientSide)
}

func setVerbosity(level string) {
	switch strings.ToLower(level) {
	case "debug":
		logger.Std.SetLevel(logger.LevelDebug)
	case "warn":
		logger.Std.SetLevel(logger.LevelWarn)
	case "error":
		logger.Std.SetLevel(logger.LevelError)
	case "crit":
		logger.Std.SetLevel(logger.LevelCrit)
	default:
		logger.Std.SetLevel(logger.LevelInfo)
	}
}

func loadOrGenerateKey(z85Secret string) (secret [32]byte, pub [32]byte, err error) {
	if z85Secret == "" {
		p, s, err := box.GenerateKey(rand.Reader)
		if err != nil {
			return secret, pub, err
		}
		return *s, *p, nil
	}
	decoded, err := z85.DecodeKey(z85Secret)
	if err != nil {
		return secret, pub, fmt.Errorf("nodekey: %v", err)
	}
	p, s, err := box.GenerateKey(deterministicReader{decoded})
	if err != nil {
		return secret, pub, err
	}
	return *s, *p, nil
}

// deterministicReader feeds a fixed 32-byte seed to box.GenerateKey so a
// configured secret key reproduces the same Curve25519 keypair across
// restarts instead of a fresh random one every time.
type deterministicReader struct {
	seed [32]byte
}

func (r deterministicReader) Read(p []byte) (int, error) {
	return copy(p, r.seed[:]), nil
}

func openStorage(kind, dir string) (persist.Storage, error) {
	switch strings.ToLower(kind) {
	case "none":
		return nil, nil
	case "leveldb":
		return storage.NewLevelDBBackend(dir)
	case "bolt":
		return storage.NewBoltBackend(filepath.Join(dir, "kad.bolt"))
	default:
		return storage.NewFileBackend(dir)
	}
}

func setupNAT(kind string, port uint16) (nat.Mapper, bool) {
	if strings.ToLower(kind) == "none" {
		return nil, false
	}
	mapper, err := nat.Any()
	if err != nil {
		logger.Std.Warnf("nat: %v", err)
		return nil, false
	}
	if _, err := mapper.AddMapping(int(port), int(port), 0); err != nil {
		logger.Std.Warnf("nat: mapping failed: %v", err)
		return nil, false
	}
	return mapper, true
}

// parseSeedFile reads "address:port:publickey_z85" lines, skipping blank
// lines and lines starting with '#' (spec §6.2).
func parseSeedFile(path string) ([]engine.Seed, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var seeds []engine.Seed
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s, err := parseSeedLine(line)
		if err != nil {
			logger.Std.Warnf("seeds: skipping %q: %v", line, err)
			continue
		}
		seeds = append(seeds, s)
	}
	return seeds, scanner.Err()
}

func parseSeedLine(line string) (engine.Seed, error) {
	parts := strings.SplitN(line, ":", 3)
	if len(parts) != 3 {
		return engine.Seed{}, fmt.Errorf("expected address:port:publickey")
	}
	port, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return engine.Seed{}, fmt.Errorf("bad port: %v", err)
	}
	pub, err := z85.DecodeKey(parts[2])
	if err != nil {
		return engine.Seed{}, fmt.Errorf("bad public key: %v", err)
	}
	addr := net.ParseIP(parts[0])
	if addr == nil {
		return engine.Seed{}, fmt.Errorf("bad address %q", parts[0])
	}
	return engine.Seed{Addr: addr, Port: uint16(port), PublicKey: pub}, nil
}

// watchSeeds re-reads path on every write and feeds newly-seen seeds
// into e.AddSeed without a restart (SPEC_FULL §6.2).
func watchSeeds(path string, e *engine.Engine) {
	events := make(chan notify.EventInfo, 8)
	if err := notify.Watch(path, events, notify.Write); err != nil {
		logger.Std.Warnf("seeds: can't watch %s: %v", path, err)
		return
	}
	defer notify.Stop(events)

	debounce := time.NewTimer(0)
	<-debounce.C
	for {
		select {
		case <-events:
			debounce.Reset(250 * time.Millisecond)
		case <-debounce.C:
			seeds, err := parseSeedFile(path)
			if err != nil {
				logger.Std.Warnf("seeds: reload failed: %v", err)
				continue
			}
			for _, s := range seeds {
				e.AddSeed(s)
			}
		}
	}
}

// serveClientShim accepts a single TCP client at a time and relays
// length-prefixed frames between it and the engine's actor pipe. It is
// a thin transport shim, not part of the client command protocol
// itself (spec §1's "thin client facade" is explicitly out of scope;
// this exists only so cmd/kadctl has a socket to speak to).
func serveClientShim(addr string, p *pipe.Pipe) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		handleClientConn(conn, p)
	}
}

func handleClientConn(conn net.Conn, p *pipe.Pipe) {
	defer conn.Close()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			f, ok := p.Recv()
			if !ok {
				return
			}
			if err := writeFrame(conn, f); err != nil {
				return
			}
		}
	}()

	for {
		f, err := readFrame(conn)
		if err != nil {
			break
		}
		p.Send(f)
		if string(f) == string(pipe.Terminate) {
			break
		}
	}
	<-done
}

func writeFrame(conn net.Conn, f pipe.Frame) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(f)))
	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := conn.Write(f)
	return err
}

func readFrame(conn net.Conn) (pipe.Frame, error) {
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
