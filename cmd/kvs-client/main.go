/*
 *
 * Copyright 2025 The Concurrent-KVS Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// kvs-client attaches to a running kvs-server's shared segment and issues
// operations against it, either as one-shot subcommands or through an
// interactive REPL.
//
// Usage:
//
//	kvs-client [flags] get KEY
//	kvs-client [flags] set KEY VALUE
//	kvs-client [flags] post KEY VALUE
//	kvs-client [flags] del KEY
//	kvs-client [flags] repl
//
// The segment is resolved from --segment, the info file, or the control
// socket, in that order.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/Leoul-Dem/Concurrent-KVS/internal/control"
	"github.com/Leoul-Dem/Concurrent-KVS/internal/kvs"
	"github.com/Leoul-Dem/Concurrent-KVS/internal/shm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kvs-client:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		segment  = flag.String("segment", "", "shared memory segment name")
		socket   = flag.String("socket", "", "control socket path")
		infoFile = flag.String("info-file", "", "rendezvous info file path")
		timeout  = flag.Duration("timeout", 5*time.Second, "per-operation timeout")
	)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		return fmt.Errorf("missing command (get, set, post, del, repl)")
	}

	name, err := resolveSegment(*segment, *infoFile, *socket)
	if err != nil {
		return err
	}

	seg, err := shm.OpenSegment(name)
	if err != nil {
		return fmt.Errorf("attach segment %q: %w", name, err)
	}
	defer seg.Close()

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := seg.WaitForServer(waitCtx); err != nil {
		return fmt.Errorf("server not ready on segment %q: %w", name, err)
	}
	seg.Header().SetClientReady(true)

	shared, err := kvs.Attach[int64, int64](seg.ContextBytes())
	if err != nil {
		return fmt.Errorf("attach shared context: %w", err)
	}

	client, err := kvs.NewClient(shared, 0, *timeout)
	if err != nil {
		return err
	}

	if args[0] == "repl" {
		return repl(client)
	}
	out, err := execute(client, args)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// resolveSegment picks the segment name from the flag, the info file, or a
// control-socket rendezvous, in that order.
func resolveSegment(segment, infoFile, socket string) (string, error) {
	if segment != "" {
		return segment, nil
	}
	if infoFile == "" {
		infoFile = DefaultInfoFile()
	}
	if info, err := control.ReadInfoFile(infoFile); err == nil {
		return info.Segment, nil
	}
	if socket == "" {
		socket = DefaultSocket()
	}
	name, err := control.Dial(socket, 0)
	if err != nil {
		return "", fmt.Errorf("no --segment, no readable info file, and rendezvous failed: %w", err)
	}
	return name, nil
}

// DefaultSocket mirrors the server's default control socket path.
func DefaultSocket() string {
	return os.TempDir() + "/kvs_control.sock"
}

// DefaultInfoFile mirrors the server's default info file path.
func DefaultInfoFile() string {
	return os.TempDir() + "/kvs_info.json"
}

// execute runs one command line against the store and renders the result.
func execute(client *kvs.Client[int64, int64], args []string) (string, error) {
	parseKey := func() (int64, error) {
		if len(args) < 2 {
			return 0, fmt.Errorf("%s: missing key", args[0])
		}
		return strconv.ParseInt(args[1], 10, 64)
	}
	parseKeyValue := func() (int64, int64, error) {
		key, err := parseKey()
		if err != nil {
			return 0, 0, err
		}
		if len(args) < 3 {
			return 0, 0, fmt.Errorf("%s: missing value", args[0])
		}
		value, err := strconv.ParseInt(args[2], 10, 64)
		return key, value, err
	}

	switch args[0] {
	case "get":
		key, err := parseKey()
		if err != nil {
			return "", err
		}
		if value, ok := client.Get(key); ok {
			return strconv.FormatInt(value, 10), nil
		}
		return "(not found)", nil

	case "set":
		key, value, err := parseKeyValue()
		if err != nil {
			return "", err
		}
		if !client.Set(key, value) {
			return "", fmt.Errorf("set %d failed", key)
		}
		return "OK", nil

	case "post":
		key, value, err := parseKeyValue()
		if err != nil {
			return "", err
		}
		if !client.Post(key, value) {
			return "(exists)", nil
		}
		return "OK", nil

	case "del":
		key, err := parseKey()
		if err != nil {
			return "", err
		}
		if !client.Del(key) {
			return "(not found)", nil
		}
		return "OK", nil

	case "queue":
		return strconv.Itoa(client.QueueSize()), nil

	default:
		return "", fmt.Errorf("unknown command %q", args[0])
	}
}

// repl runs an interactive loop with history and completion over the same
// commands as the one-shot mode.
func repl(client *kvs.Client[int64, int64]) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	commands := []string{"get", "set", "post", "del", "queue", "help", "quit"}
	line.SetCompleter(func(prefix string) (out []string) {
		for _, c := range commands {
			if strings.HasPrefix(c, strings.ToLower(prefix)) {
				out = append(out, c)
			}
		}
		return out
	})

	fmt.Println("kvs repl; type 'help' for commands, 'quit' to exit")
	for {
		input, err := line.Prompt("kvs> ")
		if err != nil {
			// liner returns ErrPromptAborted on ctrl-c and io.EOF on ctrl-d.
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		fields := strings.Fields(input)
		switch fields[0] {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Println("commands: get K | set K V | post K V | del K | queue | quit")
			continue
		}

		out, err := execute(client, fields)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Println(out)
	}
}
