// Command spool-enqueue reads JSON messages and adds them to the spool.
//
// Input is a single message object or a JSON array of them, for example
//
//	{"from":"app@example.com","to":["user@example.com"],"subject":"Hi","body":"Hello"}
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/velmie/spool"
	"github.com/velmie/spool/cmd/internal/backend"
	"github.com/velmie/spool/zaplog"
)

var errNoMessages = errors.New("spool-enqueue: no messages in input")

func main() {
	if err := backend.LoadEnv(); err != nil {
		log.Fatal(err)
	}

	var (
		store   backend.Options
		input   string
		verbose bool
	)

	store.Register(flag.CommandLine)
	flag.StringVar(&input, "in", "-", "Input file, - reads stdin")
	flag.BoolVar(&verbose, "verbose", backend.EnvBool("VERBOSE", false), "Enable debug logging")
	flag.Parse()

	if err := run(context.Background(), store, input, verbose, os.Stdout); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts backend.Options, input string, verbose bool, out io.Writer) error {
	data, err := readInput(input)
	if err != nil {
		return err
	}
	msgs, err := decodeMessages(data)
	if err != nil {
		return err
	}

	logger, syncLogger, err := zaplog.NewProduction(verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = syncLogger() }()

	store, closeStore, err := backend.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("close store failed", "err", err)
		}
	}()

	s, err := spool.New(store, spool.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("init spool: %w", err)
	}
	for i, msg := range msgs {
		id, err := s.Enqueue(ctx, msg)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		fmt.Fprintln(out, id)
	}

	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}

		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return data, nil
}

func decodeMessages(data []byte) ([]spool.Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errNoMessages
	}

	var msgs []spool.Message
	if data[0] == '[' {
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
	} else {
		var msg spool.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil, errNoMessages
	}

	return msgs, nil
}
