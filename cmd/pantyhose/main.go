// Command pantyhose starts one message-plane process: a master, or a
// business server type (e.g. "chat"), chosen by the server id present in
// the config file's <servers> section.
//
// Usage:
//
//	pantyhose [config_path] [server_id]
//
// Both arguments default to config.DefaultConfigPath and
// config.DefaultServerID.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"pantyhose/config"
	"pantyhose/errs"
	"pantyhose/forward"
	"pantyhose/lifecycle"
	"pantyhose/message"
)

func main() {
	configPath := config.DefaultConfigPath
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	serverID := config.DefaultServerID
	if len(os.Args) > 2 {
		id, err := strconv.ParseUint(os.Args[2], 10, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pantyhose: invalid server_id %q: %v\n", os.Args[2], err)
			os.Exit(1)
		}
		serverID = uint32(id)
	}

	if err := run(configPath, serverID); err != nil {
		fmt.Fprintf(os.Stderr, "pantyhose: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, serverID uint32) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	srv := lifecycle.New()
	if err := srv.Init(serverID, cfg); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer srv.Dispose()

	registerBusinessHandlers(srv.Dispatcher())

	if err := srv.LateInit(); err != nil {
		return fmt.Errorf("late init: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(ctx) }()

	select {
	case <-sigCh:
		signal.Stop(sigCh)
		cancel()
		return <-runDone
	case err := <-runDone:
		signal.Stop(sigCh)
		return err
	}
}

// registerBusinessHandlers wires the one example business handler this
// binary ships with, a chat echo round trip. A real deployment registers
// its own handlers here before LateInit opens any listener.
func registerBusinessHandlers(d *forward.Dispatcher) {
	d.Register("pantyhose.ChatEchoBRequest", func(ctx *forward.HandlerContext, msg message.TypedMessage) {
		req := msg.(*message.ChatEchoBRequest)
		resp := &message.ChatEchoBResponse{Text: req.Text}
		ctx.Reply(resp.MarshalWire(), errs.Kind(""))
	})
}
