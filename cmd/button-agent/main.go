// Command button-agent keeps the device online and relays button presses
// and address changes to an MQTT broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sweeney/button-agent/internal/agent"
	"github.com/sweeney/button-agent/internal/config"
	"github.com/sweeney/button-agent/internal/gpio"
	"github.com/sweeney/button-agent/internal/logging"
	"github.com/sweeney/button-agent/internal/netif"
	"github.com/sweeney/button-agent/internal/relay"
	"github.com/sweeney/button-agent/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	printState := flag.Bool("print-state", false, "Print button level, MAC and IPv4 and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*configPath, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath string, printState bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	telemetry.SetBuildInfo(version)

	deps, closeDeps, err := agent.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDeps()

	if printState {
		return writeState(os.Stdout, deps.Button, deps.Identity, cfg.GPIO.ButtonActiveLow)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = agent.New(cfg, deps, logger).Run(ctx)
	if ctx.Err() != nil {
		logger.Info("shutting down", zap.Error(ctx.Err()))
	}
	return err
}

// writeState prints one line with the button state and the device
// identity. Identity errors are printed in place of the value.
func writeState(w io.Writer, button gpio.Input, id netif.Identity, activeLow bool) error {
	level, err := button.Level()
	if err != nil {
		return fmt.Errorf("read button: %w", err)
	}
	pressed := level == gpio.High
	if activeLow {
		pressed = level == gpio.Low
	}
	state := "RELEASED"
	if pressed {
		state = "PRESSED"
	}

	mac := "unknown"
	if hw, err := id.HardwareAddr(); err == nil {
		mac = relay.FormatHardwareAddr(hw)
	}

	ip := "none"
	addr, err := id.IPv4()
	switch {
	case err == nil:
		ip = relay.FormatAddress(addr)
	case !errors.Is(err, netif.ErrNoAddress):
		ip = "error: " + err.Error()
	}

	_, err = fmt.Fprintf(w, "Button: %s (%s), MAC: %s, IP: %s\n", state, level, mac, ip)
	return err
}
