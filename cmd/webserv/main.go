// Command webserv is the process entry point: it parses CLI arguments,
// builds the logger and configuration registry, and drives
// internal/eventloop.Loop until a shutdown signal arrives.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/webserv/goserv/internal/config"
	"github.com/webserv/goserv/internal/eventloop"
	"github.com/webserv/goserv/internal/logging"
	"github.com/webserv/goserv/internal/session"
	"github.com/webserv/goserv/pkg/constants"
)

var (
	configFlag  string
	logLevel    string
	logJSON     bool
	logFile     string
	showVersion bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "webserv [config_path]",
		Short:         "A configurable HTTP/1.1 origin server with CGI support",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE:          run,
	}
	cmd.Flags().StringVar(&configFlag, "config", "", "path to the server configuration file (equivalent to the positional argument)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "emit structured JSON logs instead of text")
	cmd.Flags().StringVar(&logFile, "log-file", "", "append logs to this file instead of stdout (directory created on demand)")
	cmd.Flags().BoolVarP(&showVersion, "version", "v", false, "print the build version and exit")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Println(constants.ServerSoftware)
		return nil
	}

	path := configFlag
	if path == "" && len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		path = constants.DefaultConfigPath
	}

	log := logging.New(logging.Options{Level: logLevel, JSON: logJSON, FilePath: logFile})

	servers, err := config.Parse(path)
	if err != nil {
		log.WithError(err).Error("configuration parse failed")
		return err
	}
	registry := config.NewRegistry(servers)

	loop, err := eventloop.NewLoop(registry, session.NewStore(), log, path)
	if err != nil {
		log.WithError(err).Error("failed to bind listening sockets")
		return err
	}

	installSignalHandlers(loop)

	log.Info("webserv starting")
	if err := loop.Run(); err != nil {
		log.WithError(err).Error("event loop exited with error")
		return err
	}
	log.Info("webserv shut down cleanly")
	return nil
}

// installSignalHandlers wires OS signals to the loop's cooperative
// flags: SIGINT/SIGTERM/SIGQUIT request a clean shutdown,
// SIGHUP requests a configuration reload, and SIGPIPE is ignored so a
// client closing its read side mid-write surfaces as an EPIPE from
// write(2) instead of killing the process.
func installSignalHandlers(loop *eventloop.Loop) {
	signal.Ignore(syscall.SIGPIPE)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)

	go func() {
		for range shutdown {
			loop.RequestShutdown()
		}
	}()
	go func() {
		for range reload {
			loop.RequestReload()
		}
	}()
}
