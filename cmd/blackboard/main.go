// Command blackboard runs the whiteboard relay and a headless participant.
//
//	blackboard serve                         run the relay
//	blackboard create                        create a room, print its invite link
//	blackboard join   -room ID -out DIR      mirror a room, export its pages on exit
//	blackboard ingest -room ID -file F       put an image or PDF page range on a room
//	blackboard export -room ID -out DIR      export a stored room without joining
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"blackboard/internal/config"
	"blackboard/internal/logging"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	stdout io.Writer
	// loadConfig is swapped in tests.
	loadConfig func(path string) (*config.Config, error)
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.stdout, "Usage:")
	fmt.Fprintln(cli.stdout, "  serve  [-config FILE]                                  run the relay")
	fmt.Fprintln(cli.stdout, "  create [-config FILE] [-base URL]                      create a room")
	fmt.Fprintln(cli.stdout, "  join   [-config FILE] -room ID|-invite URL [-out DIR] [-for DURATION]")
	fmt.Fprintln(cli.stdout, "  ingest [-config FILE] -room ID -file FILE [-page N] [-pages A-B]")
	fmt.Fprintln(cli.stdout, "  export [-config FILE] -room ID [-out DIR]              export stored pages as PNG")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	switch args[1] {
	case "serve":
		return cli.serve(ctx, args[2:])
	case "create":
		return cli.create(ctx, args[2:])
	case "join":
		return cli.join(ctx, args[2:])
	case "ingest":
		return cli.ingest(ctx, args[2:])
	case "export":
		return cli.export(ctx, args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

// setup parses the shared -config flag after fs's own flags, then loads the
// configuration and initializes logging.
func (cli *commandLine) setup(fs *flag.FlagSet, args []string) (*config.Config, error) {
	path := fs.String("config", "", "config file (default: $CONFIG_PATH or ./blackboard.yaml)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := cli.loadConfig(*path)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &commandLine{stdout: os.Stdout, loadConfig: config.Load}
	if err := cli.run(ctx, os.Args); err != nil {
		if errors.Is(err, errHelp) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logging.Error().Err(err).Msg("blackboard failed")
		os.Exit(1)
	}
}
