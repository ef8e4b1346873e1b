// mobilecam-ndi publishes a synthetic mobile-camera feed as an NDI source,
// discovering the upstream stream id from the bridge catalog when one is
// active.
//
// Usage: mobilecam-ndi <source_name> <width> <height> <fps>
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/thesyncim/ndibridge"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <source_name> <width> <height> <fps>\n", os.Args[0])
}

// parseArgs builds a bridge config from the positional arguments. The
// argument surface is deliberately exact: no flags, no environment.
func parseArgs(args []string) (ndibridge.Config, error) {
	cfg := ndibridge.DefaultConfig()
	if len(args) != 4 {
		return cfg, fmt.Errorf("expected 4 arguments, got %d", len(args))
	}

	cfg.SourceName = args[0]

	width, err := strconv.Atoi(args[1])
	if err != nil {
		return cfg, fmt.Errorf("invalid width %q", args[1])
	}
	height, err := strconv.Atoi(args[2])
	if err != nil {
		return cfg, fmt.Errorf("invalid height %q", args[2])
	}
	fps, err := strconv.Atoi(args[3])
	if err != nil {
		return cfg, fmt.Errorf("invalid fps %q", args[3])
	}

	cfg.Spec.Width = width
	cfg.Spec.Height = height
	cfg.Spec.Rate = ndibridge.FrameRate{Num: fps, Den: 1}
	return cfg, nil
}

func run() int {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		usage()
		return 1
	}

	bridge, err := ndibridge.NewBridge(cfg)
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		return 1
	}

	if err := bridge.Run(context.Background()); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
