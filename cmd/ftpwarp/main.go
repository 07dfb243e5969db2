// Command ftpwarp is the single-binary C7 driver: it parses flags, wires a
// Supervisor and, if the remote path is a directory, a Walker, attaches a
// display refresh hook, and handles user interrupt by issuing a graceful
// global abort rather than killing the process outright.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli"

	"github.com/ftpwarp/ftpwarp/cmd/common"
	"github.com/ftpwarp/ftpwarp/internal/display"
	"github.com/ftpwarp/ftpwarp/pkg/ftplib"
	ftplogger "github.com/ftpwarp/ftpwarp/pkg/logger"
)

var version = "dev"

func main() {
	if err := Execute(os.Args); err != nil {
		fmt.Printf("ftpwarp: %s\n", err.Error())
		os.Exit(1)
	}
}

func Execute(args []string) error {
	var (
		server              string
		username            string
		password            string
		remotePath          string
		localPath           string
		port                int
		connections         int
		minBlocksPerSegment int
		maxBlocksPerSegment int
		blocksize           int
		killSpeed           float64
		displayMode         string
		clean               bool
		enableTLS           bool
		debug               bool
	)

	app := cli.App{
		Name:         "ftpwarp",
		HelpName:     "ftpwarp",
		Usage:        "a multi-segment, resumable FTP downloader",
		Version:      version,
		OnUsageError: common.UsageErrorCallback,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "server", Usage: "FTP server host name", Destination: &server},
			cli.StringFlag{Name: "username", Value: "anonymous", Destination: &username},
			cli.StringFlag{Name: "password", Value: "password", Destination: &password},
			cli.StringFlag{Name: "remote_path", Usage: "remote file or directory to download", Destination: &remotePath},
			cli.StringFlag{Name: "local_path", Value: ".", Destination: &localPath},
			cli.IntFlag{Name: "port", Value: 21, Destination: &port},
			cli.IntFlag{Name: "connections", Value: ftplib.DefaultConnections, Destination: &connections},
			cli.IntFlag{Name: "min_blocks_per_segment", Value: ftplib.DefaultMinBlocksPerSegment, Destination: &minBlocksPerSegment},
			cli.IntFlag{Name: "max_blocks_per_segment", Value: ftplib.DefaultMaxBlocksPerSegment, Destination: &maxBlocksPerSegment},
			cli.IntFlag{Name: "blocksize", Value: ftplib.DefaultBlocksize, Destination: &blocksize},
			cli.Float64Flag{Name: "kill_speed", Value: ftplib.DefaultKillSpeed, Destination: &killSpeed},
			cli.StringFlag{Name: "display_mode", Value: string(display.ModeFull), Destination: &displayMode},
			cli.BoolFlag{Name: "clean", Destination: &clean},
			cli.BoolFlag{Name: "enable_tls", Destination: &enableTLS},
			cli.BoolFlag{Name: "debug", Destination: &debug},
		},
		Action: func(ctx *cli.Context) error {
			if server == "" || remotePath == "" {
				return common.PrintErrWithHelp(ctx, fmt.Errorf("--server and --remote_path are required"))
			}

			logf, lg := setupLogger()
			if logf != nil {
				defer logf.Close()
			}
			if debug {
				lg = ftplogger.NewMultiLogger(lg, ftplogger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags)))
			}

			sup := ftplib.NewSupervisor(server, port)
			sup.Username = username
			sup.Password = password
			sup.UseTLS = enableTLS
			sup.Connections = connections
			sup.MinBlocksPerSegment = minBlocksPerSegment
			sup.MaxBlocksPerSegment = maxBlocksPerSegment
			sup.Blocksize = int64(blocksize)
			sup.KillSpeed = killSpeed
			sup.Logger = lg

			d := display.New(display.Mode(displayMode))
			defer d.Close()
			sup.Refresh = d.Refresh

			// A signal triggers a global abort rather than process exit, so
			// any in-flight coalesced write finishes and the blockmap is
			// left on disk for a later resume.
			stop := setupShutdownHandler(sup.AbortAll)
			defer stop()

			w := ftplib.NewWalker(sup)
			w.Clean = clean

			err := w.Walk(context.Background(), remotePath, localPath)
			if err != nil {
				lg.Error("download failed: %v", err)
				if debug {
					return fmt.Errorf("%+v", err)
				}
				return err
			}
			return nil
		},
	}
	return app.Run(args)
}

// setupLogger opens a per-run log file the way the teacher's dloader.go
// setupLogger does, falling back to a discard logger if the file can't be
// created. Every line is prefixed with a fresh correlation id so that
// interleaved runs against the same log file can still be told apart.
func setupLogger() (*os.File, ftplogger.Logger) {
	f, err := os.OpenFile("ftpwarp.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, ftplib.DefaultFileMode)
	if err != nil {
		return nil, ftplogger.NewNopLogger()
	}
	prefix := "[" + ftplib.NewCorrelationID() + "] "
	return f, ftplogger.NewStandardLogger(log.New(f, prefix, log.LstdFlags))
}
