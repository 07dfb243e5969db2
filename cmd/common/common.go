// Package common provides shared utilities and helper functions for the
// ftpwarp CLI: progress bar initialization, error handling, and help
// display.
package common

import (
	"fmt"
	"strings"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var (
	showAppHelpAndExit = cli.ShowAppHelpAndExit
	showCommandHelp    = cli.ShowCommandHelp
)

// SetShowAppHelpAndExit overrides the app-help callback (tests only) and
// returns the previous value so it can be restored.
func SetShowAppHelpAndExit(fn func(*cli.Context, int)) func(*cli.Context, int) {
	prev := showAppHelpAndExit
	showAppHelpAndExit = fn
	return prev
}

// SetShowCommandHelp overrides the command-help callback (tests only) and
// returns the previous value so it can be restored.
func SetShowCommandHelp(fn func(*cli.Context, string) error) func(*cli.Context, string) error {
	prev := showCommandHelp
	showCommandHelp = fn
	return prev
}

// InitBars creates and configures a pair of stacked progress bars for one
// file transfer: dbar tracks bytes received from the wire (blocks in
// SAVING or DOWNLOADED state) and cbar tracks bytes durably flushed to disk
// (blocks in DOWNLOADED state only), mirroring the blockmap's two-stage
// SAVING -> DOWNLOADED transition. The prefix parameter is prepended to bar
// labels, and cLength is the file's total byte length.
func InitBars(p *mpb.Progress, prefix string, cLength int64) (dbar *mpb.Bar, cbar *mpb.Bar) {
	return InitBarsWithProgress(p, prefix, cLength, 0)
}

// InitBarsWithProgress is InitBars but seeds both bars at initialProgress
// bytes, for resuming a partially-downloaded file where the blockmap already
// shows some blocks DOWNLOADED.
func InitBarsWithProgress(p *mpb.Progress, prefix string, cLength, initialProgress int64) (dbar *mpb.Bar, cbar *mpb.Bar) {
	barStyle := mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")

	name := prefix + "Receiving"
	dbar = p.New(0,
		barStyle,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.OnComplete(
				decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WC{W: 4}), "Complete",
			),
		),
		mpb.AppendDecorators(
			decor.EwmaSpeed(decor.SizeB1024(0), "% .2f", 30),
		),
	)
	dbar.SetTotal(cLength, false)
	dbar.SetCurrent(initialProgress)
	dbar.EnableTriggerComplete()

	name = prefix + "Writing"
	cbar = p.New(0,
		barStyle,
		mpb.BarQueueAfter(dbar),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "Complete",
			),
		),
		mpb.AppendDecorators(
			decor.AverageSpeed(decor.SizeB1024(0), "% .2f"),
		),
	)
	cbar.SetTotal(cLength, false)
	cbar.SetCurrent(initialProgress)
	cbar.EnableTriggerComplete()
	return
}

// Help displays help information for the application or a specific command.
// If no argument is provided or the argument is "help", it displays the
// application-level help and exits. Otherwise, it shows help for the
// specified command name.
func Help(ctx *cli.Context) error {
	arg := ctx.Args().First()
	if arg == "" || arg == "help" {
		fmt.Printf("%s %s\n", ctx.App.Name, ctx.App.Version)
		showAppHelpAndExit(ctx, 0)
		return nil
	}
	err := showCommandHelp(ctx, arg)
	if err != nil {
		return err
	}
	err = PrintErrWithHelp(ctx, err)
	if err != nil {
		return err
	}
	return nil
}

// GetVersion prints the running binary's version, taken from the app's own
// Version field (set once in main.go from the build-time version string),
// and returns nil.
func GetVersion(ctx *cli.Context) error {
	fmt.Println(ctx.App.Version)
	return nil
}

// PrintErrWithHelp prints the error message followed by the application-level
// help text and exits with status code 1. It is used for errors that occur
// at the application level rather than within a specific command.
func PrintErrWithHelp(ctx *cli.Context, err error) error {
	return printErrWithCallback(
		ctx,
		err,
		func() {
			showAppHelpAndExit(ctx, 1)
		},
	)
}

func printErrWithCallback(ctx *cli.Context, err error, callback func()) error {
	if err == nil {
		return nil
	}
	estr := strings.ToLower(err.Error())
	if estr == "flag: help requested" {
		return Help(ctx)
	}
	if strings.Contains(estr, "-version") ||
		strings.Contains(estr, "-v") {
		return GetVersion(ctx)
	}
	fmt.Printf("%s: %s\n\n", ctx.App.HelpName, err.Error())
	callback()
	return nil
}

// UsageErrorCallback handles usage errors from the CLI framework: ftpwarp
// is a single-command app (its Action does the whole run, no subcommands of
// its own besides urfave/cli's built-in help), so every usage error is an
// application-level one. This is the OnUsageError callback for cli.App.
func UsageErrorCallback(ctx *cli.Context, err error, _ bool) error {
	return PrintErrWithHelp(ctx, err)
}
