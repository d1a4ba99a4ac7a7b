package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/vmjit/hhir/internal/tracelet"
)

func main() {
	doMain(os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut io.Writer, stdErr io.Writer, exit func(code int)) {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "print usage")

	var optionsPath string
	flag.StringVar(&optionsPath, "options", "", "path to a TOML options file")

	var verbosity int
	flag.IntVar(&verbosity, "v", 0, "log verbosity, overriding the options file when non-zero")

	var logPath string
	flag.StringVar(&logPath, "log", "", "log to this file instead of stderr")

	var guards bool
	flag.BoolVar(&guards, "guards", false, "print the type guards the trace depends on")

	flag.Parse()

	if help {
		printUsage(stdErr)
		exit(0)
		return
	}

	if flag.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to tracelet file")
		printUsage(stdErr)
		exit(1)
		return
	}

	cfg := &tracelet.Config{}
	if optionsPath != "" {
		var err error
		if cfg, err = tracelet.LoadConfig(optionsPath); err != nil {
			fmt.Fprintf(stdErr, "error loading options: %v\n", err)
			exit(1)
			return
		}
	}
	if verbosity != 0 {
		cfg.Log.Verbosity = verbosity
	}
	if logPath != "" {
		cfg.Log.Path = logPath
	}
	if cfg.Log.Path != "" {
		commonlog.Configure(cfg.Log.Verbosity, &cfg.Log.Path)
	} else {
		commonlog.Configure(cfg.Log.Verbosity, nil)
	}

	for i, path := range flag.Args() {
		d, err := tracelet.Load(path)
		if err != nil {
			fmt.Fprintf(stdErr, "error loading tracelet: %v\n", err)
			exit(1)
			return
		}
		res, err := tracelet.Compile(d, cfg.Options())
		if err != nil {
			fmt.Fprintf(stdErr, "error translating tracelet: %v\n", err)
			exit(1)
			return
		}
		if i > 0 {
			fmt.Fprintln(stdOut)
		}
		if flag.NArg() > 1 {
			fmt.Fprintf(stdOut, "# %s\n", path)
		}
		if guards {
			for _, g := range res.Guards {
				fmt.Fprintf(stdOut, "guard %s\n", g)
			}
		}
		fmt.Fprint(stdOut, res.Format())
	}
	exit(0)
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "hhirdump")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  hhirdump <options> <path to tracelet file>...")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flag.PrintDefaults()
}
