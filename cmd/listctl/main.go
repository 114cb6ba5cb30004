// Command listctl manages shopping lists from the terminal. Lists are kept
// on the server when logged in and reachable, and on the device otherwise.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/subcommands"

	"budgetlist/internal/cli"
	"budgetlist/internal/config"
	"budgetlist/internal/device"
	"budgetlist/internal/local"
	"budgetlist/internal/log"
	"budgetlist/internal/remote"
)

// app is handed to every subcommand through Execute's variadic args.
type app struct {
	dev    *device.Device
	client *remote.Client // nil when no server is configured
	fs     billy.Filesystem
	out    io.Writer
	errOut io.Writer
}

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentDevice, (*config.Config).ValidateClient)

	if err := os.MkdirAll(cfg.LocalDataDir, 0o700); err != nil {
		fmt.Fprintln(os.Stderr, "listctl:", err)
		os.Exit(1)
	}
	a, err := newApp(osfs.New(cfg.LocalDataDir), cfg.ServerURL, cfg.APIToken, logger, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "listctl:", err)
		os.Exit(1)
	}

	cmdr := subcommands.NewCommander(flag.CommandLine, "listctl")
	register(cmdr)
	flag.Parse()

	ctx, stop := cli.SignalContext()
	status := cmdr.Execute(ctx, a)
	stop()
	os.Exit(int(status))
}

func register(cmdr *subcommands.Commander) {
	cmdr.Register(cmdr.HelpCommand(), "")
	cmdr.Register(cmdr.FlagsCommand(), "")
	cmdr.Register(cmdr.CommandsCommand(), "")

	cmdr.Register(&newCmd{}, "lists")
	cmdr.Register(&historyCmd{}, "lists")
	cmdr.Register(&showCmd{}, "lists")
	cmdr.Register(&editCmd{}, "lists")
	cmdr.Register(&rmCmd{}, "lists")
	cmdr.Register(&addCmd{}, "items")
	cmdr.Register(&loginCmd{}, "session")
	cmdr.Register(&logoutCmd{}, "session")
}

// newApp wires a device over the Local Store in fs. The server is optional;
// an explicit token wins over the saved session.
func newApp(fs billy.Filesystem, serverURL, token string, logger *log.Logger, out, errOut io.Writer) (*app, error) {
	if token == "" {
		saved, err := loadToken(fs)
		if err != nil {
			return nil, fmt.Errorf("read session: %w", err)
		}
		token = saved
	}

	a := &app{fs: fs, out: out, errOut: errOut}
	var server device.Server
	if serverURL != "" {
		client, err := remote.New(serverURL, remote.WithToken(token))
		if err != nil {
			return nil, err
		}
		a.client = client
		server = client
	}
	a.dev = device.New(local.New(fs), server, logger)
	return a, nil
}

func fromArgs(args []interface{}) *app {
	return args[0].(*app)
}

func fail(a *app, err error) subcommands.ExitStatus {
	fmt.Fprintln(a.errOut, "listctl:", err)
	return subcommands.ExitFailure
}
