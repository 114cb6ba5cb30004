package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"budgetlist/internal/core"
	"budgetlist/internal/export"
)

var errUsage = errors.New("wrong number of arguments")

// moneyFlag parses amounts like "12.50" or "12,50".
type moneyFlag struct {
	value core.Money
	set   bool
}

func (m *moneyFlag) String() string {
	if !m.set {
		return ""
	}
	return m.value.Decimal().StringFixed(2)
}

func (m *moneyFlag) Set(s string) error {
	v, err := core.ParseMoney(s)
	if err != nil {
		return err
	}
	m.value, m.set = v, true
	return nil
}

func (m *moneyFlag) ptr() *core.Money {
	if !m.set {
		return nil
	}
	v := m.value
	return &v
}

type newCmd struct {
	budget moneyFlag
}

func (*newCmd) Name() string     { return "new" }
func (*newCmd) Synopsis() string { return "create a list" }
func (*newCmd) Usage() string {
	return "new -budget <amount> <name>\n"
}

func (c *newCmd) SetFlags(f *flag.FlagSet) {
	f.Var(&c.budget, "budget", "spending limit for the list")
}

func (c *newCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := fromArgs(args)
	name := strings.Join(f.Args(), " ")
	if name == "" || !c.budget.set {
		fmt.Fprint(a.errOut, c.Usage())
		return subcommands.ExitUsageError
	}

	snap, err := a.dev.CreateList(ctx, core.NewList{Name: name, Budget: c.budget.value})
	if err != nil {
		return fail(a, err)
	}
	fmt.Fprintf(a.out, "created %s (%s)\n", snap.List.ID, snap.List.Provenance)
	return subcommands.ExitSuccess
}

type historyCmd struct{}

func (*historyCmd) Name() string           { return "history" }
func (*historyCmd) Synopsis() string       { return "show all lists, newest first" }
func (*historyCmd) Usage() string          { return "history\n" }
func (*historyCmd) SetFlags(*flag.FlagSet) {}

func (*historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := fromArgs(args)
	snaps, err := a.dev.History(ctx)
	if err != nil {
		return fail(a, err)
	}
	if len(snaps) == 0 {
		fmt.Fprintln(a.out, "no lists yet")
		return subcommands.ExitSuccess
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSPENT\tBUDGET\tSTATUS\tWHERE\tCREATED")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.List.ID, s.List.Name, s.Totals.Spent, s.List.Budget, s.Totals.Status,
			s.List.Provenance, s.List.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	if err := tw.Flush(); err != nil {
		return fail(a, err)
	}
	return subcommands.ExitSuccess
}

type showCmd struct {
	format string
}

func (*showCmd) Name() string     { return "show" }
func (*showCmd) Synopsis() string { return "print a list report" }
func (*showCmd) Usage() string {
	return "show [-format md|html] <list-id>\n"
}

func (c *showCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.format, "format", export.FormatMarkdown, "report format: md or html")
}

func (c *showCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := fromArgs(args)
	if f.NArg() != 1 {
		fmt.Fprint(a.errOut, c.Usage())
		return subcommands.ExitUsageError
	}

	body, err := a.dev.Export(ctx, f.Arg(0), c.format)
	if err != nil {
		return fail(a, err)
	}
	if _, err := a.out.Write(body); err != nil {
		return fail(a, err)
	}
	return subcommands.ExitSuccess
}

type addCmd struct {
	quantity int
	value    moneyFlag
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "add an item to a list" }
func (*addCmd) Usage() string {
	return "add [-qty n] -value <amount> <list-id> <name>\n"
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.quantity, "qty", 1, "number of units")
	f.Var(&c.value, "value", "price of one unit")
}

func (c *addCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := fromArgs(args)
	if f.NArg() < 2 || !c.value.set {
		fmt.Fprint(a.errOut, c.Usage())
		return subcommands.ExitUsageError
	}

	listID := f.Arg(0)
	item, err := a.dev.AddItem(ctx, listID, core.NewItem{
		Name:      strings.Join(f.Args()[1:], " "),
		Quantity:  c.quantity,
		UnitValue: c.value.value,
	})
	if err != nil {
		return fail(a, err)
	}
	fmt.Fprintf(a.out, "added %s: %d x %s = %s\n", item.ID, item.Quantity, item.UnitValue, item.LineTotal())
	return subcommands.ExitSuccess
}

type editCmd struct {
	name     string
	budget   moneyFlag
	quantity int
	value    moneyFlag
}

func (*editCmd) Name() string     { return "edit" }
func (*editCmd) Synopsis() string { return "change a list or one of its items" }
func (*editCmd) Usage() string {
	return `edit [-name s] [-budget amount] <list-id>
edit [-name s] [-qty n] [-value amount] <list-id> <item-id>
`
}

func (c *editCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "new name")
	f.Var(&c.budget, "budget", "new list budget")
	f.IntVar(&c.quantity, "qty", 0, "new item quantity")
	f.Var(&c.value, "value", "new item unit value")
}

func (c *editCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := fromArgs(args)
	set := visited(f)

	switch f.NArg() {
	case 1:
		patch := core.ListPatch{Budget: c.budget.ptr()}
		if set["name"] {
			patch.Name = &c.name
		}
		snap, err := a.dev.UpdateList(ctx, f.Arg(0), patch)
		if err != nil {
			return fail(a, err)
		}
		fmt.Fprintf(a.out, "%s: %s of %s (%s)\n", snap.List.Name, snap.Totals.Spent, snap.List.Budget, snap.Totals.Status)
	case 2:
		patch := core.ItemPatch{UnitValue: c.value.ptr()}
		if set["name"] {
			patch.Name = &c.name
		}
		if set["qty"] {
			patch.Quantity = &c.quantity
		}
		item, err := a.dev.UpdateItem(ctx, f.Arg(0), f.Arg(1), patch)
		if err != nil {
			return fail(a, err)
		}
		fmt.Fprintf(a.out, "updated %s: %d x %s\n", item.Name, item.Quantity, item.UnitValue)
	default:
		fmt.Fprint(a.errOut, c.Usage())
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}

type rmCmd struct{}

func (*rmCmd) Name() string           { return "rm" }
func (*rmCmd) Synopsis() string       { return "delete a list or one of its items" }
func (*rmCmd) Usage() string          { return "rm <list-id> [item-id]\n" }
func (*rmCmd) SetFlags(*flag.FlagSet) {}

func (c *rmCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := fromArgs(args)
	var err error
	switch f.NArg() {
	case 1:
		err = a.dev.DeleteList(ctx, f.Arg(0))
	case 2:
		err = a.dev.DeleteItem(ctx, f.Arg(0), f.Arg(1))
	default:
		err = errUsage
	}
	if errors.Is(err, errUsage) {
		fmt.Fprint(a.errOut, c.Usage())
		return subcommands.ExitUsageError
	}
	if err != nil {
		return fail(a, err)
	}
	fmt.Fprintln(a.out, "deleted")
	return subcommands.ExitSuccess
}

type loginCmd struct {
	email    string
	password string
	name     string
	register bool
}

func (*loginCmd) Name() string     { return "login" }
func (*loginCmd) Synopsis() string { return "sign in to the server and remember the session" }
func (*loginCmd) Usage() string {
	return "login [-register -name <name>] -email <email> -password <password>\n"
}

func (c *loginCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.email, "email", "", "account email")
	f.StringVar(&c.password, "password", "", "account password")
	f.StringVar(&c.name, "name", "", "display name when registering")
	f.BoolVar(&c.register, "register", false, "create the account first")
}

func (c *loginCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := fromArgs(args)
	if c.email == "" || c.password == "" {
		fmt.Fprint(a.errOut, c.Usage())
		return subcommands.ExitUsageError
	}
	if a.client == nil {
		return fail(a, errors.New("no server configured, set SERVER_URL"))
	}

	if c.register {
		if _, err := a.client.Register(ctx, c.email, c.password, c.name); err != nil {
			return fail(a, fmt.Errorf("register: %w", err))
		}
	}
	token, err := a.client.Login(ctx, c.email, c.password)
	if err != nil {
		return fail(a, fmt.Errorf("login: %w", err))
	}
	if err := saveToken(a.fs, token); err != nil {
		return fail(a, fmt.Errorf("save session: %w", err))
	}
	fmt.Fprintf(a.out, "logged in as %s\n", c.email)
	return subcommands.ExitSuccess
}

type logoutCmd struct{}

func (*logoutCmd) Name() string           { return "logout" }
func (*logoutCmd) Synopsis() string       { return "forget the saved session" }
func (*logoutCmd) Usage() string          { return "logout\n" }
func (*logoutCmd) SetFlags(*flag.FlagSet) {}

func (*logoutCmd) Execute(_ context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := fromArgs(args)
	if err := clearToken(a.fs); err != nil {
		return fail(a, err)
	}
	fmt.Fprintln(a.out, "logged out")
	return subcommands.ExitSuccess
}

func visited(f *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	f.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return set
}
