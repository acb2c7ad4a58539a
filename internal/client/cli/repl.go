package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL dispatches to. App satisfies
// it; tests use a stub.
type execIface interface {
	isLoggedIn() bool

	Terms(ctx context.Context, args []string) error
	SetTerm(ctx context.Context, args []string) error
	Search(ctx context.Context, args []string) error
	Sections(ctx context.Context, args []string) error
	Select(ctx context.Context, args []string) error
	SelectAll(ctx context.Context, args []string) error
	ShowSelection(ctx context.Context) error
	ClearSelection(ctx context.Context) error
	Alert(ctx context.Context) error

	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Subscriptions(ctx context.Context, args []string) error
	Unsubscribe(ctx context.Context, args []string) error
}

const (
	helpCommon = `Commands:
  terms [all]                       list terms open for registration (or all)
  term <code>                       choose the term to browse
  search <text>                     find courses in the term
  sections <subject course>         list the sections of a course
  select <crn>...                   add or remove sections
  selectall lectures|labs|tutorials select every section of one type
  selection | clear                 show or empty the selection
  alert                             sign up for alerts on the selection`

	helpSignedOut = `
  login                             sign in with an emailed code
  exit | quit                       leave the program`

	helpSignedIn = `
  subscriptions [filter]            list your alerts in the term
  unsubscribe <crn>                 stop alerts for a section
  whoami                            show the signed-in account
  logout                            sign out
  exit | quit                       leave the program`
)

// runREPL reads commands from reader until EOF, "exit" or a cancelled ctx.
// Command errors are printed and the loop carries on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, out io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}

		prompt := "alerts> "
		if s := statusFn(); s != "" {
			prompt = "alerts " + s + "> "
		}
		fmt.Fprint(out, prompt)

		line, err := reader.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			fmt.Fprintln(out)
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		var cmdErr error
		switch cmd {
		case "help", "?":
			if a.isLoggedIn() {
				fmt.Fprintln(out, helpCommon+helpSignedIn)
			} else {
				fmt.Fprintln(out, helpCommon+helpSignedOut)
			}
		case "terms":
			cmdErr = a.Terms(ctx, args)
		case "term":
			cmdErr = a.SetTerm(ctx, args)
		case "search", "s":
			cmdErr = a.Search(ctx, args)
		case "sections":
			cmdErr = a.Sections(ctx, args)
		case "select":
			cmdErr = a.Select(ctx, args)
		case "selectall":
			cmdErr = a.SelectAll(ctx, args)
		case "selection":
			cmdErr = a.ShowSelection(ctx)
		case "clear":
			cmdErr = a.ClearSelection(ctx)
		case "alert":
			cmdErr = a.Alert(ctx)
		case "login":
			cmdErr = a.Login(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "whoami":
			cmdErr = a.WhoAmI(ctx)
		case "subscriptions", "subs":
			cmdErr = a.Subscriptions(ctx, args)
		case "unsubscribe":
			cmdErr = a.Unsubscribe(ctx, args)
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return
		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintln(out, "Error:", cmdErr)
		}
	}
}
