package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"erp-inventory/internal/adapters/cli"
	"erp-inventory/internal/app"
)

var errExit = errors.New("exit")

// Run starts the interactive loop. Each line is a slash command; everything
// except /org, /count and /exit is handed to the one-shot CLI dispatcher.
// It returns when the reader is exhausted or the user types /exit.
func Run(ctx context.Context, svc app.ApplicationService, orgID int64, reader *bufio.Reader, out io.Writer) {
	fmt.Fprintln(out, "Inventory console")
	fmt.Fprintf(out, "Organization: %d\n", orgID)
	fmt.Fprintln(out, "Type /help for commands.")
	fmt.Fprintln(out, strings.Repeat("-", 70))

	dispatch := func(input string) error {
		tokens := strings.Fields(strings.TrimPrefix(input, "/"))
		if len(tokens) == 0 {
			return nil
		}
		cmd := strings.ToLower(tokens[0])
		args := tokens[1:]

		switch cmd {
		case "help", "h":
			fmt.Fprintln(out, cli.Usage)
			fmt.Fprintln(out, "\nConsole only:")
			fmt.Fprintln(out, "  /org <id>                   switch organization")
			fmt.Fprintln(out, "  /count <warehouse>          guided physical count")
			fmt.Fprintln(out, "  /exit                       leave the console")

		case "org":
			if len(args) < 1 {
				fmt.Fprintln(out, "Usage: /org <id>")
				return nil
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				fmt.Fprintf(out, "Invalid organization id %q\n", args[0])
				return nil
			}
			orgID = id
			fmt.Fprintf(out, "Organization: %d\n", orgID)

		case "count":
			if len(args) < 1 {
				fmt.Fprintln(out, "Usage: /count <warehouse>")
				return nil
			}
			handleCount(ctx, reader, out, svc, orgID, args[0])

		case "exit", "quit", "q":
			return errExit

		default:
			return cli.Run(ctx, svc, orgID, append([]string{cmd}, args...), out)
		}
		return nil
	}

	for {
		fmt.Fprint(out, "\n> ")
		input, readErr := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input != "" {
			if !strings.HasPrefix(input, "/") {
				fmt.Fprintln(out, "Commands start with /. Type /help.")
			} else if err := dispatch(input); err != nil {
				if errors.Is(err, errExit) {
					fmt.Fprintln(out, "Goodbye!")
					return
				}
				fmt.Fprintf(out, "Error: %v\n", err)
			}
		}
		if readErr != nil {
			return
		}
	}
}
