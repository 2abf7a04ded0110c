package cmdutil

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"golang.org/x/term"
)

// ResolveDevice returns a kong.Resolver that, when a required `device`-typed
// flag is left unset, lists the candidates a device lister returns and
// prompts the user to pick one by number. It is the same shape as the
// upstream interactive-prompt resolver this tool started from, applied to
// device selection instead of password entry: the same "ask only if the
// flag is missing, read one line from the controlling terminal" pattern,
// reusing term.ReadPassword for its no-echo read rather than because the
// device path is secret.
func ResolveDevice(list func() ([]string, error)) kong.Resolver {
	return kong.ResolverFunc(func(ctx *kong.Context, parent *kong.Path, flag *kong.Flag) (interface{}, error) {
		if flag.Tag.Type != "device" || !flag.Required || flag.Value.Set && !flag.Value.Target.IsZero() {
			return nil, nil
		}
		if flag.Target.Kind() != reflect.String {
			return nil, fmt.Errorf(`'device' type must be applied to a string not %s`, flag.Target.Type())
		}

		candidates, err := list()
		if err != nil {
			return nil, fmt.Errorf("list devices: %w", err)
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("no HotSync-capable devices found; pass --%s explicitly", flag.Name)
		}
		if len(candidates) == 1 {
			return candidates[0], nil
		}

		fmt.Printf("No value has been provided for flag `%s`.\n", flag.ShortSummary())
		fmt.Println("Multiple candidate devices were found:")
		for i, c := range candidates {
			fmt.Printf("  [%d] %s\n", i+1, c)
		}

		for {
			fmt.Print("Enter the number of the device to use: ")
			raw, err := term.ReadPassword(0)
			fmt.Print("\n")
			if err != nil {
				return "", fmt.Errorf("selection could not be read: %v", err)
			}
			choice := strings.TrimSpace(string(raw))
			n, err := strconv.Atoi(choice)
			if err != nil || n < 1 || n > len(candidates) {
				fmt.Println("Invalid selection, try again.")
				continue
			}
			return candidates[n-1], nil
		}
	})
}
