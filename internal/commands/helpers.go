package commands

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gigmarket/gig/internal/appctx"
	"github.com/gigmarket/gig/internal/output"
	"github.com/gigmarket/gig/internal/tui"
)

// Prompt functions. Replaced in tests.
var (
	promptForm    = tui.Form
	promptConfirm = tui.ConfirmDangerous
)

// requireApp returns the app stored on the command context.
func requireApp(cmd *cobra.Command) (*appctx.App, error) {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	return app, nil
}

// parseID parses a positive numeric id argument.
func parseID(arg, resource string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, output.ErrUsageHint(
			fmt.Sprintf("Invalid %s ID %q", resource, arg),
			fmt.Sprintf("Use 'gig %ss list' to see available ids", resource))
	}
	return id, nil
}

// fillMissing prompts for the fields that have no value yet. Without a
// terminal it leaves values untouched and validation reports what is missing.
func fillMissing(app *appctx.App, title string, fields []tui.FormField, values map[string]string) error {
	missing := tui.Missing(fields, values)
	if len(missing) == 0 || !app.IsInteractive() {
		return nil
	}
	answers, err := promptForm(title, missing)
	if err != nil {
		return err
	}
	for k, v := range answers {
		values[k] = v
	}
	return nil
}

// confirmDestructive asks before a delete on a terminal unless --yes was
// given. Non-interactive runs proceed.
func confirmDestructive(app *appctx.App, message string, yes bool) error {
	if yes || !app.IsInteractive() {
		return nil
	}
	ok, err := promptConfirm(message)
	if err != nil {
		return err
	}
	if !ok {
		return output.ErrUsage("Canceled")
	}
	return nil
}

// readLine reads a single line, used for --password-stdin.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readText returns value, or the whole of stdin when value is "-".
func readText(app *appctx.App, value string) (string, error) {
	if value != "-" {
		return value, nil
	}
	data, err := io.ReadAll(app.Stdin())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func plural(n int, singular string) string {
	if n == 1 {
		return "1 " + singular
	}
	return fmt.Sprintf("%d %ss", n, singular)
}
