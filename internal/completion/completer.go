package completion

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// OriginFunc returns the API origin the completion cache is keyed by.
// Completion runs without PersistentPreRunE, so it is resolved at call time.
type OriginFunc func(cmd *cobra.Command) string

// Completer provides tab completion functions backed by the cache.
type Completer struct {
	dir    string
	origin OriginFunc
}

// NewCompleter creates a Completer reading the cache in dir ("" for the
// default location).
func NewCompleter(dir string, origin OriginFunc) *Completer {
	return &Completer{dir: dir, origin: origin}
}

func (c *Completer) store(cmd *cobra.Command) *Store {
	origin := ""
	if c.origin != nil {
		origin = c.origin(cmd)
	}
	return NewStore(c.dir, origin)
}

// ProjectCompletion completes project ids, described by title. Only the
// first positional argument is completed.
func (c *Completer) ProjectCompletion() cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		projects := slices.Clone(c.store(cmd).Load().Projects)
		slices.SortFunc(projects, func(a, b CachedProject) int { return cmp.Compare(b.ID, a.ID) })

		var out []cobra.Completion
		for _, p := range projects {
			if matches(p.ID, p.Title, toComplete) {
				out = append(out, cobra.CompletionWithDesc(strconv.FormatInt(p.ID, 10), p.Title))
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}

// ContractCompletion completes contract ids, described by project title and
// status. Active contracts come first.
func (c *Completer) ContractCompletion() cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		contracts := slices.Clone(c.store(cmd).Load().Contracts)
		slices.SortStableFunc(contracts, func(a, b CachedContract) int {
			if (a.Status == "Active") != (b.Status == "Active") {
				if a.Status == "Active" {
					return -1
				}
				return 1
			}
			return cmp.Compare(b.ID, a.ID)
		})

		var out []cobra.Completion
		for _, ct := range contracts {
			if !matches(ct.ID, ct.ProjectTitle, toComplete) {
				continue
			}
			desc := ct.ProjectTitle
			if ct.Status != "" {
				desc += " (" + ct.Status + ")"
			}
			out = append(out, cobra.CompletionWithDesc(strconv.FormatInt(ct.ID, 10), desc))
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}

// matches accepts an id prefix or a case-insensitive substring of the title.
func matches(id int64, title, toComplete string) bool {
	if toComplete == "" || strings.HasPrefix(strconv.FormatInt(id, 10), toComplete) {
		return true
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(toComplete))
}
