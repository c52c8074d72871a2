package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/tradeflow/internal/errors"
	"github.com/felixgeelhaar/tradeflow/internal/module"
)

func newModulesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "modules",
		Aliases: []string{"mcp"},
		Short:   "Inspect and call catalog modules",
	}
	cmd.AddCommand(newModulesListCmd(root), newModulesGetCmd(root), newModulesCallCmd(root))
	return cmd
}

func loadCatalog(root *rootOptions) (*module.Catalog, error) {
	cfg, err := root.load()
	if err != nil {
		return nil, err
	}
	return module.LoadCatalog(cfg.Modules.CatalogFile)
}

func newModulesListCmd(root *rootOptions) *cobra.Command {
	var category string
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(root)
			if err != nil {
				return err
			}

			var f module.Filter
			if category != "" {
				f.Category = module.Category(category)
				if !f.Category.Valid() {
					return errors.NewValidationError(fmt.Sprintf("unknown module type %q", category)).
						WithSuggestion("Use one of securities, data, analysis, report")
				}
			}
			if activeOnly {
				f.Active = &activeOnly
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderModules(catalog.List(f)))
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "type", "", "only list modules of this type")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only list active modules")
	return cmd
}

func renderModules(mods []module.Module) string {
	st := defaultStyles()
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(st.Muted).
		Headers("ID", "TYPE", "NAME", "VERSION", "ACTIVE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.Key.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, m := range mods {
		t.Row(m.ID, string(m.Category), m.DisplayName, m.Version, strconv.FormatBool(m.Active))
	}
	return t.String()
}

func newModulesGetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <module-id>",
		Short: "Show one module as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(root)
			if err != nil {
				return err
			}
			m, err := catalog.Get(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, m)
		},
	}
}

func newModulesCallCmd(root *rootOptions) *cobra.Command {
	var params []string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call <module-id> <method>",
		Short: "Dispatch one call to a module",
		Long: `Dispatch one call to a module through the configured transport and
print the response as JSON.

Example:
  tradeflow modules call naver-securities data_collection --param symbol=005930`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			parameters, err := parseParams(params)
			if err != nil {
				return err
			}

			svc, err := newServices(cmd.Context(), cfg, root.logger(cfg), nil)
			if err != nil {
				return err
			}
			defer func() { _ = svc.close(cmd.Context()) }()

			resp, err := svc.dispatcher.Dispatch(cmd.Context(), module.Request{
				ModuleID:   args[0],
				Method:     args[1],
				Parameters: parameters,
				Timeout:    timeout,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd, resp)
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "call parameter as key=value (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "call timeout (default from modules.dispatch_timeout)")
	return cmd
}

// parseParams turns key=value pairs into a parameter map. Values that parse
// as JSON keep their JSON type, so n=3 is a number and tags=["a"] a list.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, errors.NewValidationError(fmt.Sprintf("parameter %q is not key=value", p))
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[strings.TrimSpace(key)] = v
	}
	return out, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
