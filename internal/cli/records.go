package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/pantry/pkg/types"
)

// table resolves a resource and its table by name.
func (e *env) table(name string) (types.Resource, types.Table, error) {
	tbl, err := e.store.Table(name)
	if err != nil {
		return types.Resource{}, nil, fmt.Errorf("%w: %q (see pantry resources)", err, name)
	}
	return tbl.Resource(), tbl, nil
}

// visible drops hidden fields from rec.
func visible(res types.Resource, rec types.Record) types.Record {
	var hidden []string
	for _, f := range res.Fields {
		if f.Hidden {
			hidden = append(hidden, f.Name)
		}
	}
	if len(hidden) == 0 {
		return rec
	}
	return rec.Without(hidden...)
}

// parseFilter turns key=value arguments into an equality filter. Values
// are kept as text and converted to the column type by the store.
func parseFilter(args []string) (map[string]any, error) {
	filter := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, userError(fmt.Errorf("invalid filter %q (expected key=value)", arg))
		}
		filter[key] = value
	}
	return filter, nil
}

// resourceSummary is one line of "pantry resources".
type resourceSummary struct {
	Name     string `json:"name"`
	Table    string `json:"table"`
	Label    string `json:"label"`
	Fields   int    `json:"fields"`
	Public   bool   `json:"public,omitempty"`
	Internal bool   `json:"internal,omitempty"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

func (a *app) newResourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List the registered resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			reg, err := registry(cfg)
			if err != nil {
				return err
			}
			var out []resourceSummary
			for _, res := range reg.All() {
				res = res.Normalized()
				out = append(out, resourceSummary{
					Name:     res.Name,
					Table:    res.Table,
					Label:    res.Plural,
					Fields:   len(res.Fields),
					Public:   res.Public,
					Internal: res.Internal,
					ReadOnly: res.ReadOnly,
				})
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			for _, s := range out {
				var flags []string
				if s.Public {
					flags = append(flags, "public")
				}
				if s.Internal {
					flags = append(flags, "internal")
				}
				if s.ReadOnly {
					flags = append(flags, "read-only")
				}
				fmt.Fprintf(w, "%-16s %-16s %2d fields  %s\n", s.Name, s.Table, s.Fields, strings.Join(flags, ","))
			}
			return nil
		},
	}
}

func (a *app) newListCmd() *cobra.Command {
	var q types.Query
	cmd := &cobra.Command{
		Use:   "list <resource> [key=value...]",
		Short: "List records with optional filters",
		Long: `List prints the records of a resource as JSON.

Filters are key=value pairs on column names. Multiple filters are ANDed.

Example:
  pantry list products
  pantry list products active=true --sort price --desc
  pantry list orders status=paid --limit 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilter(args[1:])
			if err != nil {
				return err
			}
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			res, tbl, err := e.table(args[0])
			if err != nil {
				return err
			}
			for key := range filter {
				if f, ok := res.Field(key); ok && f.Hidden {
					return fmt.Errorf("%w: %s", types.ErrInvalidFilter, key)
				}
			}
			q.Filter = filter
			page, err := tbl.Fetch(cmd.Context(), q)
			if err != nil {
				return err
			}
			for i, rec := range page.Records {
				page.Records[i] = visible(res, rec)
			}
			if page.Records == nil {
				page.Records = []types.Record{}
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().StringVar(&q.Search, "search", "", "case-insensitive text search over searchable fields")
	cmd.Flags().StringVar(&q.Sort, "sort", "", "sort column (default: the resource's default sort)")
	cmd.Flags().BoolVar(&q.Desc, "desc", false, "sort descending")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum records to print (0 for all)")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "records to skip")
	return cmd
}

func (a *app) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <resource> <id>",
		Short: "Print one record as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			res, tbl, err := e.table(args[0])
			if err != nil {
				return err
			}
			rec, err := tbl.Get(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), visible(res, rec))
		},
	}
}

func (a *app) newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <resource> <id|-> <json>",
		Short: "Create or update a record",
		Long: `Set creates a record when id is "-" and otherwise updates only the
fields present in the JSON object. The stored record is printed.

Example:
  pantry set categories - '{"name":"Teas","slug":"teas"}'
  pantry set products 0190... '{"price":"4.50","stock":20}'`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dec := json.NewDecoder(bytes.NewReader([]byte(args[2])))
			dec.UseNumber()
			var input map[string]any
			if err := dec.Decode(&input); err != nil {
				return fmt.Errorf("%w: %v", types.ErrInvalidData, err)
			}

			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			res, tbl, err := e.table(args[0])
			if err != nil {
				return err
			}
			if res.ReadOnly {
				return fmt.Errorf("%w: %s", types.ErrReadOnly, res.Name)
			}
			id := args[1]
			if id == "-" {
				id = ""
			}
			rec, err := res.Coerce(input, id != "")
			if err != nil {
				return err
			}
			id, err = tbl.Set(cmd.Context(), id, rec)
			if err != nil {
				return err
			}
			stored, err := tbl.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), visible(res, stored))
		},
	}
}

func (a *app) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <resource> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			res, tbl, err := e.table(args[0])
			if err != nil {
				return err
			}
			if res.ReadOnly {
				return fmt.Errorf("%w: %s", types.ErrReadOnly, res.Name)
			}
			if err := tbl.Delete(cmd.Context(), args[1]); err != nil {
				return err
			}
			return a.report(cmd, map[string]string{"deleted": args[1]}, "deleted %s %s", res.Name, args[1])
		},
	}
}
