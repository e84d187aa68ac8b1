package admin

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/mesh-intelligence/pantry/internal/auth"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// referenceOptionLimit bounds the records offered in a reference select.
const referenceOptionLimit = 500

// layout is the data every page shares.
type layout struct {
	Title     string
	Base      string
	User      *auth.Claims
	Resources []types.Resource
	Current   string
	Notice    string
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

// fieldView is one form input.
type fieldView struct {
	Field   types.Field
	Input   string
	Value   string
	Checked bool
	Options []option
	Error   string
}

// column is a sortable list header.
type column struct {
	Label   string
	SortURL string
	Active  bool
	Desc    bool
}

type row struct {
	ID    string
	Title string
	Cells []string
}

// filterView is a select filter above a list.
type filterView struct {
	Name    string
	Label   string
	Options []option
}

type listPage struct {
	layout
	Resource types.Resource
	Columns  []column
	Rows     []row
	Filters  []filterView
	Query    string
	Total    int
	Page     int
	Pages    int
	PrevURL  string
	NextURL  string
	CanWrite bool
}

type detail struct {
	Label string
	Value string
	Link  string
}

type showPage struct {
	layout
	Resource  types.Resource
	ID        string
	Details   []detail
	CanWrite  bool
	CanDelete bool
}

type formPage struct {
	layout
	Resource types.Resource
	ID       string
	Action   string
	Fields   []fieldView
	Errors   map[string]string
}

type dashboardEntry struct {
	Resource types.Resource
	Count    int
}

type dashboardPage struct {
	layout
	Entries []dashboardEntry
}

type loginPage struct {
	layout
	Email string
	Next  string
	Error string
}

type errorPage struct {
	layout
	Status  int
	Message string
}

// inputType picks the HTML input for a field type.
func inputType(f types.Field) string {
	switch f.Type {
	case types.FieldText:
		return "textarea"
	case types.FieldInteger:
		return "number"
	case types.FieldMoney, types.FieldDecimal:
		return "decimal"
	case types.FieldBoolean:
		return "checkbox"
	case types.FieldTimestamp:
		return "datetime-local"
	case types.FieldEnum, types.FieldReference:
		return "select"
	}
	if f.Name == "email" {
		return "email"
	}
	return "text"
}

// inputValue renders a typed value for an input element.
func inputValue(f types.Field, v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case int64:
		if f.Type == types.FieldMoney {
			return types.FormatMoney(val)
		}
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format("2006-01-02T15:04:05")
	case string:
		return val
	}
	return types.Record{"v": v}.String("v")
}

// displayValue renders a typed value for list and detail pages.
func (h *Handler) displayValue(f types.Field, v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case int64:
		if f.Type == types.FieldMoney {
			return types.FormatMoney(val) + " " + h.opts.Currency
		}
	case time.Time:
		return val.Format("2006-01-02 15:04")
	}
	return inputValue(f, v)
}

// referenceOptions loads the records a reference field may point at.
func (h *Handler) referenceOptions(ctx context.Context, f types.Field, selected string) []option {
	opts := []option{{Value: "", Label: "(none)"}}
	tbl, err := h.store.Table(f.References)
	if err != nil {
		return opts
	}
	page, err := tbl.Fetch(ctx, types.Query{Limit: referenceOptionLimit})
	if err != nil {
		h.log.Warnw("load reference options", "field", f.Name, "err", err)
		return opts
	}
	target := tbl.Resource()
	for _, rec := range page.Records {
		opts = append(opts, option{Value: rec.ID(), Label: target.Title(rec), Selected: rec.ID() == selected})
	}
	return opts
}

// referenceLabels resolves the titles of referenced records for display,
// keyed by field name then id.
func (h *Handler) referenceLabels(ctx context.Context, res types.Resource, records []types.Record) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, f := range res.Fields {
		if f.Type != types.FieldReference {
			continue
		}
		ids := map[string]bool{}
		for _, rec := range records {
			if id := rec.String(f.Name); id != "" {
				ids[id] = true
			}
		}
		if len(ids) == 0 {
			continue
		}
		tbl, err := h.store.Table(f.References)
		if err != nil {
			continue
		}
		list := make([]string, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		page, err := tbl.Fetch(ctx, types.Query{Filter: map[string]any{types.ColumnID: list}})
		if err != nil {
			h.log.Warnw("resolve references", "field", f.Name, "err", err)
			continue
		}
		labels := make(map[string]string, len(page.Records))
		for _, rec := range page.Records {
			labels[rec.ID()] = tbl.Resource().Title(rec)
		}
		out[f.Name] = labels
	}
	return out
}

// fieldViews builds the inputs of a form from typed values or, after a
// failed submit, from the raw submitted strings.
func (h *Handler) fieldViews(ctx context.Context, res types.Resource, rec types.Record, submitted url.Values, errs map[string]string) []fieldView {
	var out []fieldView
	for _, f := range res.FormFields() {
		fv := fieldView{Field: f, Input: inputType(f), Error: errs[f.Name]}
		if submitted != nil {
			fv.Value = submitted.Get(f.Name)
			fv.Checked = submitted.Get(f.Name) != ""
		} else {
			fv.Value = inputValue(f, rec[f.Name])
			fv.Checked = rec.Bool(f.Name)
		}
		switch f.Type {
		case types.FieldEnum:
			fv.Options = []option{{Value: "", Label: "(none)"}}
			for _, o := range f.Options {
				fv.Options = append(fv.Options, option{Value: o, Label: types.Humanize(o), Selected: o == fv.Value})
			}
		case types.FieldReference:
			fv.Options = h.referenceOptions(ctx, f, fv.Value)
		}
		out = append(out, fv)
	}
	return out
}

// defaults returns the typed default values of res for a new record form.
func defaults(res types.Resource) types.Record {
	rec := types.Record{}
	for _, f := range res.FormFields() {
		if f.Default == "" {
			continue
		}
		if v, err := types.CoerceValue(f, f.Default); err == nil {
			rec[f.Name] = v
		}
	}
	return rec
}
