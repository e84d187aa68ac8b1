package admin

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mesh-intelligence/pantry/internal/auth"
	"github.com/mesh-intelligence/pantry/internal/httputils"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// notices maps the notice query parameter set by redirects to a message.
var notices = map[string]string{
	"created": "Record created.",
	"updated": "Record updated.",
	"deleted": "Record deleted.",
}

func (h *Handler) layout(r *http.Request, title, current string) layout {
	claims, _ := auth.ClaimsFrom(r.Context())
	return layout{
		Title:     title,
		Base:      h.opts.Base,
		User:      claims,
		Resources: h.resources,
		Current:   current,
		Notice:    notices[r.URL.Query().Get("notice")],
	}
}

// fail renders an error page with the status StatusFor assigns to err.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httputils.StatusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "Something went wrong. The error has been logged."
	}
	h.render(w, r, status, "error", errorPage{
		layout:  h.layout(r, http.StatusText(status), ""),
		Status:  status,
		Message: msg,
	})
}

// resolve returns the resource named in the URL and its table.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, write bool) (types.Resource, types.Table, bool) {
	name := chi.URLParam(r, "resource")
	res, ok := h.byName[name]
	if !ok {
		h.fail(w, r, fmt.Errorf("%w: %s", types.ErrTableNotFound, name))
		return res, nil, false
	}
	if write && res.ReadOnly {
		h.fail(w, r, fmt.Errorf("%w: %s", types.ErrReadOnly, res.Plural))
		return res, nil, false
	}
	tbl, err := h.store.Table(name)
	if err != nil {
		h.fail(w, r, err)
		return res, nil, false
	}
	return res, tbl, true
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	entries := make([]dashboardEntry, 0, len(h.resources))
	for _, res := range h.resources {
		tbl, err := h.store.Table(res.Name)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		n, err := tbl.Count(r.Context(), nil)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		entries = append(entries, dashboardEntry{Resource: res, Count: n})
	}
	h.render(w, r, http.StatusOK, "dashboard", dashboardPage{
		layout:  h.layout(r, "Dashboard", ""),
		Entries: entries,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	res, tbl, ok := h.resolve(w, r, false)
	if !ok {
		return
	}
	params := r.URL.Query()
	page, _ := strconv.Atoi(params.Get("page"))
	if page < 1 {
		page = 1
	}
	q := types.Query{
		Search: params.Get("q"),
		Sort:   params.Get("sort"),
		Desc:   params.Get("dir") == "desc",
		Limit:  res.PerPage,
		Offset: (page - 1) * res.PerPage,
	}
	if q.Sort != "" && !sortable(res, q.Sort) {
		h.fail(w, r, fmt.Errorf("%w: %q", types.ErrInvalidSort, q.Sort))
		return
	}
	for key := range params {
		name, ok := strings.CutPrefix(key, "f.")
		if !ok || params.Get(key) == "" {
			continue
		}
		if f, ok := res.Field(name); !ok || f.Hidden {
			h.fail(w, r, fmt.Errorf("%w: unknown column %q", types.ErrInvalidFilter, name))
			return
		}
		if q.Filter == nil {
			q.Filter = make(map[string]any)
		}
		q.Filter[name] = params.Get(key)
	}

	result, err := tbl.Fetch(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	fields := res.ListFields()
	labels := h.referenceLabels(r.Context(), res, result.Records)
	rows := make([]row, 0, len(result.Records))
	for _, rec := range result.Records {
		cells := make([]string, len(fields))
		for i, f := range fields {
			if f.Type == types.FieldReference {
				cells[i] = labels[f.Name][rec.String(f.Name)]
				continue
			}
			cells[i] = h.displayValue(f, rec[f.Name])
		}
		rows = append(rows, row{ID: rec.ID(), Title: res.Title(rec), Cells: cells})
	}

	sortCol, desc := q.Sort, q.Desc
	if sortCol == "" {
		sortCol, desc = res.SortSpec()
	}
	columns := make([]column, len(fields))
	for i, f := range fields {
		next := url.Values{}
		copyParams(next, params, "page", "sort", "dir")
		next.Set("sort", f.Name)
		if f.Name == sortCol && !desc {
			next.Set("dir", "desc")
		}
		columns[i] = column{
			Label:   f.Label,
			SortURL: h.url(res.Name) + "?" + next.Encode(),
			Active:  f.Name == sortCol,
			Desc:    desc,
		}
	}

	data := listPage{
		layout:   h.layout(r, res.Plural, res.Name),
		Resource: res,
		Columns:  columns,
		Rows:     rows,
		Filters:  h.filters(r, res),
		Query:    q.Search,
		Total:    result.Total,
		Page:     result.Number(),
		Pages:    result.Pages(),
		CanWrite: !res.ReadOnly,
	}
	if result.HasPrev() {
		data.PrevURL = h.pageURL(res, params, page-1)
	}
	if result.HasNext() {
		data.NextURL = h.pageURL(res, params, page+1)
	}
	h.render(w, r, http.StatusOK, "list", data)
}

func sortable(res types.Resource, col string) bool {
	if f, ok := res.Field(col); ok {
		return !f.Hidden
	}
	return res.HasColumn(col)
}

func copyParams(dst, src url.Values, skip ...string) {
	for k, v := range src {
		skipped := false
		for _, s := range skip {
			if k == s {
				skipped = true
			}
		}
		if !skipped {
			dst[k] = v
		}
	}
}

func (h *Handler) pageURL(res types.Resource, params url.Values, page int) string {
	next := url.Values{}
	copyParams(next, params, "page")
	next.Set("page", strconv.Itoa(page))
	return h.url(res.Name) + "?" + next.Encode()
}

// filters builds select filters for enum, boolean and reference fields.
func (h *Handler) filters(r *http.Request, res types.Resource) []filterView {
	params := r.URL.Query()
	var out []filterView
	for _, f := range res.VisibleFields() {
		current := params.Get("f." + f.Name)
		fv := filterView{Name: "f." + f.Name, Label: f.Label}
		switch f.Type {
		case types.FieldEnum:
			fv.Options = []option{{Value: "", Label: "Any"}}
			for _, o := range f.Options {
				fv.Options = append(fv.Options, option{Value: o, Label: types.Humanize(o), Selected: o == current})
			}
		case types.FieldBoolean:
			fv.Options = []option{
				{Value: "", Label: "Any"},
				{Value: "true", Label: "Yes", Selected: current == "true"},
				{Value: "false", Label: "No", Selected: current == "false"},
			}
		case types.FieldReference:
			fv.Options = h.referenceOptions(r.Context(), f, current)
			fv.Options[0].Label = "Any"
		default:
			continue
		}
		out = append(out, fv)
	}
	return out
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	res, tbl, ok := h.resolve(w, r, false)
	if !ok {
		return
	}
	rec, err := tbl.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	labels := h.referenceLabels(r.Context(), res, []types.Record{rec})
	var details []detail
	for _, f := range res.VisibleFields() {
		d := detail{Label: f.Label, Value: h.displayValue(f, rec[f.Name])}
		if f.Type == types.FieldReference && d.Value != "" {
			d.Value = labels[f.Name][rec.String(f.Name)]
			if _, exposed := h.byName[f.References]; exposed {
				d.Link = h.url(f.References, rec.String(f.Name))
			}
		}
		details = append(details, d)
	}
	details = append(details,
		detail{Label: "Created", Value: rec.Time(types.ColumnCreatedAt).Format("2006-01-02 15:04")},
		detail{Label: "Updated", Value: rec.Time(types.ColumnUpdatedAt).Format("2006-01-02 15:04")},
	)
	claims, _ := auth.ClaimsFrom(r.Context())
	h.render(w, r, http.StatusOK, "show", showPage{
		layout:    h.layout(r, res.Label+": "+res.Title(rec), res.Name),
		Resource:  res,
		ID:        rec.ID(),
		Details:   details,
		CanWrite:  !res.ReadOnly,
		CanDelete: !res.ReadOnly && claims.CanDelete(),
	})
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	res, _, ok := h.resolve(w, r, true)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "form", formPage{
		layout:   h.layout(r, "New "+strings.ToLower(res.Label), res.Name),
		Resource: res,
		Action:   h.url(res.Name),
		Fields:   h.fieldViews(r.Context(), res, defaults(res), nil, nil),
	})
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	res, tbl, ok := h.resolve(w, r, true)
	if !ok {
		return
	}
	rec, err := tbl.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "form", formPage{
		layout:   h.layout(r, "Edit "+res.Title(rec), res.Name),
		Resource: res,
		ID:       rec.ID(),
		Action:   h.url(res.Name, rec.ID()),
		Fields:   h.fieldViews(r.Context(), res, rec, nil, nil),
	})
}

// formInput collects the submitted values of the editable fields. An
// unchecked checkbox is absent from the form and means false.
func formInput(res types.Resource, form url.Values) map[string]any {
	input := make(map[string]any)
	for _, f := range res.FormFields() {
		if f.Type == types.FieldBoolean {
			input[f.Name] = form.Get(f.Name) != ""
			continue
		}
		if _, ok := form[f.Name]; ok {
			input[f.Name] = form.Get(f.Name)
		}
	}
	return input
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, chi.URLParam(r, "id"))
}

// save validates a submitted form and stores it. Validation errors
// re-render the form with 422.
func (h *Handler) save(w http.ResponseWriter, r *http.Request, id string) {
	res, tbl, ok := h.resolve(w, r, true)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", types.ErrInvalidData, err))
		return
	}

	saved := ""
	rec, err := res.Coerce(formInput(res, r.PostForm), false)
	if err == nil {
		saved, err = tbl.Set(r.Context(), id, rec)
	}
	if ve, ok := types.AsValidationError(err); ok {
		title, action := "New "+strings.ToLower(res.Label), h.url(res.Name)
		if id != "" {
			title, action = "Edit "+res.Label, h.url(res.Name, id)
		}
		h.render(w, r, http.StatusUnprocessableEntity, "form", formPage{
			layout:   h.layout(r, title, res.Name),
			Resource: res,
			ID:       id,
			Action:   action,
			Fields:   h.fieldViews(r.Context(), res, nil, r.PostForm, ve.Fields),
			Errors:   ve.Fields,
		})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	notice := "updated"
	if id == "" {
		notice = "created"
	}
	claims, _ := auth.ClaimsFrom(r.Context())
	h.log.Infow("record saved", "resource", res.Name, "id", saved, "user", claims.UserID(), "action", notice)
	http.Redirect(w, r, h.url(res.Name, saved)+"?notice="+notice, http.StatusSeeOther)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	res, tbl, ok := h.resolve(w, r, true)
	if !ok {
		return
	}
	claims, _ := auth.ClaimsFrom(r.Context())
	if !claims.CanDelete() {
		h.fail(w, r, auth.ErrForbidden)
		return
	}
	id := chi.URLParam(r, "id")
	if err := tbl.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Infow("record deleted", "resource", res.Name, "id", id, "user", claims.UserID())
	http.Redirect(w, r, h.url(res.Name)+"?notice=deleted", http.StatusSeeOther)
}

func (h *Handler) loginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login", loginPage{
		layout: h.layout(r, "Sign in", ""),
		Next:   r.URL.Query().Get("next"),
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", types.ErrInvalidData, err))
		return
	}
	email, next := r.PostForm.Get("email"), r.PostForm.Get("next")

	user, err := h.users.Authenticate(r.Context(), email, r.PostForm.Get("password"))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.log.Infow("login refused", "email", email)
		h.render(w, r, http.StatusUnauthorized, "login", loginPage{
			layout: h.layout(r, "Sign in", ""),
			Email:  email,
			Next:   next,
			Error:  "Invalid email or password.",
		})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	token, expires, err := h.issuer.Issue(user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	auth.SetSession(w, r, h.cookiePath(), token, expires)
	h.log.Infow("login", "user", user.ID, "role", user.Role)
	http.Redirect(w, r, h.safeNext(next), http.StatusSeeOther)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w, h.cookiePath())
	http.Redirect(w, r, h.url("login"), http.StatusSeeOther)
}

func (h *Handler) cookiePath() string {
	if h.opts.Base == "" {
		return "/"
	}
	return h.opts.Base
}

// safeNext returns next when it points inside the admin UI, otherwise the
// dashboard.
func (h *Handler) safeNext(next string) string {
	base := h.opts.Base
	if next != "" && strings.HasPrefix(next, base+"/") && !strings.HasPrefix(next, "//") && !strings.Contains(next, "\\") {
		return next
	}
	return h.url("")
}
