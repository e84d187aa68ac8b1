package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mesh-intelligence/pantry/internal/auth"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// listMeta describes the page returned by a list request.
type listMeta struct {
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Pages   int `json:"pages"`
}

type listResponse struct {
	Data []types.Record `json:"data"`
	Meta listMeta       `json:"meta"`
}

type itemResponse struct {
	Data types.Record `json:"data"`
}

// schema is the public description of a resource.
type schema struct {
	Name     string        `json:"name"`
	Label    string        `json:"label"`
	Plural   string        `json:"plural"`
	Public   bool          `json:"public"`
	ReadOnly bool          `json:"read_only"`
	Fields   []types.Field `json:"fields"`
}

// schemas lists the exposed resources and their visible fields.
func (h *Handler) schemas(w http.ResponseWriter, r *http.Request) {
	out := make([]schema, 0, len(h.resources))
	for _, res := range h.resources {
		out = append(out, schema{
			Name:     res.Name,
			Label:    res.Label,
			Plural:   res.Plural,
			Public:   res.Public,
			ReadOnly: res.ReadOnly,
			Fields:   res.VisibleFields(),
		})
	}
	h.respond(w, r, http.StatusOK, map[string][]schema{"data": out})
}

// resolve finds the resource and table named in the URL and checks access.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, write bool) (types.Resource, types.Table, *auth.Claims, bool) {
	res, ok := h.byName[chi.URLParam(r, "resource")]
	if !ok {
		h.fail(w, r, fmt.Errorf("%w: %s", types.ErrTableNotFound, chi.URLParam(r, "resource")))
		return res, nil, nil, false
	}
	claims, err := h.authorize(r, res, write)
	if err != nil {
		h.fail(w, r, err)
		return res, nil, nil, false
	}
	if write && res.ReadOnly {
		h.fail(w, r, fmt.Errorf("%w: %s", types.ErrReadOnly, res.Name))
		return res, nil, nil, false
	}
	tbl, err := h.store.Table(res.Name)
	if err != nil {
		h.fail(w, r, err)
		return res, nil, nil, false
	}
	return res, tbl, claims, true
}

// reserved list parameters; every other query parameter is a filter.
var listParams = map[string]bool{"q": true, "sort": true, "page": true, "per_page": true}

// parseList converts list query parameters into a Query.
func parseList(res types.Resource, r *http.Request) (types.Query, int, int, error) {
	params := r.URL.Query()
	q := types.Query{Search: params.Get("q")}

	page, err := positiveInt(params.Get("page"), 1)
	if err != nil {
		return q, 0, 0, fmt.Errorf("%w: page %v", types.ErrInvalidFilter, err)
	}
	perPage, err := positiveInt(params.Get("per_page"), res.PerPage)
	if err != nil {
		return q, 0, 0, fmt.Errorf("%w: per_page %v", types.ErrInvalidFilter, err)
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	q.Limit = perPage
	q.Offset = (page - 1) * perPage

	if s := params.Get("sort"); s != "" {
		q.Sort, q.Desc = strings.TrimPrefix(s, "-"), strings.HasPrefix(s, "-")
		if f, ok := res.Field(q.Sort); ok && f.Hidden {
			return q, 0, 0, fmt.Errorf("%w: %q", types.ErrInvalidSort, q.Sort)
		}
	}

	for key, values := range params {
		if listParams[key] {
			continue
		}
		if f, ok := res.Field(key); ok && f.Hidden {
			return q, 0, 0, fmt.Errorf("%w: unknown column %q", types.ErrInvalidFilter, key)
		}
		if q.Filter == nil {
			q.Filter = make(map[string]any)
		}
		if len(values) == 1 {
			q.Filter[key] = values[0]
		} else {
			q.Filter[key] = values
		}
	}
	return q, page, perPage, nil
}

func positiveInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("must be a positive integer")
	}
	return n, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	res, tbl, _, ok := h.resolve(w, r, false)
	if !ok {
		return
	}
	q, page, perPage, err := parseList(res, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := tbl.Fetch(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data := make([]types.Record, len(result.Records))
	for i, rec := range result.Records {
		data[i] = visible(res, rec)
	}
	h.respond(w, r, http.StatusOK, listResponse{
		Data: data,
		Meta: listMeta{Total: result.Total, Page: page, PerPage: perPage, Pages: result.Pages()},
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	res, tbl, _, ok := h.resolve(w, r, false)
	if !ok {
		return
	}
	rec, err := tbl.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, itemResponse{Data: visible(res, rec)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	res, tbl, claims, ok := h.resolve(w, r, true)
	if !ok {
		return
	}
	rec, ok := h.decode(w, r, res, false)
	if !ok {
		return
	}
	id, err := tbl.Set(r.Context(), "", rec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Infow("record created", "resource", res.Name, "id", id, "user", claims.UserID())
	h.writeRecord(w, r, res, tbl, id, http.StatusCreated)
}

func (h *Handler) replace(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, partial bool) {
	res, tbl, claims, ok := h.resolve(w, r, true)
	if !ok {
		return
	}
	rec, ok := h.decode(w, r, res, partial)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := tbl.Set(r.Context(), id, rec); err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Infow("record updated", "resource", res.Name, "id", id, "user", claims.UserID())
	h.writeRecord(w, r, res, tbl, id, http.StatusOK)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	res, tbl, claims, ok := h.resolve(w, r, true)
	if !ok {
		return
	}
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
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON object body and coerces it for res.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, res types.Resource, partial bool) (types.Record, bool) {
	var input map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(&input); err != nil || input == nil {
		h.fail(w, r, fmt.Errorf("%w: body must be a JSON object", types.ErrInvalidData))
		return nil, false
	}
	rec, err := res.Coerce(input, partial)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return rec, true
}

// writeRecord re-reads the stored record and writes it.
func (h *Handler) writeRecord(w http.ResponseWriter, r *http.Request, res types.Resource, tbl types.Table, id string, status int) {
	rec, err := tbl.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if status == http.StatusCreated {
		w.Header().Set("Location", Prefix+"/"+res.Name+"/"+id)
	}
	h.respond(w, r, status, itemResponse{Data: visible(res, rec)})
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
