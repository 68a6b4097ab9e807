package lead

import (
	"context"
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/linanwx/leadbridge/internal/bridgeerr"
	"github.com/linanwx/leadbridge/internal/runtimecfg"
	"github.com/linanwx/leadbridge/logger"
	"github.com/linanwx/leadbridge/store"
)

// wrapperKeys are the object keys searched for a lead array when the output
// is an object rather than an array.
var wrapperKeys = []string{"leads", "results", "places"}

// Pipeline extracts, scores and persists leads.
type Pipeline struct {
	records store.RecordStore
	scorer  *Scorer
}

// NewPipeline returns a pipeline persisting into rs.
func NewPipeline(rs store.RecordStore, scorer *Scorer) *Pipeline {
	if scorer == nil {
		scorer = NewScorer(nil)
	}
	return &Pipeline{records: rs, scorer: scorer}
}

// Result is the outcome of one extraction.
type Result struct {
	Leads []Lead `json:"leads"`
	Count int    `json:"count"`
}

// Extract parses raw as a JSON array of business records, scores each one
// and stores them in a single batch. Either all leads are stored or none.
func (p *Pipeline) Extract(ctx context.Context, raw string, src Source) (*Result, error) {
	if strings.TrimSpace(src.EmployeeID) == "" {
		return nil, bridgeerr.New(bridgeerr.KindMissingFields, "missing required fields: employee_id")
	}
	items, err := parseItems(raw)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &Result{Leads: []Lead{}}, nil
	}

	recs := make([]store.Record, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			logger.Warn("skipping non-object lead record", "employee", src.EmployeeID, "index", i)
			continue
		}
		f := ReadFields(item)
		recs = append(recs, newRecord(src, f, p.scorer.Score(f), item.Raw))
	}
	if len(recs) == 0 {
		return &Result{Leads: []Lead{}}, nil
	}

	stored, err := p.records.InsertMany(ctx, store.TableLeads, recs)
	if err != nil {
		logger.Error("lead batch insert failed", "employee", src.EmployeeID, "count", len(recs), "err", err)
		return nil, bridgeerr.Wrap(bridgeerr.KindInternal, "persist leads failed", err)
	}

	out := &Result{Leads: make([]Lead, len(stored)), Count: len(stored)}
	for i, rec := range stored {
		out.Leads[i] = fromRecord(rec)
	}
	logger.Info("leads extracted", "employee", src.EmployeeID, "tool", src.SourceTool, "count", out.Count)
	return out, nil
}

func parseItems(raw string) ([]gjson.Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return nil, bridgeerr.New(bridgeerr.KindInvalidPayload, "tool output is not valid JSON")
	}
	root := gjson.Parse(raw)
	if root.IsObject() {
		for _, k := range wrapperKeys {
			if r := root.Get(k); r.IsArray() {
				root = r
				break
			}
		}
	}
	if !root.IsArray() {
		return nil, bridgeerr.New(bridgeerr.KindInvalidPayload, "tool output is not a JSON array of records")
	}
	return root.Array(), nil
}

// Query filters List.
type Query struct {
	EmployeeID string
	Validated  *bool
	Page       int
	Limit      int
}

// Page is one page of leads.
type Page struct {
	Leads []Lead `json:"leads"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// List returns leads newest first.
func (p *Pipeline) List(ctx context.Context, q Query) (*Page, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = runtimecfg.LeadDefaultPageSize
	}
	if q.Limit > runtimecfg.LeadMaxPageSize {
		q.Limit = runtimecfg.LeadMaxPageSize
	}
	filters := store.Filters{}
	if q.EmployeeID != "" {
		filters["employee_id"] = q.EmployeeID
	}
	if q.Validated != nil {
		filters["validated"] = *q.Validated
	}

	recs, total, err := p.records.SelectFiltered(ctx, store.TableLeads, filters, q.Page, q.Limit)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindInternal, "list leads failed", err)
	}
	page := &Page{Leads: make([]Lead, len(recs)), Total: total, Page: q.Page, Limit: q.Limit}
	for i, rec := range recs {
		page.Leads[i] = fromRecord(rec)
	}
	return page, nil
}

// Get returns one lead.
func (p *Pipeline) Get(ctx context.Context, id string) (*Lead, error) {
	rec, err := p.records.Get(ctx, store.TableLeads, id)
	if err != nil {
		return nil, storeErr("get lead", id, err)
	}
	l := fromRecord(rec)
	return &l, nil
}

// ProgressUpdate changes any subset of the progress flags and notes.
type ProgressUpdate struct {
	Validated        *bool   `json:"validated,omitempty"`
	OutreachSent     *bool   `json:"outreach_sent,omitempty"`
	ResponseReceived *bool   `json:"response_received,omitempty"`
	Converted        *bool   `json:"converted,omitempty"`
	Notes            *string `json:"notes,omitempty"`
}

func (u ProgressUpdate) patch() store.Patch {
	p := store.Patch{}
	set := func(key string, v *bool) {
		if v != nil {
			p[key] = *v
		}
	}
	set("validated", u.Validated)
	set("outreach_sent", u.OutreachSent)
	set("response_received", u.ResponseReceived)
	set("converted", u.Converted)
	if u.Notes != nil {
		p["notes"] = *u.Notes
	}
	return p
}

// UpdateProgress applies u to the lead with id.
func (p *Pipeline) UpdateProgress(ctx context.Context, id string, u ProgressUpdate) (*Lead, error) {
	patch := u.patch()
	if len(patch) == 0 {
		return nil, bridgeerr.New(bridgeerr.KindInvalidPayload, "no progress fields to update")
	}
	rec, err := p.records.UpdateOne(ctx, store.TableLeads, id, patch)
	if err != nil {
		return nil, storeErr("update lead", id, err)
	}
	l := fromRecord(rec)
	logger.Info("lead progress updated", "lead", id, "fields", len(patch))
	return &l, nil
}

// Delete removes the lead with id.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	if err := p.records.DeleteOne(ctx, store.TableLeads, id); err != nil {
		return storeErr("delete lead", id, err)
	}
	logger.Info("lead deleted", "lead", id)
	return nil
}

func storeErr(op, id string, err error) error {
	if errors.Is(err, store.ErrRecordNotFound) {
		return bridgeerr.Wrap(bridgeerr.KindNotFound, "lead "+id+" not found", err)
	}
	return bridgeerr.Wrap(bridgeerr.KindInternal, op+" failed", err)
}
