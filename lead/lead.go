// Package lead turns tool outputs carrying business records into scored,
// persisted leads and exposes the operations on them.
package lead

import (
	"encoding/json"
	"time"

	"github.com/linanwx/leadbridge/store"
)

// Lead is a persisted business record.
type Lead struct {
	ID           string          `json:"id"`
	EmployeeID   string          `json:"employee_id"`
	SourceTool   string          `json:"source_tool,omitempty"`
	ThreadID     string          `json:"thread_id,omitempty"`
	RunID        string          `json:"run_id,omitempty"`
	ToolCallID   string          `json:"tool_call_id,omitempty"`
	BusinessName string          `json:"business_name"`
	ContactName  string          `json:"contact_name,omitempty"`
	ContactTitle string          `json:"contact_title,omitempty"`
	Email        string          `json:"email,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Website      string          `json:"website,omitempty"`
	Address      string          `json:"address,omitempty"`
	City         string          `json:"city,omitempty"`
	State        string          `json:"state,omitempty"`
	PostalCode   string          `json:"postal_code,omitempty"`
	Country      string          `json:"country,omitempty"`
	Categories   []string        `json:"categories,omitempty"`
	Rating       *float64        `json:"rating,omitempty"`
	ReviewCount  *int            `json:"review_count,omitempty"`
	Scores       Scores          `json:"scores"`
	TotalScore   int             `json:"total_score"`
	RawData      json.RawMessage `json:"raw_data,omitempty"`
	Progress
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Progress holds the outreach flags. All start false.
type Progress struct {
	Validated        bool `json:"validated"`
	OutreachSent     bool `json:"outreach_sent"`
	ResponseReceived bool `json:"response_received"`
	Converted        bool `json:"converted"`
}

// Source attributes extracted leads to the tool call that produced them.
type Source struct {
	EmployeeID string
	SourceTool string
	ThreadID   string
	RunID      string
	ToolCallID string
}

func newRecord(src Source, f Fields, s Scores, raw string) store.Record {
	rec := store.Record{
		"employee_id":           src.EmployeeID,
		"source_tool":           src.SourceTool,
		"thread_id":             src.ThreadID,
		"run_id":                src.RunID,
		"tool_call_id":          src.ToolCallID,
		"business_name":         f.BusinessName,
		"contact_name":          f.ContactName,
		"contact_title":         f.ContactTitle,
		"email":                 f.Email,
		"phone":                 f.Phone,
		"website":               f.Website,
		"address":               f.Address,
		"city":                  f.City,
		"state":                 f.State,
		"postal_code":           f.PostalCode,
		"country":               f.Country,
		"categories":            nonNil(f.Categories),
		"relevance_score":       s.Relevance,
		"contact_role_score":    s.ContactRole,
		"location_score":        s.Location,
		"completeness_score":    s.Completeness,
		"online_presence_score": s.OnlinePresence,
		"total_score":           s.Total(),
		"raw_data":              json.RawMessage(raw),
		"validated":             false,
		"outreach_sent":         false,
		"response_received":     false,
		"converted":             false,
	}
	if f.Rating != nil {
		rec["rating"] = *f.Rating
	}
	if f.ReviewCount != nil {
		rec["review_count"] = *f.ReviewCount
	}
	return rec
}

func fromRecord(rec store.Record) Lead {
	l := Lead{
		ID:           str(rec, "id"),
		EmployeeID:   str(rec, "employee_id"),
		SourceTool:   str(rec, "source_tool"),
		ThreadID:     str(rec, "thread_id"),
		RunID:        str(rec, "run_id"),
		ToolCallID:   str(rec, "tool_call_id"),
		BusinessName: str(rec, "business_name"),
		ContactName:  str(rec, "contact_name"),
		ContactTitle: str(rec, "contact_title"),
		Email:        str(rec, "email"),
		Phone:        str(rec, "phone"),
		Website:      str(rec, "website"),
		Address:      str(rec, "address"),
		City:         str(rec, "city"),
		State:        str(rec, "state"),
		PostalCode:   str(rec, "postal_code"),
		Country:      str(rec, "country"),
		Scores: Scores{
			Relevance:      integer(rec, "relevance_score"),
			ContactRole:    integer(rec, "contact_role_score"),
			Location:       integer(rec, "location_score"),
			Completeness:   integer(rec, "completeness_score"),
			OnlinePresence: integer(rec, "online_presence_score"),
		},
		TotalScore: integer(rec, "total_score"),
		Progress: Progress{
			Validated:        boolean(rec, "validated"),
			OutreachSent:     boolean(rec, "outreach_sent"),
			ResponseReceived: boolean(rec, "response_received"),
			Converted:        boolean(rec, "converted"),
		},
		Notes: str(rec, "notes"),
	}
	if cats, ok := rec["categories"].([]any); ok {
		for _, c := range cats {
			if s, ok := c.(string); ok {
				l.Categories = append(l.Categories, s)
			}
		}
	}
	if v, ok := rec["rating"].(float64); ok {
		l.Rating = &v
	}
	if v, ok := rec["review_count"].(int); ok {
		l.ReviewCount = &v
	}
	if raw, ok := rec["raw_data"]; ok && raw != nil {
		if data, err := json.Marshal(raw); err == nil {
			l.RawData = data
		}
	}
	if ts, ok := rec["created_at"].(time.Time); ok {
		l.CreatedAt = ts
	}
	if ts, ok := rec["updated_at"].(time.Time); ok {
		l.UpdatedAt = ts
	}
	return l
}

func str(rec store.Record, key string) string {
	s, _ := rec[key].(string)
	return s
}

func integer(rec store.Record, key string) int {
	n, _ := rec[key].(int)
	return n
}

func boolean(rec store.Record, key string) bool {
	b, _ := rec[key].(bool)
	return b
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
