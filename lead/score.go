package lead

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/linanwx/leadbridge/internal/runtimecfg"
)

// Scores are the five sub-scores of a lead, each in [1,5].
type Scores struct {
	Relevance      int `json:"relevance"`
	ContactRole    int `json:"contact_role"`
	Location       int `json:"location"`
	Completeness   int `json:"completeness"`
	OnlinePresence int `json:"online_presence"`
}

// Total is the sum of the sub-scores.
func (s Scores) Total() int {
	return s.Relevance + s.ContactRole + s.Location + s.Completeness + s.OnlinePresence
}

var seniorTitles = []string{"owner", "manager", "director", "ceo", "president", "founder"}

// field aliases, first match wins.
var (
	aliasBusinessName = []string{"business_name", "name", "title"}
	aliasContactName  = []string{"contact_name", "contact", "owner"}
	aliasContactTitle = []string{"contact_title", "job_title", "position"}
	aliasEmail        = []string{"email", "contact_email"}
	aliasPhone        = []string{"phone", "phone_number", "phoneNumber"}
	aliasWebsite      = []string{"website", "url"}
	aliasAddress      = []string{"address", "street", "full_address"}
	aliasCity         = []string{"city"}
	aliasState        = []string{"state", "region"}
	aliasPostalCode   = []string{"postal_code", "zip", "postalCode"}
	aliasCountry      = []string{"country", "country_code", "countryCode"}
	aliasCategories   = []string{"categories", "category", "types"}
	aliasRating       = []string{"rating", "totalScore"}
	aliasReviewCount  = []string{"review_count", "reviews", "reviewsCount", "reviews_count"}
)

// Fields are the identity fields read from one raw record.
type Fields struct {
	BusinessName string
	ContactName  string
	ContactTitle string
	Email        string
	Phone        string
	Website      string
	Address      string
	City         string
	State        string
	PostalCode   string
	Country      string
	Categories   []string
	Rating       *float64
	ReviewCount  *int
}

// ReadFields extracts identity fields from a JSON object.
func ReadFields(obj gjson.Result) Fields {
	f := Fields{
		BusinessName: firstString(obj, aliasBusinessName),
		ContactName:  firstString(obj, aliasContactName),
		ContactTitle: firstString(obj, aliasContactTitle),
		Email:        firstString(obj, aliasEmail),
		Phone:        firstString(obj, aliasPhone),
		Website:      firstString(obj, aliasWebsite),
		Address:      firstString(obj, aliasAddress),
		City:         firstString(obj, aliasCity),
		State:        firstString(obj, aliasState),
		PostalCode:   firstString(obj, aliasPostalCode),
		Country:      firstString(obj, aliasCountry),
		Categories:   categories(obj),
	}
	if r, ok := first(obj, aliasRating); ok {
		v := r.Float()
		f.Rating = &v
	}
	if r, ok := first(obj, aliasReviewCount); ok {
		v := int(r.Int())
		if r.IsArray() {
			v = len(r.Array())
		}
		f.ReviewCount = &v
	}
	return f
}

// Scorer computes deterministic sub-scores.
type Scorer struct {
	keywords []string
}

// NewScorer returns a scorer matching categories against keywords
// (case-insensitive substring). An empty list selects the default set.
func NewScorer(keywords []string) *Scorer {
	if len(keywords) == 0 {
		keywords = runtimecfg.LeadDefaultRelevantKeywords
	}
	s := &Scorer{}
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			s.keywords = append(s.keywords, k)
		}
	}
	return s
}

// Score computes the sub-scores of f.
func (s *Scorer) Score(f Fields) Scores {
	return Scores{
		Relevance:      s.relevance(f.Categories),
		ContactRole:    contactRole(f.ContactName, f.ContactTitle),
		Location:       clamp(present(f.Address, f.City, f.State, f.PostalCode, f.Country)),
		Completeness:   clamp(present(f.BusinessName, f.Phone, f.Email, f.Website, f.Address)),
		OnlinePresence: onlinePresence(f),
	}
}

func (s *Scorer) relevance(categories []string) int {
	if len(categories) == 0 {
		return 3
	}
	n := 0
	for _, c := range categories {
		c = strings.ToLower(c)
		for _, k := range s.keywords {
			if strings.Contains(c, k) {
				n++
				break
			}
		}
	}
	return clamp(n)
}

func contactRole(name, title string) int {
	t := strings.ToLower(title)
	senior := false
	for _, s := range seniorTitles {
		if strings.Contains(t, s) {
			senior = true
			break
		}
	}
	switch {
	case name != "" && senior:
		return 5
	case title != "":
		return 3
	case name != "":
		return 2
	default:
		return 1
	}
}

func onlinePresence(f Fields) int {
	n := 0
	if f.Website != "" {
		n += 2
	}
	if f.Email != "" {
		n++
	}
	if f.Rating != nil && *f.Rating > 4 {
		n++
	}
	if f.ReviewCount != nil && *f.ReviewCount > 10 {
		n++
	}
	return clamp(n)
}

func clamp(n int) int {
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

func present(values ...string) int {
	n := 0
	for _, v := range values {
		if v != "" {
			n++
		}
	}
	return n
}

func first(obj gjson.Result, keys []string) (gjson.Result, bool) {
	for _, k := range keys {
		r := obj.Get(k)
		if r.Exists() && r.Type != gjson.Null {
			return r, true
		}
	}
	return gjson.Result{}, false
}

func firstString(obj gjson.Result, keys []string) string {
	for _, k := range keys {
		r := obj.Get(k)
		if !r.Exists() || r.Type == gjson.Null || r.IsObject() || r.IsArray() {
			continue
		}
		if s := strings.TrimSpace(r.String()); s != "" {
			return s
		}
	}
	return ""
}

func categories(obj gjson.Result) []string {
	r, ok := first(obj, aliasCategories)
	if !ok {
		return nil
	}
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if r.IsArray() {
		for _, c := range r.Array() {
			if c.Type == gjson.String {
				add(c.String())
			}
		}
		return out
	}
	if r.Type == gjson.String {
		for _, part := range strings.Split(r.String(), ",") {
			add(part)
		}
	}
	return out
}
