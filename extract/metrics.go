package extract

import "regexp"

// Record is the set of metrics parsed from one token page.
//
// The four base fields are always present (possibly empty). RugProb is nil
// when the page has no "Rug probability" entry; that absence, not an empty
// value, is what drops the rug_prob column from the stored entry.
type Record struct {
	Snipers  string  `json:"snipers"`
	BlueChip string  `json:"bluechip"`
	Top10    string  `json:"top10"`
	Audit    string  `json:"audit"`
	RugProb  *string `json:"rug_prob,omitempty"`
}

// BaseColumns are the columns every stored entry carries, in order.
var BaseColumns = []string{"snipers", "bluechip", "top10", "audit"}

// RugProbColumn is appended only when the record has a rug probability.
const RugProbColumn = "rug_prob"

var (
	snipersRe  = regexp.MustCompile(`Snipers\s*\n\s*>\s*\n\s*(\S+)`)
	bluechipRe = regexp.MustCompile(`BlueChip\s*\n\s*>\s*\n\s*(\S+)`)
	top10Re    = regexp.MustCompile(`Top 10\s*\n\s*(\S+)`)
	auditRe    = regexp.MustCompile(`Audit\s*\n\s*>\s*\n\s*(\S+)\s*\n\s*(\S+)`)
	rugProbRe  = regexp.MustCompile(`Rug probability\s*\n\s*(\S+)`)
)

// Metrics parses page text into a Record. Every rule is evaluated on its own;
// a rule that does not match leaves its field empty (or nil for RugProb).
// Metrics never fails and has no side effects.
func Metrics(text string) Record {
	rec := Record{
		Snipers:  firstGroup(snipersRe, text),
		BlueChip: firstGroup(bluechipRe, text),
		Top10:    firstGroup(top10Re, text),
	}
	if m := auditRe.FindStringSubmatch(text); m != nil {
		rec.Audit = m[1] + " " + m[2]
	}
	if m := rugProbRe.FindStringSubmatch(text); m != nil {
		v := m[1]
		rec.RugProb = &v
	}
	return rec
}

// Columns returns the header for this record.
func (r Record) Columns() []string {
	cols := append([]string(nil), BaseColumns...)
	if r.RugProb != nil {
		cols = append(cols, RugProbColumn)
	}
	return cols
}

// Values returns the row for this record, aligned with Columns.
func (r Record) Values() []string {
	vals := []string{r.Snipers, r.BlueChip, r.Top10, r.Audit}
	if r.RugProb != nil {
		vals = append(vals, *r.RugProb)
	}
	return vals
}

func firstGroup(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
