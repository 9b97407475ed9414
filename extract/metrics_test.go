package extract

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

const samplePage = "Snipers\n>\n42\nBlueChip\n>\n7\nTop 10\n55%\nAudit\n>\nSafe\n4/4"

func TestMetrics_SamplePage(t *testing.T) {
	// WHAT: the reference page text yields the four base fields and no rug_prob.
	// WHY: this is the canonical layout of a token detail panel.
	got := Metrics(samplePage)
	want := Record{Snipers: "42", BlueChip: "7", Top10: "55%", Audit: "Safe 4/4"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got.RugProb != nil {
		t.Errorf("rug_prob should be absent, got %q", *got.RugProb)
	}
}

func TestMetrics_RugProbability(t *testing.T) {
	got := Metrics(samplePage + "\nRug probability\n12%")
	if got.RugProb == nil || *got.RugProb != "12%" {
		t.Fatalf("rug_prob: got %v", got.RugProb)
	}
	cols := got.Columns()
	if cols[len(cols)-1] != RugProbColumn {
		t.Errorf("columns: %v", cols)
	}
	if len(got.Values()) != len(cols) {
		t.Errorf("values/columns mismatch: %v vs %v", got.Values(), cols)
	}
}

func TestMetrics_SnipersRequiresMarker(t *testing.T) {
	// WHAT: snipers is only read from the "Snipers / > / value" triple.
	// WHY: a label without the ">" marker line is a different widget.
	cases := map[string]string{
		"Snipers\n>\n9":             "9",
		"  Snipers  \n  >  \n  13 ": "13",
		"header\nSnipers\n>\n0\nx":  "0",
		"Snipers\n9":                "",
		"Snipers >\n9":              "",
		"":                          "",
		"nothing here":              "",
	}
	for text, want := range cases {
		if got := Metrics(text).Snipers; got != want {
			t.Errorf("Metrics(%q).Snipers = %q, want %q", text, got, want)
		}
	}
}

func TestMetrics_MissingFieldsAreEmpty(t *testing.T) {
	got := Metrics("Top 10\n18.2%")
	want := Record{Top10: "18.2%"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestMetrics_AuditNeedsTwoTokens(t *testing.T) {
	if got := Metrics("Audit\n>\nSafe").Audit; got != "" {
		t.Errorf("audit with one token: got %q", got)
	}
	if got := Metrics("Audit\n>\nWarn\n2/4\nnext").Audit; got != "Warn 2/4" {
		t.Errorf("audit: got %q", got)
	}
}

func TestMetrics_Deterministic(t *testing.T) {
	// WHAT: the same text always yields the same record.
	text := samplePage + "\nRug probability\n3%"
	a, b := Metrics(text), Metrics(text)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("%+v != %+v", a, b)
	}
	if a.RugProb == b.RugProb {
		t.Error("records must not share the rug_prob pointer")
	}
}

func TestRecord_JSONOmitsAbsentRugProb(t *testing.T) {
	data, err := json.Marshal(Metrics(samplePage))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "rug_prob") {
		t.Errorf("rug_prob key present: %s", data)
	}

	data, err = json.Marshal(Metrics(samplePage + "\nRug probability\n1%"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"rug_prob":"1%"`) {
		t.Errorf("rug_prob key missing: %s", data)
	}
}
