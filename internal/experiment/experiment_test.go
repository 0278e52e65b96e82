package experiment

import (
	"strings"
	"testing"
)

func TestLoadReaderBasicRules(t *testing.T) {
	csv := "Sample_Name,Project,Contacts,Tasks,\n" +
		"S1,P1,\"Alice <a@x.com>, b@y.com\",TRIM merge,extra\n" +
		",,,\n"

	rows, err := LoadReader(strings.NewReader(csv), nil)
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected empty row dropped, got %d rows", len(rows))
	}
	row := rows[0]
	if row.SampleName != "S1" || row.Project != "P1" {
		t.Fatalf("unexpected row: %+v", row)
	}
	if got := row.Tasks; len(got) != 2 || got[0] != "trim" || got[1] != "merge" {
		t.Fatalf("Tasks = %v, want [trim merge]", got)
	}
	if email := row.Contacts["Alice"]; email != "a@x.com" {
		t.Fatalf("Contacts[Alice] = %q, want a@x.com", email)
	}
	if email := row.Contacts["b"]; email != "b@y.com" {
		t.Fatalf("Contacts[b] (bare-email fallback) = %q, want b@y.com", email)
	}
	if _, ok := row.Extra[""]; ok {
		t.Fatalf("empty-keyed column should have been dropped")
	}
}

func TestLoadReaderStripsInvalidUTF8(t *testing.T) {
	var warned string
	bad := "Sample_Name,Project,Contacts,Tasks\nS1\xff,P1,,\n"
	rows, err := LoadReader(strings.NewReader(bad), func(msg string) { warned = msg })
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if warned == "" {
		t.Fatalf("expected warn callback to fire for invalid UTF-8")
	}
	if len(rows) != 1 || rows[0].SampleName != "S1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
