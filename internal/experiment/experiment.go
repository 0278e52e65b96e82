// Package experiment loads the per-experiment metadata spreadsheet:
// a CSV with a header row mapping sample names to the project, contacts,
// and requested tasks for that sample.
package experiment

import (
	"encoding/csv"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Row is one cleaned row of the metadata CSV.
type Row struct {
	SampleName string
	Project    string
	// Contacts maps a display name to an email address.
	Contacts map[string]string
	// Tasks is the lower-cased, whitespace-split Tasks column.
	Tasks []string
	// Extra holds any additional columns the spreadsheet declared,
	// preserved verbatim.
	Extra map[string]string
}

const (
	colSampleName = "Sample_Name"
	colProject    = "Project"
	colContacts   = "Contacts"
	colTasks      = "Tasks"
)

// Load reads and parses the metadata CSV at path. warn, if non-nil, is
// called once with a message if non-UTF-8 bytes had to be stripped.
func Load(path string, warn func(msg string)) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadReader(f, warn)
}

// LoadReader parses an already-open metadata CSV.
func LoadReader(r io.Reader, warn func(msg string)) ([]Row, error) {
	cr := csv.NewReader(stripInvalidUTF8(r, warn))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		raw := map[string]string{}
		allEmpty := true
		for i, col := range header {
			if col == "" {
				continue // empty columns dropped
			}
			var val string
			if i < len(rec) {
				val = rec[i]
			}
			raw[col] = val
			if strings.TrimSpace(val) != "" {
				allEmpty = false
			}
		}
		if allEmpty {
			continue // empty rows dropped
		}

		row := Row{
			SampleName: strings.TrimSpace(raw[colSampleName]),
			Project:    strings.TrimSpace(raw[colProject]),
			Contacts:   parseContacts(raw[colContacts]),
			Tasks:      parseTasks(raw[colTasks]),
			Extra:      map[string]string{},
		}
		for k, v := range raw {
			switch k {
			case colSampleName, colProject, colContacts, colTasks:
			default:
				row.Extra[k] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseTasks(text string) []string {
	fields := strings.Fields(text)
	tasks := make([]string, 0, len(fields))
	for _, f := range fields {
		tasks = append(tasks, strings.ToLower(f))
	}
	return tasks
}

var contactRe = regexp.MustCompile(`^\s*([\w ]*[\w]+)\s*<(.+@.+)>\s*$`)

// parseContacts splits "Name <email>, Name2 <email2>" style text on ','
// or ';', matching each chunk against "Name <email>" and falling back to
// treating a bare email's local-part as the name.
func parseContacts(text string) map[string]string {
	contacts := map[string]string{}
	if strings.TrimSpace(text) == "" {
		return contacts
	}
	chunks := regexp.MustCompile(`[,;]+`).Split(text, -1)
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if m := contactRe.FindStringSubmatch(chunk); m != nil {
			contacts[strings.TrimSpace(m[1])] = strings.TrimSpace(m[2])
			continue
		}
		// Bare email: local-part becomes the name.
		email := chunk
		name := email
		if at := strings.Index(email, "@"); at >= 0 {
			name = email[:at]
		}
		contacts[name] = email
	}
	return contacts
}

// stripInvalidUTF8 filters non-UTF-8 bytes out of r, calling warn once
// if any were found, and guarantees the csv.Reader never sees invalid
// bytes.
func stripInvalidUTF8(r io.Reader, warn func(string)) io.Reader {
	data, err := io.ReadAll(r)
	if err != nil {
		return strings.NewReader("")
	}
	if utf8.Valid(data) {
		return strings.NewReader(string(data))
	}
	if warn != nil {
		warn("metadata CSV contained non-UTF-8 bytes; they were stripped")
	}
	var b strings.Builder
	for len(data) > 0 {
		rn, size := utf8.DecodeRune(data)
		if rn == utf8.RuneError && size <= 1 {
			data = data[1:]
			continue
		}
		b.WriteRune(rn)
		data = data[size:]
	}
	return strings.NewReader(b.String())
}
