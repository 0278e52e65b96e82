// Package samplesheet parses the INI-like sample sheet format used by
// Illumina-style sequencers: bracketed section headers delimit
// key/value sections ([Header], [Settings]), a list section ([Reads]),
// and one or two CSV-table sections ([Data], [BCLConvert_Data]).
package samplesheet

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// SampleSheet is the parsed, opaque structured form of a sample sheet
// file. Callers treat Header/Settings/Reads/Data as read-only data.
type SampleSheet struct {
	Header   map[string]string
	Settings map[string]string
	Reads    []int
	// Data holds the per-sample table rows in file order, keyed by the
	// table's own header row. DataSection records which section name
	// supplied the table ("Data" or "BCLConvert_Data").
	Data        []map[string]string
	DataSection string
}

// SampleName returns the sample name for the row at the given zero-based
// index, falling back to Sample_ID when Sample_Name is blank.
func (s *SampleSheet) SampleName(i int) string {
	row := s.Data[i]
	name := strings.TrimSpace(row["Sample_Name"])
	if name == "" {
		name = strings.TrimSpace(row["Sample_ID"])
	}
	return name
}

// ExperimentName returns the sample sheet's declared experiment name,
// accounting for the classic ("Experiment Name") and newer
// ("Experiment_Name") header key spellings.
func (s *SampleSheet) ExperimentName() string {
	if v, ok := s.Header["Experiment_Name"]; ok && v != "" {
		return v
	}
	return s.Header["Experiment Name"]
}

// Parse reads a sample sheet from path.
func Parse(path string) (*SampleSheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseReader(f)
}

// ParseReader parses a sample sheet from an already-open reader.
func ParseReader(r io.Reader) (*SampleSheet, error) {
	sheet := &SampleSheet{
		Header:   map[string]string{},
		Settings: map[string]string{},
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var section string
	var tableHeader []string
	var tableRows [][]string

	flushTable := func() {
		if section == "" || len(tableHeader) == 0 {
			return
		}
		sheet.DataSection = section
		sheet.Data = make([]map[string]string, 0, len(tableRows))
		for _, rec := range tableRows {
			row := make(map[string]string, len(tableHeader))
			for i, col := range tableHeader {
				if col == "" {
					continue // empty columns are dropped
				}
				if i < len(rec) {
					row[col] = rec[i]
				}
			}
			sheet.Data = append(sheet.Data, row)
		}
		tableHeader = nil
		tableRows = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			if section == "Data" || section == "BCLConvert_Data" {
				flushTable()
			}
			section = strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
			continue
		}

		fields := splitCSVLine(line)

		switch section {
		case "Header", "Settings":
			key := ""
			val := ""
			if len(fields) > 0 {
				key = strings.TrimSpace(fields[0])
			}
			if len(fields) > 1 {
				val = strings.TrimSpace(fields[1])
			}
			if key == "" {
				continue
			}
			if section == "Header" {
				sheet.Header[key] = val
			} else {
				sheet.Settings[key] = val
			}
		case "Reads":
			if len(fields) == 0 || strings.TrimSpace(fields[0]) == "" {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(fields[0]))
			if err != nil {
				return nil, fmt.Errorf("samplesheet: invalid [Reads] entry %q: %w", fields[0], err)
			}
			sheet.Reads = append(sheet.Reads, n)
		case "Data", "BCLConvert_Data":
			if tableHeader == nil {
				tableHeader = fields
				continue
			}
			tableRows = append(tableRows, fields)
		}
	}
	flushTable()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("samplesheet: %w", err)
	}
	return sheet, nil
}

func splitCSVLine(line string) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	rec, err := r.Read()
	if err != nil {
		// Fall back to a plain split for malformed CSV rather than
		// failing the whole sheet over one odd line.
		return strings.Split(line, ",")
	}
	return rec
}
