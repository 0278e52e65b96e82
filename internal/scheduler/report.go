package scheduler

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/umbra-run/umbrad/internal/project"
)

// reportFields is the fixed column order.
var reportFields = []string{
	"RunId", "RunPath",
	"Alignment", "Experiment", "AlignComplete",
	"Project", "WorkDir", "Status", "NSamples", "NFiles",
	"Group",
}

// reportRow is one CSV row: a Project, a Project-less Analysis, or a
// Project-less Run.
type reportRow map[string]string

// BuildReport assembles one row per Project (and a placeholder row for
// any Analysis or Run with nothing to show), sorted by
// (RunId, Alignment, Project). "Group" records which of the
// coordinator's three buckets (active/inactive/completed) currently
// holds the Project -- not a project-domain field.
func (s *Scheduler) BuildReport() []reportRow {
	group := map[string]string{}
	for key := range s.active {
		group[key] = "active"
	}
	for key := range s.inactive {
		group[key] = "inactive"
	}
	for key := range s.completed {
		group[key] = "completed"
	}

	byAnalysis := map[string][]*project.Project{}
	for _, p := range s.values3() {
		ak := analysisKey(p.RunID, p.AnalysisIndex)
		byAnalysis[ak] = append(byAnalysis[ak], p)
	}

	var rows []reportRow
	for _, r := range s.runs {
		base := reportRow{}
		for _, f := range reportFields {
			base[f] = ""
		}
		base["RunId"] = r.RunID()
		base["RunPath"] = r.Path()

		if len(r.Analyses) == 0 {
			rows = append(rows, base)
			continue
		}
		for idx, an := range r.Analyses {
			row := cloneRow(base)
			row["Alignment"] = strconv.Itoa(idx)
			row["Experiment"] = an.ExperimentName()
			row["AlignComplete"] = strconv.FormatBool(an.Complete())

			ak := analysisKey(r.RunID(), idx)
			projs := byAnalysis[ak]
			if len(projs) == 0 {
				rows = append(rows, row)
				continue
			}
			for _, p := range projs {
				pr := cloneRow(row)
				pr["Project"] = p.Name
				pr["WorkDir"] = p.WorkDirName
				pr["Status"] = string(p.Status)
				pr["NSamples"] = strconv.Itoa(len(p.SampleNames))
				nfiles := 0
				for _, paths := range p.SamplePaths {
					nfiles += len(paths)
				}
				pr["NFiles"] = strconv.Itoa(nfiles)
				pr["Group"] = group[projectKey(p)]
				rows = append(rows, pr)
			}
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i]["RunId"] != rows[j]["RunId"] {
			return rows[i]["RunId"] < rows[j]["RunId"]
		}
		if rows[i]["Alignment"] != rows[j]["Alignment"] {
			return rows[i]["Alignment"] < rows[j]["Alignment"]
		}
		return rows[i]["Project"] < rows[j]["Project"]
	})
	return rows
}

func analysisKey(runID string, idx int) string {
	return runID + "/" + strconv.Itoa(idx)
}

func cloneRow(r reportRow) reportRow {
	out := make(reportRow, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// values3 returns every Project the scheduler currently knows about,
// across all three buckets.
func (s *Scheduler) values3() []*project.Project {
	all := make([]*project.Project, 0, len(s.active)+len(s.inactive)+len(s.completed))
	all = append(all, values(s.active)...)
	all = append(all, values(s.inactive)...)
	all = append(all, values(s.completed)...)
	return all
}

// writeReportCSV renders the CSV report to w, truncating each field to
// maxWidth characters with an ellipsis suffix (0 disables truncation).
func writeReportCSV(rows []reportRow, maxWidth int, w *csv.Writer) error {
	if err := w.Write(reportFields); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, len(reportFields))
		for i, f := range reportFields {
			record[i] = truncate(row[f], maxWidth)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func truncate(s string, maxWidth int) string {
	if maxWidth <= 0 || len(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return s[:maxWidth]
	}
	return s[:maxWidth-3] + "..."
}

// SaveReport writes the current report to cfg.ReportPath, creating
// parent directories as needed.
func (s *Scheduler) SaveReport() error {
	if s.cfg.ReportPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.ReportPath), 0755); err != nil {
		return err
	}
	f, err := os.Create(s.cfg.ReportPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.WriteReportCSV(f, s.cfg.ReportMaxWidth)
}

// WriteReportCSV renders the current report as CSV to w, truncating
// each field to maxWidth characters (0 disables truncation). Used
// directly by `umbrad report`, which writes to stdout instead of
// save_report.path.
func (s *Scheduler) WriteReportCSV(w io.Writer, maxWidth int) error {
	rows := s.BuildReport()
	return writeReportCSV(rows, maxWidth, csv.NewWriter(w))
}
