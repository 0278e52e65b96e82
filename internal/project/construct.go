package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/umbra-run/umbrad/internal/experiment"
	"github.com/umbra-run/umbrad/internal/illumina"
	"github.com/umbra-run/umbrad/internal/tasks"
)

// Roots bundles the output-directory roots needs beyond
// experiments-root.
type Roots struct {
	ExperimentsRoot string
	StatusRoot      string
	ProcessedRoot   string
	PackagedRoot    string
}

// ProjectsFromAnalysis builds every Project for one completed Analysis
//. daemonReadOnly forces every constructed Project read-only
// regardless of on-disk state. warn receives non-fatal diagnostics
// (missing sample sheet entries, stripped metadata bytes, and so on).
func ProjectsFromAnalysis(
	an *illumina.Analysis,
	roots Roots,
	reg *tasks.Registry,
	uploader tasks.Uploader,
	mailer tasks.Mailer,
	daemonReadOnly bool,
	warn func(msg string),
) ([]*Project, error) {
	metadataPath := filepath.Join(roots.ExperimentsRoot, an.ExperimentName(), "metadata.csv")
	if _, err := os.Stat(metadataPath); err != nil {
		return nil, nil // step 1: no metadata, no projects
	}

	rows, err := experiment.Load(metadataPath, warn)
	if err != nil {
		return nil, fmt.Errorf("project: loading %s: %w", metadataPath, err)
	}

	sheet := an.SampleSheet()
	sampleIndex := map[string]int{}
	for i := range sheet.Data {
		sampleIndex[sheet.SampleName(i)] = i
	}

	loosePaths, err := an.SamplePaths(false)
	if err != nil {
		return nil, fmt.Errorf("project: resolving sample paths: %w", err)
	}

	type group struct {
		name        string
		sampleNames map[string]bool
		tasksWanted map[string]bool
		contacts    map[string]string
	}
	groups := map[string]*group{}
	var order []string
	for _, row := range rows {
		if row.Project == "" {
			continue
		}
		g, ok := groups[row.Project]
		if !ok {
			g = &group{name: row.Project, sampleNames: map[string]bool{}, tasksWanted: map[string]bool{}, contacts: map[string]string{}}
			groups[row.Project] = g
			order = append(order, row.Project)
		}
		if row.SampleName != "" {
			g.sampleNames[row.SampleName] = true
		}
		for _, t := range row.Tasks {
			g.tasksWanted[t] = true
		}
		for name, email := range row.Contacts {
			g.contacts[name] = email
		}
	}

	var projects []*Project
	for _, name := range order {
		g := groups[name]

		var sampleNames []string
		for s := range g.sampleNames {
			sampleNames = append(sampleNames, s)
		}
		sort.Strings(sampleNames)

		failed := false
		var failureMsg string
		if len(sampleNames) == 0 {
			failed = true
			failureMsg = "no sample names listed for project"
		} else {
			present := 0
			samplePaths := map[string][]string{}
			for _, s := range sampleNames {
				idx, ok := sampleIndex[s]
				if !ok {
					if warn != nil {
						warn(fmt.Sprintf("project %s: sample %q not present in sample sheet", name, s))
					}
					continue
				}
				present++
				samplePaths[s] = loosePaths[idx]
			}
			if present == 0 {
				failed = true
				failureMsg = "none of the project's listed samples are present in the sample sheet"
			}
			var requested []string
			for t := range g.tasksWanted {
				requested = append(requested, t)
			}
			sort.Strings(requested)
			resolved, err := tasks.Resolve(reg, requested)
			if err != nil {
				return nil, fmt.Errorf("project %s: %w", name, err)
			}

			workDirName := buildWorkDirName(name, g.contacts, an.Run().Flowcell(), an.Run().CompletedAt())
			statusFile := statusFilePath(roots.StatusRoot, an.Run().RunID(), an.Index(), name)
			processingDir := filepath.Join(roots.ProcessedRoot, workDirName)
			packageFile := filepath.Join(roots.PackagedRoot, workDirName+".zip")

			p := &Project{
				RunID:          an.Run().RunID(),
				AnalysisIndex:  an.Index(),
				Name:           name,
				WorkDirName:    workDirName,
				Analysis:       an,
				AnalysisPath:   an.Path(),
				ProcessingDir:  processingDir,
				PackageFile:    packageFile,
				StatusFile:     statusFile,
				SampleNames:    sampleNames,
				SamplePaths:    samplePaths,
				Contacts:       g.contacts,
				RequestedTasks: requested,
				Resolved:       resolved,
				Pending:        append([]string{}, resolved...),
				Completed:      []string{},
				Outputs:        map[string]map[string]any{},
				Status:         StatusNone,
				ExperimentName: an.ExperimentName(),
				Uploader:       uploader,
				Mailer:         mailer,
			}

			statusExists := StatusFileExists(roots.StatusRoot, an.Run().RunID(), an.Index(), name)
			hasProcessingFiles := dirHasFiles(processingDir)
			p.ReadOnly = statusExists || daemonReadOnly || hasProcessingFiles

			if statusExists {
				if err := p.LoadStatus(); err != nil {
					return nil, fmt.Errorf("project %s: %w", name, err)
				}
			} else if failed {
				p.Status = StatusFailed
				p.FailureException = failureMsg
				if !p.ReadOnly {
					if err := p.saveForce(); err != nil {
						return nil, fmt.Errorf("project %s: %w", name, err)
					}
				}
			} else if !p.ReadOnly {
				if err := p.saveForce(); err != nil {
					return nil, fmt.Errorf("project %s: %w", name, err)
				}
			}

			projects = append(projects, p)
			continue
		}

		// len(sampleNames) == 0 path: still construct a FAILED Project
		// so the scheduler has something to report.
		statusFile := statusFilePath(roots.StatusRoot, an.Run().RunID(), an.Index(), name)
		p := &Project{
			RunID:            an.Run().RunID(),
			AnalysisIndex:    an.Index(),
			Name:             name,
			Analysis:         an,
			AnalysisPath:     an.Path(),
			StatusFile:       statusFile,
			Contacts:         g.contacts,
			Status:           StatusFailed,
			FailureException: failureMsg,
			ExperimentName:   an.ExperimentName(),
			Uploader:         uploader,
			Mailer:           mailer,
		}
		p.ReadOnly = StatusFileExists(roots.StatusRoot, an.Run().RunID(), an.Index(), name) || daemonReadOnly
		if !p.ReadOnly {
			if err := p.saveForce(); err != nil {
				return nil, fmt.Errorf("project %s: %w", name, err)
			}
		}
		projects = append(projects, p)
	}

	return projects, nil
}

// buildWorkDirName computes the human-readable work directory name,
// dropping empty components. The date is the run's own completion
// timestamp, so the name is stable no matter when the daemon first
// sees the run.
func buildWorkDirName(projectName string, contacts map[string]string, flowcell string, completedAt time.Time) string {
	var parts []string
	if !completedAt.IsZero() {
		parts = append(parts, completedAt.Format("2006-01-02"))
	}
	parts = append(parts, Slug(projectName))
	if n := contactFirstNames(contacts); n != "" {
		parts = append(parts, Slug(n))
	}
	if flowcell != "" {
		parts = append(parts, Slug(flowcell))
	}
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "-")
}

func dirHasFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	return len(entries) > 0
}
