package project

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// toRecord snapshots the Project's current state into its on-disk form.
func (p *Project) toRecord() record {
	var r record
	r.Status = p.Status
	r.Resolved = p.Resolved
	r.Pending = p.Pending
	r.Current = p.Current
	r.Completed = p.Completed
	r.Outputs = p.Outputs
	r.ExperimentInfo.Name = p.ExperimentName
	r.ExperimentInfo.Contacts = p.Contacts
	r.ExperimentInfo.SampleNames = p.SampleNames
	r.ExperimentInfo.Tasks = p.RequestedTasks
	r.SamplePaths = p.SamplePaths
	r.FailureException = p.FailureException
	r.RunID = p.RunID
	r.AnalysisIndex = p.AnalysisIndex
	r.AnalysisPath = p.AnalysisPath
	if p.Analysis != nil {
		r.AnalysisPath = p.Analysis.Path()
	}
	r.WorkDir = p.WorkDirName
	r.ProcessingDir = p.ProcessingDir
	r.PackageFile = p.PackageFile
	return r
}

// applyRecord restores Project fields from a loaded on-disk record.
func (p *Project) applyRecord(r record) {
	p.Status = r.Status
	p.Resolved = r.Resolved
	p.Pending = r.Pending
	p.Current = r.Current
	p.Completed = r.Completed
	p.Outputs = r.Outputs
	p.ExperimentName = r.ExperimentInfo.Name
	p.Contacts = r.ExperimentInfo.Contacts
	p.SampleNames = r.ExperimentInfo.SampleNames
	p.RequestedTasks = r.ExperimentInfo.Tasks
	p.SamplePaths = r.SamplePaths
	p.FailureException = r.FailureException
	p.RunID = r.RunID
	p.AnalysisIndex = r.AnalysisIndex
	p.AnalysisPath = r.AnalysisPath
	if r.WorkDir != "" {
		p.WorkDirName = r.WorkDir
	}
	if r.ProcessingDir != "" {
		p.ProcessingDir = r.ProcessingDir
	}
	if r.PackageFile != "" {
		p.PackageFile = r.PackageFile
	}
}

// Save persists the Project's status file atomically: write to a .tmp
// sibling, then rename over the target, so readers never see a
// half-written document. Read-only Projects never write.
func (p *Project) Save() error {
	if p.ReadOnly {
		return &ReadOnlyProject{Name: p.Name}
	}
	return p.saveForce()
}

func (p *Project) saveForce() error {
	if err := os.MkdirAll(filepath.Dir(p.StatusFile), 0755); err != nil {
		return fmt.Errorf("cannot create status dir: %w", err)
	}

	data, err := yaml.Marshal(p.toRecord())
	if err != nil {
		return fmt.Errorf("cannot marshal status: %w", err)
	}

	tmp := p.StatusFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("cannot write temp status file: %w", err)
	}
	if err := os.Rename(tmp, p.StatusFile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cannot rename temp status file: %w", err)
	}
	return nil
}

// LoadStatus reads an existing status file into the Project, used when
// the scheduler rediscovers a Project across a restart. Unknown fields
// draw a logged warning rather than a fatal error, so a status file
// written by a newer daemon version doesn't brick an older one on
// restart.
func (p *Project) LoadStatus() error {
	data, err := os.ReadFile(p.StatusFile)
	if err != nil {
		return fmt.Errorf("cannot read status file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var r record
	if err := dec.Decode(&r); err != nil {
		log.Printf("status file %s: unknown field(s) ignored: %v", p.StatusFile, err)
		if err := yaml.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("cannot parse status file %s: %w", p.StatusFile, err)
		}
	}
	p.applyRecord(r)
	return nil
}

// StatusFileExists reports whether a status file is already present on
// disk for the given identity, without loading it.
func StatusFileExists(statusRoot, runID string, analysisIndex int, projectName string) bool {
	_, err := os.Stat(statusFilePath(statusRoot, runID, analysisIndex, projectName))
	return err == nil
}
