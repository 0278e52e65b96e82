package illumina

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/umbra-run/umbrad/internal/samplesheet"
)

// defaultGraceWindow is the default grace window (30 minutes): how
// long an Analysis will defer completion while expected fastq outputs
// are still missing before declaring completion regardless.
const defaultGraceWindow = 30 * time.Minute

// variant captures the parts of an Analysis that differ by instrument
// layout: where the sample sheet and fastq directory live, and
// how completion is signalled.
type variant interface {
	name() Instrument
	// locate resolves the concrete sample sheet, fastq directory, and
	// completion marker paths for an analysis rooted at dir inside the
	// run at runPath. ok is false if dir does not match this variant's
	// layout at all.
	locate(runPath, dir string) (sampleSheet, fastqDir, marker string, ok bool)
	// complete inspects the marker file (which may not exist yet) and
	// reports whether the analysis has finished.
	complete(marker string) (bool, error)
	// reject returns a non-nil reason if the parsed sample sheet
	// declares something this variant's pipeline cannot read.
	reject(sheet *samplesheet.SampleSheet) string
}

// Analysis represents one demultiplexing pass within a Run.
type Analysis struct {
	run   *Run
	path  string
	index int
	v     variant

	pathSampleSheet string
	pathFastq       string
	pathMarker      string

	sheet *samplesheet.SampleSheet

	complete        bool
	firstDeferredAt time.Time
	graceWindow     time.Duration
	callbackFired   bool
}

var variants = []variant{classicVariant{}, nextSeqVariant{}, bclConvertVariant{}}

func newAnalysis(dir string, run *Run, index int) (*Analysis, error) {
	for _, v := range variants {
		sheetPath, fastqDir, marker, ok := v.locate(run.path, dir)
		if !ok {
			continue
		}
		sheet, err := samplesheet.Parse(sheetPath)
		if err != nil {
			continue
		}
		if reason := v.reject(sheet); reason != "" {
			return nil, &UnsupportedAnalysis{Path: dir, Reason: reason}
		}
		a := &Analysis{
			run:             run,
			path:            dir,
			index:           index,
			v:               v,
			pathSampleSheet: sheetPath,
			pathFastq:       fastqDir,
			pathMarker:      marker,
			sheet:           sheet,
			graceWindow:     defaultGraceWindow,
		}
		if run.opts.GraceWindow > 0 {
			a.graceWindow = run.opts.GraceWindow
		}
		if err := a.Refresh(); err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, &NotAnAnalysis{Path: dir}
}

func (a *Analysis) Path() string                          { return a.path }
func (a *Analysis) Index() int                            { return a.index }
func (a *Analysis) Run() *Run                             { return a.run }
func (a *Analysis) Complete() bool                        { return a.complete }
func (a *Analysis) SampleSheet() *samplesheet.SampleSheet { return a.sheet }
func (a *Analysis) Instrument() Instrument                { return a.v.name() }
func (a *Analysis) ExperimentName() string                { return a.sheet.ExperimentName() }
func (a *Analysis) FastqDir() string                      { return a.pathFastq }

// Refresh is idempotent: while the parent Run is incomplete, or this
// Analysis is already complete, it does nothing substantive.
func (a *Analysis) Refresh() error {
	if a.complete {
		return nil
	}
	if !a.run.Complete() {
		return nil
	}

	done, err := a.v.complete(a.pathMarker)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}

	// Marker says done; verify every expected fastq file actually
	// exists before trusting it (retry-latency rule).
	if _, err := a.SamplePaths(true); err != nil {
		if _, ok := err.(*MissingFile); ok {
			if a.firstDeferredAt.IsZero() {
				a.firstDeferredAt = time.Now()
			}
			if time.Since(a.firstDeferredAt) < a.graceWindow {
				return nil // keep deferring, try again next refresh
			}
			// Grace window elapsed: consider complete regardless.
		} else {
			return err
		}
	}

	a.complete = true
	if a.run.opts.OnComplete != nil && !a.callbackFired {
		a.callbackFired = true
		a.run.opts.OnComplete(a)
	}
	return nil
}

// SamplePaths returns, in sample-sheet order, the ordered per-read-file
// path set for every sample. When strict, a missing file returns
// *MissingFile immediately; otherwise missing entries are included as
// unresolved (non-existent) paths.
func (a *Analysis) SamplePaths(strict bool) ([][]string, error) {
	result := make([][]string, len(a.sheet.Data))
	for i := range a.sheet.Data {
		names := a.sampleFileNames(i)
		paths := make([]string, 0, len(names))
		for _, name := range names {
			fp := filepath.Join(a.pathFastq, name)
			if strict {
				if _, err := os.Stat(fp); err != nil {
					return nil, &MissingFile{Path: fp}
				}
			}
			paths = append(paths, fp)
		}
		result[i] = paths
	}
	return result, nil
}

// sampleFileNames predicts the expected fastq filenames for the sample
// at the given zero-based index, one per entry in [Reads], following the
// classic Illumina naming convention.
func (a *Analysis) sampleFileNames(idx int) []string {
	sname := sanitizeSampleName(a.sheet.SampleName(idx))
	names := make([]string, 0, len(a.sheet.Reads))
	for r := range a.sheet.Reads {
		names = append(names, fmt.Sprintf("%s_S%d_L%03d_R%d_001.fastq.gz", sname, idx+1, 1, r+1))
	}
	return names
}

func sanitizeSampleName(name string) string {
	out := make([]rune, 0, len(name))
	for _, c := range name {
		switch {
		case c == '/' || c == '+' || c == '#' || c == '_' || c == ' ' || c == '.' || c == '-':
			if len(out) > 0 && out[len(out)-1] == '-' {
				continue
			}
			out = append(out, '-')
		default:
			out = append(out, c)
		}
	}
	s := string(out)
	for len(s) > 0 && s[0] == '-' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == '-' {
		s = s[:len(s)-1]
	}
	return s
}

func discoverAnalysisDirs(runPath string) ([]string, error) {
	var dirs []string
	patterns := []string{
		filepath.Join(runPath, "Alignment*"),
		filepath.Join(runPath, "Data", "Intensities", "BaseCalls", "Alignment*"),
		filepath.Join(runPath, "Analysis*"),
	}
	for _, pat := range patterns {
		matches, err := filepath.Glob(pat)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			fi, err := os.Stat(m)
			if err == nil && fi.IsDir() {
				dirs = append(dirs, m)
			}
		}
	}
	return dirs, nil
}
