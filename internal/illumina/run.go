package illumina

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Instrument enumerates the recognized analysis directory layouts.
type Instrument int

const (
	InstrumentUnknown Instrument = iota
	InstrumentClassic            // MiSeq/HiSeq: Basecalling_Netcopy stage marker
	InstrumentNextSeq            // CopyComplete.txt marker
	InstrumentBCLConvert         // BCL Convert JSON secondary-analysis marker
)

type runInfoXML struct {
	XMLName xml.Name `xml:"RunInfo"`
	Run     struct {
		ID       string `xml:"Id,attr"`
		Flowcell string `xml:"Flowcell"`
	} `xml:"Run"`
}

// NewAnalysisCallback is invoked synchronously, from inside Run.Refresh,
// the first time a newly discovered Analysis is observed complete. It
// fires at most once per Analysis.
type NewAnalysisCallback func(a *Analysis)

// Options bundles the knobs a Run carries for the lifetime of its
// Analyses: they apply both to Analyses found at Open time and to any
// discovered by a later Refresh.
type Options struct {
	// Strict controls whether a RunInfo.xml declaring a different id than
	// the directory basename is surfaced through Warn. The mismatch is
	// accepted either way; the Run keeps the declared id.
	Strict bool

	// MinAge skips analysis subdirectories younger than this during
	// discovery; they are retried on the next refresh.
	MinAge time.Duration

	// GraceWindow overrides the default 30-minute window an Analysis
	// defers completion while expected fastq outputs are missing.
	GraceWindow time.Duration

	// OnComplete fires once per Analysis, on the refresh that first
	// observes its completion.
	OnComplete NewAnalysisCallback

	// Warn and Debug receive non-fatal diagnostics. Either may be nil.
	Warn  func(msg string)
	Debug func(msg string)
}

func (o Options) warnf(format string, args ...any) {
	if o.Warn != nil {
		o.Warn(fmt.Sprintf(format, args...))
	}
}

func (o Options) debugf(format string, args ...any) {
	if o.Debug != nil {
		o.Debug(fmt.Sprintf(format, args...))
	}
}

// Run represents one sequencer output directory.
type Run struct {
	path     string
	runID    string
	flowcell string
	opts     Options
	complete bool
	rtaTime  time.Time

	Analyses []*Analysis
}

// Open parses path as a Run directory: RunInfo.xml is the source of
// truth for the run id. Absence (or unparseability) of RunInfo.xml means
// "not a run" and is reported as *NotARun so discovery can swallow it
// with a debug log.
//
// A RunInfo.xml declaring a different id than the directory basename is
// accepted; in strict mode the mismatch is additionally reported through
// opts.Warn.
func Open(path string, opts Options) (*Run, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	infoPath := filepath.Join(abs, "RunInfo.xml")
	data, err := os.ReadFile(infoPath)
	if err != nil {
		return nil, &NotARun{Path: abs, Err: err}
	}
	var info runInfoXML
	if err := xml.Unmarshal(data, &info); err != nil {
		return nil, &NotARun{Path: abs, Err: err}
	}

	r := &Run{
		path:     abs,
		runID:    info.Run.ID,
		flowcell: info.Run.Flowcell,
		opts:     opts,
	}

	if r.Mismatched() && opts.Strict {
		opts.warnf("%s", (&MismatchedRunID{Declared: info.Run.ID, Dir: filepath.Base(abs)}).Error())
	}

	if err := r.refreshCompletion(); err != nil {
		return nil, err
	}
	if err := r.discoverAnalyses(); err != nil {
		return nil, err
	}

	return r, nil
}

// MismatchedRunID reports that the info file's declared id disagrees
// with the directory name. Warned about, never fatal.
type MismatchedRunID struct {
	Declared string
	Dir      string
}

func (e *MismatchedRunID) Error() string {
	return fmt.Sprintf("run directory name %q does not match declared run id %q", e.Dir, e.Declared)
}

// Mismatched reports whether this Run's directory name disagrees with
// its declared run id.
func (r *Run) Mismatched() bool {
	return filepath.Base(r.path) != r.runID
}

func (r *Run) Path() string     { return r.path }
func (r *Run) RunID() string    { return r.runID }
func (r *Run) Flowcell() string { return r.flowcell }
func (r *Run) Complete() bool   { return r.complete }

// CompletedAt is the run's completion timestamp as declared inside
// RTAComplete.txt, falling back to the marker file's mtime when the
// content is in a dialect we don't recognize. Zero while incomplete.
func (r *Run) CompletedAt() time.Time { return r.rtaTime }

func (r *Run) refreshCompletion() error {
	if r.complete {
		return nil // monotonic: never re-check once true
	}
	marker := filepath.Join(r.path, "RTAComplete.txt")
	fi, err := os.Stat(marker)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	r.complete = true
	if ts, err := loadRTAComplete(marker); err == nil {
		r.rtaTime = ts
	} else {
		r.rtaTime = fi.ModTime()
	}
	return nil
}

var rtaCompletedOnRe = regexp.MustCompile(`^RTA [0-9.]+ completed on (.+)$`)

// loadRTAComplete parses the completion timestamp out of an
// RTAComplete.txt body, handling both marker dialects:
//
//	RTA 2.8.6 completed on 3/17/2017 8:19:33 AM
//	11/2/2017,03:08:24.972,Illumina RTA 1.18.54
func loadRTAComplete(path string) (time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, err
	}
	line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	if m := rtaCompletedOnRe.FindStringSubmatch(line); m != nil {
		return time.ParseInLocation("1/2/2006 3:04:05 PM", strings.TrimSpace(m[1]), time.Local)
	}
	fields := strings.Split(line, ",")
	if len(fields) >= 2 {
		stamp := strings.TrimSpace(fields[0]) + " " + strings.TrimSpace(fields[1])
		return time.ParseInLocation("1/2/2006 15:04:05.000", stamp, time.Local)
	}
	return time.Time{}, fmt.Errorf("unrecognized RTAComplete.txt content: %q", line)
}

// Refresh re-reads the completion marker (if not yet complete), refreshes
// every known Analysis, and scans for new Analysis subdirectories.
func (r *Run) Refresh() error {
	if err := r.refreshCompletion(); err != nil {
		return err
	}
	for _, a := range r.Analyses {
		if err := a.Refresh(); err != nil {
			return fmt.Errorf("analysis %s: %w", a.Path(), err)
		}
	}
	return r.discoverAnalyses()
}

func (r *Run) discoverAnalyses() error {
	known := make(map[string]bool, len(r.Analyses))
	for _, a := range r.Analyses {
		known[a.Path()] = true
	}

	candidates, err := discoverAnalysisDirs(r.path)
	if err != nil {
		return err
	}

	for _, dir := range candidates {
		if known[dir] {
			continue
		}
		fi, err := os.Stat(dir)
		if err != nil {
			continue
		}
		if r.opts.MinAge > 0 && time.Since(fi.ModTime()) < r.opts.MinAge {
			r.opts.debugf("analysis dir %s: younger than min_age, deferring", dir)
			continue
		}
		a, err := newAnalysis(dir, r, len(r.Analyses))
		if err != nil {
			if _, ok := err.(*UnsupportedAnalysis); ok {
				r.opts.warnf("%s", err.Error())
			} else {
				r.opts.debugf("%s: skipping: %v", dir, err)
			}
			continue
		}
		r.Analyses = append(r.Analyses, a)
		known[dir] = true
	}
	return nil
}
