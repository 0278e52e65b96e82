package illumina

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeRunInfo(t *testing.T, dir, runID string) {
	t.Helper()
	xml := `<?xml version="1.0"?><RunInfo><Run Id="` + runID + `"><Flowcell>FC1</Flowcell></Run></RunInfo>`
	if err := os.WriteFile(filepath.Join(dir, "RunInfo.xml"), []byte(xml), 0644); err != nil {
		t.Fatal(err)
	}
}

func writeClassicAnalysis(t *testing.T, runDir string, complete bool) string {
	t.Helper()
	alDir := filepath.Join(runDir, "Alignment1")
	baseCalls := filepath.Join(runDir, "Data", "Intensities", "BaseCalls")
	if err := os.MkdirAll(baseCalls, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(alDir, 0755); err != nil {
		t.Fatal(err)
	}
	sheet := "[Header]\nExperiment_Name,EXP1\n\n[Reads]\n2\n\n[Data]\nSample_ID,Sample_Name\nS1,Sample1\n"
	if err := os.WriteFile(filepath.Join(alDir, "SampleSheet.csv"), []byte(sheet), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(baseCalls, "Sample1_S1_L001_R1_001.fastq.gz"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if complete {
		if err := os.WriteFile(filepath.Join(baseCalls, "Sample1_S1_L001_R2_001.fastq.gz"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(alDir, "Basecalling_Netcopy_complete.txt"), []byte("3,Done\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return alDir
}

func TestOpenNotARun(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, Options{})
	if _, ok := err.(*NotARun); !ok {
		t.Fatalf("expected *NotARun, got %v (%T)", err, err)
	}
}

func TestOpenAndAnalysisCompletion(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "RUN_A")
	if err := os.MkdirAll(runDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeRunInfo(t, runDir, "RUN_A")
	writeClassicAnalysis(t, runDir, false)

	var fired []*Analysis
	r, err := Open(runDir, Options{OnComplete: func(a *Analysis) { fired = append(fired, a) }})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.Complete() {
		t.Fatalf("run should not be complete yet (no RTAComplete.txt)")
	}
	if len(r.Analyses) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(r.Analyses))
	}
	if r.Analyses[0].Complete() {
		t.Fatalf("analysis should not be complete until run completes and marker exists")
	}

	// Mark the run complete and the analysis's marker; refresh should
	// now observe completion and fire the callback exactly once.
	if err := os.WriteFile(filepath.Join(runDir, "RTAComplete.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	writeClassicAnalysis(t, runDir, true)

	if err := r.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !r.Complete() {
		t.Fatalf("run should be complete")
	}
	if !r.Analyses[0].Complete() {
		t.Fatalf("analysis should be complete")
	}
	if len(fired) != 1 {
		t.Fatalf("callback should fire exactly once, fired %d times", len(fired))
	}

	// Further refreshes must not re-fire the callback (monotonic).
	if err := r.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("callback fired again on second refresh: %d", len(fired))
	}
}

func TestNextSeqAnalysisCompleteByMarkerPhrase(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "RUN_N")
	alDir := filepath.Join(runDir, "Alignment1")
	fastqDir := filepath.Join(alDir, "Fastq")
	if err := os.MkdirAll(fastqDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeRunInfo(t, runDir, "RUN_N")
	if err := os.WriteFile(filepath.Join(runDir, "RTAComplete.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	sheet := "[Header]\nExperiment_Name,EXPN\n\n[Reads]\n1\n\n[Data]\nSample_ID,Sample_Name\nS1,Sample1\n"
	if err := os.WriteFile(filepath.Join(alDir, "SampleSheetUsed.csv"), []byte(sheet), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fastqDir, "Sample1_S1_L001_R1_001.fastq.gz"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(alDir, "CopyComplete.txt")
	if err := os.WriteFile(marker, []byte(""), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := Open(runDir, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(r.Analyses) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(r.Analyses))
	}
	a := r.Analyses[0]
	if a.Instrument() != InstrumentNextSeq {
		t.Fatalf("Instrument() = %v, want InstrumentNextSeq", a.Instrument())
	}
	if a.Complete() {
		t.Fatalf("marker without the completion phrase must not mark the analysis complete")
	}

	if err := os.WriteFile(marker, []byte("Fastq generation complete\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := r.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !a.Complete() {
		t.Fatalf("analysis should be complete once the marker contains the phrase")
	}
}

func TestBCLConvertAnalysisCompleteBySucceededStatus(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "RUN_BC")
	alDir := filepath.Join(runDir, "Analysis1")
	dataDir := filepath.Join(alDir, "Data")
	secDir := filepath.Join(alDir, "Analysis", "1", "Data")
	fastqDir := filepath.Join(secDir, "fastq")
	for _, d := range []string{dataDir, fastqDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	writeRunInfo(t, runDir, "RUN_BC")
	if err := os.WriteFile(filepath.Join(runDir, "RTAComplete.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	sheet := "[Header]\nExperiment_Name,EXPB\n\n[Reads]\n1\n\n[BCLConvert_Data]\nSample_ID,Sample_Name\nS1,Sample1\n"
	if err := os.WriteFile(filepath.Join(dataDir, "SampleSheet.csv"), []byte(sheet), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fastqDir, "Sample1_S1_L001_R1_001.fastq.gz"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(secDir, "Secondary_Analysis_Complete.txt")
	if err := os.WriteFile(marker, []byte(`{"AnalysisStatus": "Succeeded"}`), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := Open(runDir, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(r.Analyses) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(r.Analyses))
	}
	a := r.Analyses[0]
	if a.Instrument() != InstrumentBCLConvert {
		t.Fatalf("Instrument() = %v, want InstrumentBCLConvert", a.Instrument())
	}
	if !a.Complete() {
		t.Fatalf("analysis should be complete: AnalysisStatus is Succeeded")
	}
}

func TestBCLConvertRejectsUnreadableCompression(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "RUN_Z")
	dataDir := filepath.Join(runDir, "Analysis1", "Data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeRunInfo(t, runDir, "RUN_Z")
	sheet := "[Header]\nExperiment_Name,EXPZ\n\n[Settings]\nOutputFastqCompression,zst\n\n[Reads]\n1\n\n[BCLConvert_Data]\nSample_ID,Sample_Name\nS1,Sample1\n"
	if err := os.WriteFile(filepath.Join(dataDir, "SampleSheet.csv"), []byte(sheet), 0644); err != nil {
		t.Fatal(err)
	}

	var warnings []string
	r, err := Open(runDir, Options{Warn: func(msg string) { warnings = append(warnings, msg) }})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(r.Analyses) != 0 {
		t.Fatalf("expected unsupported analysis to be skipped, got %d", len(r.Analyses))
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "unsupported analysis") {
		t.Fatalf("expected one unsupported-analysis warning, got %v", warnings)
	}
}

func TestRunCompletedAtParsesRTAComplete(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    time.Time
	}{
		{
			name:    "miseq csv dialect",
			content: "11/2/2017,03:08:24.972,Illumina RTA 1.18.54\n",
			want:    time.Date(2017, 11, 2, 3, 8, 24, 972000000, time.Local),
		},
		{
			name:    "miniseq sentence dialect",
			content: "RTA 2.8.6 completed on 3/17/2017 8:19:33 AM\n",
			want:    time.Date(2017, 3, 17, 8, 19, 33, 0, time.Local),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			runDir := filepath.Join(dir, "RUN_T")
			if err := os.MkdirAll(runDir, 0755); err != nil {
				t.Fatal(err)
			}
			writeRunInfo(t, runDir, "RUN_T")
			if err := os.WriteFile(filepath.Join(runDir, "RTAComplete.txt"), []byte(tc.content), 0644); err != nil {
				t.Fatal(err)
			}

			r, err := Open(runDir, Options{})
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if !r.Complete() {
				t.Fatalf("run should be complete")
			}
			if !r.CompletedAt().Equal(tc.want) {
				t.Fatalf("CompletedAt() = %v, want %v", r.CompletedAt(), tc.want)
			}
		})
	}
}

func TestRunCompletedAtFallsBackToMarkerMtime(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "RUN_F")
	if err := os.MkdirAll(runDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeRunInfo(t, runDir, "RUN_F")
	if err := os.WriteFile(filepath.Join(runDir, "RTAComplete.txt"), []byte("gibberish"), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := Open(runDir, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.CompletedAt().IsZero() {
		t.Fatalf("expected mtime fallback, got zero CompletedAt")
	}
}

func TestMinAgeSkipsYoungDirs(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "RUN_B")
	if err := os.MkdirAll(runDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeRunInfo(t, runDir, "RUN_B")
	writeClassicAnalysis(t, runDir, false)

	r, err := Open(runDir, Options{MinAge: time.Hour})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(r.Analyses) != 0 {
		t.Fatalf("expected young analysis dir to be skipped, got %d", len(r.Analyses))
	}
}

func TestMismatchedRunIDStrictWarnsAndLoads(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "alt-name")
	if err := os.MkdirAll(runDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeRunInfo(t, runDir, "RUN_A")

	var warnings []string
	r, err := Open(runDir, Options{Strict: true, Warn: func(msg string) { warnings = append(warnings, msg) }})
	if err != nil {
		t.Fatalf("Open (strict): mismatch must not reject the run: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly 1 mismatch warning, got %v", warnings)
	}
	if !r.Mismatched() {
		t.Fatalf("expected Mismatched() true")
	}
	if r.RunID() != "RUN_A" {
		t.Fatalf("RunID() = %q, want RUN_A (declared id wins)", r.RunID())
	}
}

func TestMismatchedRunIDNonStrictSilent(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "alt-name")
	if err := os.MkdirAll(runDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeRunInfo(t, runDir, "RUN_A")

	var warnings []string
	r, err := Open(runDir, Options{Warn: func(msg string) { warnings = append(warnings, msg) }})
	if err != nil {
		t.Fatalf("Open (non-strict): %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("non-strict mismatch should be silent, got %v", warnings)
	}
	if !r.Mismatched() {
		t.Fatalf("expected Mismatched() true")
	}
}
