package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/umbra-run/umbrad/internal/illumina"
	"github.com/umbra-run/umbrad/internal/tasks"
)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type fakeUploader struct{ url string }

func (f *fakeUploader) Upload(ctx context.Context, localPath string) (string, error) {
	return f.url, nil
}

type fakeMailer struct{ sent []string }

func (f *fakeMailer) Send(ctx context.Context, to []string, subject, body string, html bool) error {
	f.sent = append(f.sent, subject)
	return nil
}

func setupAnalysis(t *testing.T) (*illumina.Analysis, string) {
	t.Helper()
	runsDir := t.TempDir()
	runDir := filepath.Join(runsDir, "RUN_A")
	alDir := filepath.Join(runDir, "Alignment1")
	baseCalls := filepath.Join(runDir, "Data", "Intensities", "BaseCalls")
	for _, d := range []string{alDir, baseCalls} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	xml := `<?xml version="1.0"?><RunInfo><Run Id="RUN_A"><Flowcell>FC1</Flowcell></Run></RunInfo>`
	if err := os.WriteFile(filepath.Join(runDir, "RunInfo.xml"), []byte(xml), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "RTAComplete.txt"), []byte("11/2/2017,03:08:24.972,Illumina RTA 1.18.54\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sheet := "[Header]\nExperiment_Name,EXP1\n\n[Reads]\n2\n\n[Data]\nSample_ID,Sample_Name\nS1,Sample1\nS2,Sample2\n"
	if err := os.WriteFile(filepath.Join(alDir, "SampleSheet.csv"), []byte(sheet), 0644); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{
		"Sample1_S1_L001_R1_001.fastq.gz", "Sample1_S1_L001_R2_001.fastq.gz",
		"Sample2_S2_L001_R1_001.fastq.gz", "Sample2_S2_L001_R2_001.fastq.gz",
	} {
		if err := os.WriteFile(filepath.Join(baseCalls, f), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(alDir, "Basecalling_Netcopy_complete.txt"), []byte("3,Done\n"), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := illumina.Open(runDir, illumina.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(r.Analyses) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(r.Analyses))
	}
	return r.Analyses[0], runsDir
}

func writeMetadata(t *testing.T, experimentsRoot string, rows string) {
	t.Helper()
	dir := filepath.Join(experimentsRoot, "EXP1")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	header := "Sample_Name,Project,Contacts,Tasks\n"
	if err := os.WriteFile(filepath.Join(dir, "metadata.csv"), []byte(header+rows), 0644); err != nil {
		t.Fatal(err)
	}
}

func testRoots(t *testing.T, experimentsRoot string) Roots {
	t.Helper()
	base := t.TempDir()
	return Roots{
		ExperimentsRoot: experimentsRoot,
		StatusRoot:      filepath.Join(base, "status"),
		ProcessedRoot:   filepath.Join(base, "processed"),
		PackagedRoot:    filepath.Join(base, "packaged"),
	}
}

func TestProjectsFromAnalysisNoMetadata(t *testing.T) {
	an, runsDir := setupAnalysis(t)
	experimentsRoot := filepath.Join(runsDir, "experiments")
	roots := testRoots(t, experimentsRoot)
	reg := tasks.NewRegistry()

	projects, err := ProjectsFromAnalysis(an, roots, reg, &fakeUploader{}, &fakeMailer{}, false, nil)
	if err != nil {
		t.Fatalf("ProjectsFromAnalysis: %v", err)
	}
	if projects != nil {
		t.Fatalf("expected no projects without metadata.csv, got %d", len(projects))
	}
}

func TestProjectsFromAnalysisBuildsAndSaves(t *testing.T) {
	an, runsDir := setupAnalysis(t)
	experimentsRoot := filepath.Join(runsDir, "experiments")
	writeMetadata(t, experimentsRoot, "Sample1,ProjA,Alice <alice@example.com>,trim\nSample2,ProjA,Bob <bob@example.com>,trim\n")
	roots := testRoots(t, experimentsRoot)
	reg := tasks.NewRegistry()

	projects, err := ProjectsFromAnalysis(an, roots, reg, &fakeUploader{url: "http://x/pkg.zip"}, &fakeMailer{}, false, nil)
	if err != nil {
		t.Fatalf("ProjectsFromAnalysis: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(projects))
	}
	p := projects[0]
	if p.Name != "ProjA" {
		t.Fatalf("Name = %q", p.Name)
	}
	if p.ReadOnly {
		t.Fatalf("freshly constructed project should not be read-only")
	}
	if len(p.SampleNames) != 2 {
		t.Fatalf("expected 2 sample names, got %v", p.SampleNames)
	}
	if _, err := os.Stat(p.StatusFile); err != nil {
		t.Fatalf("expected status file to be written: %v", err)
	}
	if !contains(p.Resolved, "trim") || !contains(p.Resolved, "package") {
		t.Fatalf("resolved list missing expected tasks: %v", p.Resolved)
	}
	// Date component comes from the run's RTAComplete timestamp, not
	// from when the daemon happened to construct the Project.
	if p.WorkDirName != "2017-11-02-ProjA-Alice-Bob-FC1" {
		t.Fatalf("WorkDirName = %q, want 2017-11-02-ProjA-Alice-Bob-FC1", p.WorkDirName)
	}
}

func TestProjectsFromAnalysisFailsWithNoMatchingSamples(t *testing.T) {
	an, runsDir := setupAnalysis(t)
	experimentsRoot := filepath.Join(runsDir, "experiments")
	writeMetadata(t, experimentsRoot, "NoSuchSample,ProjB,Carol <carol@example.com>,trim\n")
	roots := testRoots(t, experimentsRoot)
	reg := tasks.NewRegistry()

	projects, err := ProjectsFromAnalysis(an, roots, reg, &fakeUploader{}, &fakeMailer{}, false, nil)
	if err != nil {
		t.Fatalf("ProjectsFromAnalysis: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(projects))
	}
	if projects[0].Status != StatusFailed {
		t.Fatalf("expected FAILED status, got %v", projects[0].Status)
	}
}

func TestProjectsFromAnalysisReadOnlyWhenDaemonReadOnly(t *testing.T) {
	an, runsDir := setupAnalysis(t)
	experimentsRoot := filepath.Join(runsDir, "experiments")
	writeMetadata(t, experimentsRoot, "Sample1,ProjA,Alice <alice@example.com>,trim\n")
	roots := testRoots(t, experimentsRoot)
	reg := tasks.NewRegistry()

	projects, err := ProjectsFromAnalysis(an, roots, reg, &fakeUploader{}, &fakeMailer{}, true, nil)
	if err != nil {
		t.Fatalf("ProjectsFromAnalysis: %v", err)
	}
	if !projects[0].ReadOnly {
		t.Fatalf("expected project to be read-only when daemon is read-only")
	}
	if _, err := os.Stat(projects[0].StatusFile); err == nil {
		t.Fatalf("read-only project should not have written a status file")
	}
}

func TestProcessRunsToCompletion(t *testing.T) {
	an, runsDir := setupAnalysis(t)
	experimentsRoot := filepath.Join(runsDir, "experiments")
	writeMetadata(t, experimentsRoot, "Sample1,ProjA,Alice <alice@example.com>,trim\nSample2,ProjA,Bob <bob@example.com>,trim\n")
	roots := testRoots(t, experimentsRoot)
	reg := tasks.NewRegistry()
	mailer := &fakeMailer{}

	projects, err := ProjectsFromAnalysis(an, roots, reg, &fakeUploader{url: "http://x/pkg.zip"}, mailer, false, nil)
	if err != nil {
		t.Fatalf("ProjectsFromAnalysis: %v", err)
	}
	p := projects[0]

	cfg := map[string]map[string]any{}
	if err := p.Process(context.Background(), reg, cfg, nil); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if p.Status != StatusComplete {
		t.Fatalf("expected COMPLETE, got %v (failure: %s)", p.Status, p.FailureException)
	}
	if len(p.Pending) != 0 || p.Current != "" {
		t.Fatalf("expected empty pending/current, got pending=%v current=%q", p.Pending, p.Current)
	}
	if len(p.Completed) != len(p.Resolved) {
		t.Fatalf("expected all %d tasks completed, got %d", len(p.Resolved), len(p.Completed))
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected exactly 1 email sent, got %d", len(mailer.sent))
	}
	if _, err := os.Stat(p.PackageFile); err != nil {
		t.Fatalf("expected package file to exist: %v", err)
	}
	for _, task := range p.Resolved {
		logFile := filepath.Join(p.ProcessingDir, "logs", "log_"+task+".txt")
		if _, err := os.Stat(logFile); err != nil {
			t.Fatalf("expected per-task log %s: %v", logFile, err)
		}
	}
}

func TestStatusFileRoundTrips(t *testing.T) {
	an, runsDir := setupAnalysis(t)
	experimentsRoot := filepath.Join(runsDir, "experiments")
	writeMetadata(t, experimentsRoot, "Sample1,ProjA,Alice <alice@example.com>,trim\n")
	roots := testRoots(t, experimentsRoot)
	reg := tasks.NewRegistry()

	projects, err := ProjectsFromAnalysis(an, roots, reg, &fakeUploader{}, &fakeMailer{}, false, nil)
	if err != nil {
		t.Fatalf("ProjectsFromAnalysis: %v", err)
	}
	p := projects[0]
	if err := p.Process(context.Background(), reg, nil, nil); err != nil {
		t.Fatalf("Process: %v", err)
	}

	original, err := os.ReadFile(p.StatusFile)
	if err != nil {
		t.Fatalf("reading status file: %v", err)
	}

	p2 := &Project{StatusFile: p.StatusFile}
	if err := p2.LoadStatus(); err != nil {
		t.Fatalf("LoadStatus: %v", err)
	}
	if err := p2.saveForce(); err != nil {
		t.Fatalf("saveForce: %v", err)
	}
	reserialized, err := os.ReadFile(p.StatusFile)
	if err != nil {
		t.Fatalf("re-reading status file: %v", err)
	}
	if string(original) != string(reserialized) {
		t.Fatalf("status file does not round-trip:\n--- original ---\n%s\n--- reserialized ---\n%s", original, reserialized)
	}
}

func TestProcessFailsAndPersistsFailure(t *testing.T) {
	an, runsDir := setupAnalysis(t)
	experimentsRoot := filepath.Join(runsDir, "experiments")
	writeMetadata(t, experimentsRoot, "Sample1,ProjA,Alice <alice@example.com>,fail\n")
	roots := testRoots(t, experimentsRoot)
	reg := tasks.NewRegistry()

	projects, err := ProjectsFromAnalysis(an, roots, reg, &fakeUploader{}, &fakeMailer{}, false, nil)
	if err != nil {
		t.Fatalf("ProjectsFromAnalysis: %v", err)
	}
	p := projects[0]

	cfg := map[string]map[string]any{}
	if err := p.Process(context.Background(), reg, cfg, nil); err == nil {
		t.Fatalf("expected Process to return the task error")
	}
	if p.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %v", p.Status)
	}
	if p.FailureException == "" {
		t.Fatalf("expected a recorded failure_exception")
	}
	if p.Current != "fail" {
		t.Fatalf("expected Current to remain %q, got %q", "fail", p.Current)
	}
	if len(p.Completed) != 0 {
		t.Fatalf("expected no completed tasks, got %v", p.Completed)
	}

	p2 := &Project{StatusFile: p.StatusFile}
	if err := p2.LoadStatus(); err != nil {
		t.Fatalf("LoadStatus: %v", err)
	}
	if p2.Status != StatusFailed {
		t.Fatalf("reloaded status should be FAILED, got %v", p2.Status)
	}
}

func TestProcessRefusesReadOnlyProject(t *testing.T) {
	p := &Project{Name: "x", ReadOnly: true}
	if err := p.Process(context.Background(), tasks.NewRegistry(), nil, nil); err == nil {
		t.Fatalf("expected error processing a read-only project")
	}
}
