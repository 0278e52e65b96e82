package tasks

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// builtinDescriptors is the static table of tasks compiled into the
// daemon. Leaf-task bodies (trim/merge/assemble/geneious) are thin
// stand-ins for the real bioinformatics tools: each produces a small
// structured result and a marker file or directory on disk so the
// executor has something concrete to drive.
var builtinDescriptors = []Descriptor{
	{Name: "copy", Order: 10, Factory: func(cfg map[string]any) Task { return copyTask{} }},
	{Name: "fail", Order: 15, Factory: func(cfg map[string]any) Task { return failTask{} }},
	{Name: "trim", Order: 20, Factory: func(cfg map[string]any) Task { return leafTask{name: "trim"} }},
	{Name: "merge", Order: 30, Deps: []string{"trim"}, Factory: func(cfg map[string]any) Task { return leafTask{name: "merge", needs: "trim"} }},
	{Name: "assemble", Order: 40, Deps: []string{"merge"}, Factory: func(cfg map[string]any) Task { return leafTask{name: "assemble", needs: "merge"} }},
	{Name: "manual", Order: 45, Factory: func(cfg map[string]any) Task { return newManualTask(cfg) }},
	{Name: "geneious", Order: 46, Deps: []string{"assemble"}, Factory: func(cfg map[string]any) Task { return newGeneiousTask(cfg) }},
	{Name: "metadata", Order: 90, Factory: func(cfg map[string]any) Task { return metadataTask{} }},
	{Name: "package", Order: 95, Factory: func(cfg map[string]any) Task { return packageTask{} }},
	{Name: "upload", Order: 97, Deps: []string{"package"}, Factory: func(cfg map[string]any) Task { return uploadTask{} }},
	{Name: "email", Order: 99, Deps: []string{"upload"}, Factory: func(cfg map[string]any) Task { return newEmailTask(cfg) }},
}

// copyTask is the TaskNull default body: it copies every resolved
// sample fastq into the processing directory verbatim.
type copyTask struct{}

func (copyTask) Run(tc *Context) (map[string]any, error) {
	destDir := filepath.Join(tc.OutputDir(), "copy")
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, err
	}
	var copied []string
	for _, sample := range tc.SampleNames {
		for _, src := range tc.SamplePaths[sample] {
			dst := filepath.Join(destDir, filepath.Base(src))
			if err := copyFile(src, dst); err != nil {
				return nil, err
			}
			copied = append(copied, dst)
		}
	}
	tc.Log.Printf("copied %d files to %s", len(copied), destDir)
	return map[string]any{"files": copied}, nil
}

// leafTask is a generic stand-in for the out-of-scope trim/merge/
// assemble task bodies: it records that it ran and which upstream
// output it consumed, writing a marker file under its own subdirectory.
type leafTask struct {
	name  string
	needs string
}

func (t leafTask) Run(tc *Context) (map[string]any, error) {
	destDir := filepath.Join(tc.OutputDir(), t.name)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, err
	}
	marker := filepath.Join(destDir, "done.marker")
	if err := os.WriteFile(marker, []byte(time.Now().UTC().Format(time.RFC3339)), 0644); err != nil {
		return nil, err
	}
	tc.Log.Printf("%s complete", t.name)
	out := map[string]any{"marker": marker}
	if t.needs != "" {
		if prior, ok := tc.PriorOutputs[t.needs]; ok {
			out["upstream"] = prior
		}
	}
	return out, nil
}

// failTask always errors; declaring it in a metadata.csv Tasks column
// exercises the failure path end to end.
type failTask struct{}

func (failTask) Run(tc *Context) (map[string]any, error) {
	return nil, fmt.Errorf("fail task: deliberate failure")
}

// manualTask blocks until a sentinel path appears under the processing
// directory, or times out: a human gate in an otherwise automatic
// pipeline.
type manualTask struct {
	pollInterval time.Duration
	timeout      time.Duration
}

func newManualTask(cfg map[string]any) Task {
	t := manualTask{pollInterval: 5 * time.Second, timeout: time.Hour}
	if v, ok := cfg["poll_interval_seconds"].(int); ok && v > 0 {
		t.pollInterval = time.Duration(v) * time.Second
	}
	if v, ok := cfg["timeout_seconds"].(int); ok && v > 0 {
		t.timeout = time.Duration(v) * time.Second
	}
	return t
}

func (t manualTask) Run(tc *Context) (map[string]any, error) {
	sentinel := filepath.Join(tc.WorkDir, "manual", "ready")
	deadline := time.Now().Add(t.timeout)
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		if _, err := os.Stat(sentinel); err == nil {
			tc.Log.Printf("manual sentinel present: %s", sentinel)
			return map[string]any{"sentinel": sentinel}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("manual task: sentinel %s did not appear within %s", sentinel, t.timeout)
		}
		select {
		case <-tc.Done():
			return nil, tc.Err()
		case <-ticker.C:
		}
	}
}

// geneiousTask is a structural stand-in like the other leaf bodies. It
// carries a configurable timeout (tasks.geneious.timeout_seconds,
// default 30 minutes) that it only reports in its log; the body returns
// at once and enforces no deadline.
type geneiousTask struct {
	timeout time.Duration
}

func newGeneiousTask(cfg map[string]any) Task {
	t := geneiousTask{timeout: 30 * time.Minute}
	if v, ok := cfg["timeout_seconds"].(int); ok && v > 0 {
		t.timeout = time.Duration(v) * time.Second
	}
	return t
}

func (t geneiousTask) Run(tc *Context) (map[string]any, error) {
	destDir := filepath.Join(tc.OutputDir(), "geneious")
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, err
	}
	tc.Log.Printf("geneious complete (timeout budget %s)", t.timeout)
	return map[string]any{"dir": destDir}, nil
}

// metadataTask copies the experiment metadata into the package so the
// archive is self-describing.
type metadataTask struct{}

func (metadataTask) Run(tc *Context) (map[string]any, error) {
	destDir := filepath.Join(tc.OutputDir(), "metadata")
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "experiment: %s\n", tc.ExperimentName)
	names := make([]string, 0, len(tc.Contacts))
	for n := range tc.Contacts {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "contact: %s <%s>\n", n, tc.Contacts[n])
	}
	path := filepath.Join(destDir, "metadata.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return nil, err
	}
	tc.Log.Printf("wrote %s", path)
	return map[string]any{"path": path}, nil
}

// packageTask zips the processing directory into the configured
// package file.
type packageTask struct{}

func (packageTask) Run(tc *Context) (map[string]any, error) {
	if err := os.MkdirAll(filepath.Dir(tc.PackageFile), 0755); err != nil {
		return nil, err
	}
	out, err := os.Create(tc.PackageFile)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	err = filepath.Walk(tc.WorkDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(tc.WorkDir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(rel)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	tc.Log.Printf("packaged %s", tc.PackageFile)
	return map[string]any{"package": tc.PackageFile}, nil
}

// uploadTask hands the package file to the Uploader collaborator.
type uploadTask struct{}

func (uploadTask) Run(tc *Context) (map[string]any, error) {
	url, err := tc.Uploader.Upload(tc, tc.PackageFile)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	tc.Log.Printf("uploaded to %s", url)
	return map[string]any{"url": url}, nil
}

// emailTask notifies the experiment's contacts that the package is
// ready, including its upload URL.
type emailTask struct {
	mandatory bool
}

func newEmailTask(cfg map[string]any) Task {
	t := emailTask{}
	if v, ok := cfg["mandatory"].(bool); ok {
		t.mandatory = v
	}
	return t
}

func (t emailTask) Run(tc *Context) (map[string]any, error) {
	var to []string
	for _, addr := range tc.Contacts {
		to = append(to, addr)
	}
	sort.Strings(to)

	url := ""
	if up, ok := tc.PriorOutputs["upload"]; ok {
		if u, ok := up["url"].(string); ok {
			url = u
		}
	}
	subject := fmt.Sprintf("%s ready", tc.ExperimentName)
	body := fmt.Sprintf("Your data package is ready: %s", url)

	err := tc.Mailer.Send(tc, to, subject, body, false)
	if err != nil {
		tc.Log.Printf("email failed: %v", err)
		if t.mandatory {
			return nil, fmt.Errorf("email failed: %w", err)
		}
		return map[string]any{"sent": false}, nil
	}
	tc.Log.Printf("emailed %v", to)
	return map[string]any{"sent": true}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
