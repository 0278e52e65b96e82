package tasks

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// manifest is the on-disk shape of a user-supplied task descriptor.
// Command is run as a subprocess with the Project's processing
// directory as its working directory; its stdout is parsed as a JSON
// outputs object.
type manifest struct {
	Name    string   `json:"name"`
	Order   int      `json:"order"`
	Deps    []string `json:"deps"`
	Command []string `json:"command"`
}

// LoadPluginManifests reads every *.json file in dir and registers the
// corresponding task descriptor. Used for the `tasks_path`
// configuration key.
func LoadPluginManifests(reg *Registry, dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("plugin manifest %s: %w", e.Name(), err)
		}
		var m manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("plugin manifest %s: %w", e.Name(), err)
		}
		if m.Name == "" {
			return fmt.Errorf("plugin manifest %s: missing name", e.Name())
		}
		reg.Add(Descriptor{
			Name:  m.Name,
			Order: m.Order,
			Deps:  m.Deps,
			Factory: func(cfg map[string]any) Task {
				return subprocessTask{command: m.Command}
			},
		})
	}
	return nil
}

// subprocessTask runs an externally configured command as a task body.
type subprocessTask struct {
	command []string
}

func (t subprocessTask) Run(tc *Context) (map[string]any, error) {
	if len(t.command) == 0 {
		return nil, fmt.Errorf("plugin task %s: empty command", tc.TaskName)
	}
	cmd := exec.CommandContext(tc, t.command[0], t.command[1:]...)
	cmd.Dir = tc.WorkDir
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("plugin task %s: %w", tc.TaskName, err)
	}
	outputs := map[string]any{}
	if len(strings.TrimSpace(string(out))) > 0 {
		if err := json.Unmarshal(out, &outputs); err != nil {
			outputs["stdout"] = string(out)
		}
	}
	return outputs, nil
}
