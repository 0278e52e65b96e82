package tasks

import "sort"

// Registry is the pluggable set of task descriptors known to the
// daemon: the built-in table plus anything loaded from tasks_path.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry builds a Registry from the built-in table. Additional
// descriptors (from a plugin manifest directory) can be added with Add.
func NewRegistry() *Registry {
	r := &Registry{descriptors: map[string]Descriptor{}}
	for _, d := range builtinDescriptors {
		r.descriptors[d.Name] = d
	}
	return r
}

// Add registers (or overrides) a descriptor.
func (r *Registry) Add(d Descriptor) {
	r.descriptors[d.Name] = d
}

// Get returns the descriptor for name, if known.
func (r *Registry) Get(name string) (Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// Names returns every registered task name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.descriptors))
	for n := range r.descriptors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate asserts the registry is acyclic and that every declared
// dependency resolves to a known task. Intended to run once at daemon
// startup.
func (r *Registry) Validate() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return &CyclicTaskGraph{Path: append(append([]string{}, path...), name)}
		}
		d, ok := r.descriptors[name]
		if !ok {
			return &UnknownTask{Name: name}
		}
		color[name] = gray
		path = append(path, name)
		for _, dep := range d.Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return nil
	}

	for _, name := range r.Names() {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// TaskNull is the default task set substituted when a Project declares
// no tasks at all.
var TaskNull = []string{"copy"}

// TaskDefaults is the set of terminal tasks always appended.
var TaskDefaults = []string{"metadata", "package", "upload", "email"}
