package tasks

import "fmt"

// UnknownTask is returned when the resolver is asked to resolve a name not
// present in the registry, or a descriptor declares a dependency that
// does not exist. Fatal at startup / project construction.
type UnknownTask struct {
	Name string
}

func (e *UnknownTask) Error() string { return fmt.Sprintf("unknown task: %q", e.Name) }

// CyclicTaskGraph indicates the registry's dependency graph is not a
// DAG. The registry is asserted acyclic at daemon startup; this
// is only ever returned by Registry.Validate, never by Resolve itself.
type CyclicTaskGraph struct {
	Path []string
}

func (e *CyclicTaskGraph) Error() string {
	return fmt.Sprintf("cyclic task dependency: %v", e.Path)
}
