package tasks

import "sort"

// Resolve computes the effective, ordered task list for a Project given
// its user-declared task list `requested`:
//
//  1. An empty requested list is replaced by TaskNull.
//  2. The result is unioned with TaskDefaults.
//  3. The transitive dependency closure is computed; an unknown name at
//     any point is *UnknownTask.
//  4. The result is deduplicated and sorted ascending by Order, ties
//     broken by name.
func Resolve(reg *Registry, requested []string) ([]string, error) {
	if len(requested) == 0 {
		requested = TaskNull
	}

	seed := make([]string, 0, len(requested)+len(TaskDefaults))
	seed = append(seed, requested...)
	seed = append(seed, TaskDefaults...)

	closure := map[string]bool{}
	var add func(name string) error
	add = func(name string) error {
		if closure[name] {
			return nil
		}
		d, ok := reg.Get(name)
		if !ok {
			return &UnknownTask{Name: name}
		}
		closure[name] = true
		for _, dep := range d.Deps {
			if err := add(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range seed {
		if err := add(name); err != nil {
			return nil, err
		}
	}

	resolved := make([]string, 0, len(closure))
	for name := range closure {
		resolved = append(resolved, name)
	}
	sort.Slice(resolved, func(i, j int) bool {
		di, _ := reg.Get(resolved[i])
		dj, _ := reg.Get(resolved[j])
		if di.Order != dj.Order {
			return di.Order < dj.Order
		}
		return resolved[i] < resolved[j]
	})
	return resolved, nil
}
