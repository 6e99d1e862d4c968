package compiler

import (
	"fmt"

	"github.com/roach88/dataflow/internal/ir"
)

// Level assigns each builder to an execution level.
//
// A builder whose consumed keys have no producer in the flow sits on
// level 0. Otherwise it sits one level above its highest producer, so
// a sweep over the levels in order sees producers before consumers.
// Builders keep their declaration order within a level.
func Level(metas []ir.DataBuilderMeta) ([][]ir.DataBuilderMeta, error) {
	producer := make(map[string]string, len(metas))
	byName := make(map[string]ir.DataBuilderMeta, len(metas))
	for _, m := range metas {
		producer[m.Produces] = m.Name
		byName[m.Name] = m
	}

	levelOf := make(map[string]int, len(metas))
	visiting := make(map[string]bool)

	var assign func(name string) (int, error)
	assign = func(name string) (int, error) {
		if lvl, ok := levelOf[name]; ok {
			return lvl, nil
		}
		if visiting[name] {
			return 0, fmt.Errorf("builder %q is part of a dependency cycle", name)
		}
		visiting[name] = true
		defer delete(visiting, name)

		lvl := 0
		for _, key := range byName[name].Consumes {
			p, ok := producer[key]
			if !ok {
				continue
			}
			pl, err := assign(p)
			if err != nil {
				return 0, err
			}
			lvl = max(lvl, pl+1)
		}
		levelOf[name] = lvl
		return lvl, nil
	}

	depth := 0
	for _, m := range metas {
		lvl, err := assign(m.Name)
		if err != nil {
			return nil, err
		}
		depth = max(depth, lvl+1)
	}

	levels := make([][]ir.DataBuilderMeta, depth)
	for _, m := range metas {
		lvl := levelOf[m.Name]
		levels[lvl] = append(levels[lvl], m)
	}
	return levels, nil
}
