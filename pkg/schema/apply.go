package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSelectorUnresolved means no section matched the selector.
	ErrSelectorUnresolved = errors.New("selector resolved no section")
	// ErrSelectorAmbiguous means the selector matched more than one section
	// and carried no instance id to break the tie.
	ErrSelectorAmbiguous = errors.New("selector is ambiguous")
)

// Resolve returns the index of the section the selector identifies within
// the given sibling list. Matching is by component kind, narrowed by
// instance id when one is set.
func (sel ComponentSelector) Resolve(sections []Section) (int, error) {
	found := -1
	for i := range sections {
		if sections[i].Kind != sel.Kind {
			continue
		}
		if sel.InstanceID != "" && sections[i].ID != sel.InstanceID {
			continue
		}
		if found >= 0 {
			return -1, fmt.Errorf("%w: kind %q", ErrSelectorAmbiguous, sel.Kind)
		}
		found = i
	}
	if found < 0 {
		return -1, fmt.Errorf("%w: kind %q instance %q", ErrSelectorUnresolved, sel.Kind, sel.InstanceID)
	}
	return found, nil
}

// ApplyActions applies an ordered list of atomic actions to a copy of the
// page and returns the result. The input page is never mutated. Each
// action's selector must be resolvable against the state produced by the
// actions before it; the first failure aborts with an error.
func ApplyActions(page *PageDefinition, actions []AtomicAction) (*PageDefinition, error) {
	out := page.Clone()
	for i, a := range actions {
		var err error
		switch a.Kind {
		case ActionAdd:
			out.Sections, err = applyAdd(out.Sections, a)
		case ActionMutate:
			out.Sections, err = applyMutate(out.Sections, a)
		case ActionRemove:
			out.Sections, err = applyRemove(out.Sections, a)
		default:
			err = fmt.Errorf("unknown atomic action kind %q", a.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("atomic action %d (%s): %w", i, a.Kind, err)
		}
	}
	return out, nil
}

func applyAdd(sections []Section, a AtomicAction) ([]Section, error) {
	if a.Component == nil {
		return nil, errors.New("add without componentSpec")
	}
	if a.Position == nil {
		return nil, errors.New("add without position")
	}
	// Deep-copy the spec so later mutations on the inserted section never
	// write through into the action value.
	spec := *a.Component
	spec.Props = cloneMap(a.Component.Props)
	spec.Children = cloneSections(a.Component.Children)
	switch a.Position.Mode {
	case PositionTop:
		return append([]Section{spec}, sections...), nil
	case PositionBottom:
		return append(sections, spec), nil
	case PositionBefore, PositionAfter:
		idx, err := resolveAnchor(sections, a)
		if err != nil {
			return nil, err
		}
		if a.Position.Mode == PositionAfter {
			idx++
		}
		out := make([]Section, 0, len(sections)+1)
		out = append(out, sections[:idx]...)
		out = append(out, spec)
		out = append(out, sections[idx:]...)
		return out, nil
	default:
		return nil, fmt.Errorf("unknown position mode %q", a.Position.Mode)
	}
}

// resolveAnchor finds the sibling an add is placed relative to: by explicit
// anchor id when present, otherwise by the action's target selector.
func resolveAnchor(sections []Section, a AtomicAction) (int, error) {
	if a.Position.AnchorID != "" {
		for i := range sections {
			if sections[i].ID == a.Position.AnchorID {
				return i, nil
			}
		}
		return -1, fmt.Errorf("%w: anchor %q", ErrSelectorUnresolved, a.Position.AnchorID)
	}
	return a.Target.Resolve(sections)
}

func applyMutate(sections []Section, a AtomicAction) ([]Section, error) {
	idx, err := a.Target.Resolve(sections)
	if err != nil {
		return nil, err
	}
	props := sections[idx].Props
	if props == nil {
		props = make(map[string]any)
	}
	for _, op := range a.Operations {
		if err := mutateProps(props, op); err != nil {
			return nil, fmt.Errorf("path %q: %w", op.Path, err)
		}
	}
	sections[idx].Props = props
	return sections, nil
}

func applyRemove(sections []Section, a AtomicAction) ([]Section, error) {
	idx, err := a.Target.Resolve(sections)
	if err != nil {
		return nil, err
	}
	return append(sections[:idx], sections[idx+1:]...), nil
}

func mutateProps(props map[string]any, op PropMutation) error {
	if op.Path == "" {
		return errors.New("empty path")
	}
	parts := strings.Split(op.Path, ".")
	parent := props
	for _, p := range parts[:len(parts)-1] {
		next, ok := parent[p]
		if !ok {
			if op.Operation == OpDelete {
				return nil // nothing to delete
			}
			child := make(map[string]any)
			parent[p] = child
			parent = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("segment %q is not an object", p)
		}
		parent = child
	}
	leaf := parts[len(parts)-1]
	switch op.Operation {
	case OpSet:
		parent[leaf] = op.Value
	case OpMerge:
		patch, ok := op.Value.(map[string]any)
		if !ok {
			return errors.New("merge value is not an object")
		}
		existing, ok := parent[leaf].(map[string]any)
		if !ok {
			if _, present := parent[leaf]; present {
				return fmt.Errorf("existing value at %q is not an object", leaf)
			}
			existing = make(map[string]any)
		}
		for k, v := range patch {
			existing[k] = v
		}
		parent[leaf] = existing
	case OpDelete:
		delete(parent, leaf)
	default:
		return fmt.Errorf("unknown operation %q", op.Operation)
	}
	return nil
}
