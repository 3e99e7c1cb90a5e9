package artifacts

import (
	"fmt"
	"os"
)

// ActionKind is the type of filesystem change an Action performs.
type ActionKind string

const (
	// ActionMkdir creates Path including intermediate directories
	ActionMkdir ActionKind = "mkdir"
	// ActionRemove deletes Path recursively
	ActionRemove ActionKind = "remove"
	// ActionMove renames Path to Target
	ActionMove ActionKind = "move"
)

// Action is a single step of a layout plan.
type Action struct {
	Kind   ActionKind
	Path   string
	Target string
}

func (a Action) String() string {
	if a.Kind == ActionMove {
		return fmt.Sprintf("%s %s -> %s", a.Kind, a.Path, a.Target)
	}
	return fmt.Sprintf("%s %s", a.Kind, a.Path)
}

// FolderState describes which copies of a managed folder exist.
type FolderState struct {
	Legacy  bool
	Managed bool
}

// Reconcile returns the actions that bring one managed folder into place.
// A legacy folder always wins: an existing managed folder is removed, not
// merged, before the legacy one is moved in.
func Reconcile(root, name string, st FolderState) []Action {
	layout := Layout{Root: root}
	managed := layout.Dir(name)

	if st.Legacy {
		var actions []Action
		if st.Managed {
			actions = append(actions, Action{Kind: ActionRemove, Path: managed})
		}
		return append(actions, Action{Kind: ActionMove, Path: layout.Legacy(name), Target: managed})
	}

	if !st.Managed {
		return []Action{{Kind: ActionMkdir, Path: managed}}
	}

	return nil
}

// Plan returns the full set of actions for root and names. The root is
// created first; folders follow in the order given.
func Plan(root string, rootExists bool, states map[string]FolderState, names []string) []Action {
	var actions []Action
	if !rootExists {
		actions = append(actions, Action{Kind: ActionMkdir, Path: root})
	}
	for _, name := range names {
		actions = append(actions, Reconcile(root, name, states[name])...)
	}
	return actions
}

// Apply executes actions in order and stops at the first failure.
func Apply(actions []Action) error {
	for _, action := range actions {
		var err error
		switch action.Kind {
		case ActionMkdir:
			err = os.MkdirAll(action.Path, 0755)
		case ActionRemove:
			err = os.RemoveAll(action.Path)
		case ActionMove:
			err = os.Rename(action.Path, action.Target)
		default:
			err = fmt.Errorf("unknown action kind %q", action.Kind)
		}
		if err != nil {
			return fmt.Errorf("failed to %s: %w", action, err)
		}
	}
	return nil
}
