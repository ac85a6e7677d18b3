// Package actions describes the engine routines a compiled script can call
// through the ACTION instruction.
//
// A catalog maps a routine id to its name and signature. The decompiler uses
// it to size call arguments on the operand stack and to name the call.
package actions

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Param is one declared routine parameter.
type Param struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Action is the signature of one engine routine.
type Action struct {
	ID      int     `yaml:"id"`
	Name    string  `yaml:"name"`
	Returns string  `yaml:"returns"`
	Params  []Param `yaml:"params"`
}

// Catalog resolves routine ids to signatures.
type Catalog interface {
	Lookup(id int) (Action, bool)
}

var (
	ErrDuplicateID = errors.New("actions: duplicate routine id")
	ErrUnknownType = errors.New("actions: unknown type name")
	ErrMissingName = errors.New("actions: routine has no name")
)

// ValidTypes lists the type names accepted in a catalog.
var ValidTypes = map[string]bool{
	"void":         true,
	"int":          true,
	"float":        true,
	"string":       true,
	"object":       true,
	"vector":       true,
	"action":       true,
	"struct":       true,
	"effect":       true,
	"event":        true,
	"location":     true,
	"talent":       true,
	"itemproperty": true,
}

// Table is an immutable in-memory Catalog.
type Table struct {
	byID map[int]Action
}

// NewTable builds a Table, rejecting duplicate ids and unknown type names.
func NewTable(list []Action) (*Table, error) {
	t := &Table{byID: make(map[int]Action, len(list))}
	for _, a := range list {
		if a.Name == "" {
			return nil, fmt.Errorf("%w (id %d)", ErrMissingName, a.ID)
		}
		if _, dup := t.byID[a.ID]; dup {
			return nil, fmt.Errorf("%w %d (%s)", ErrDuplicateID, a.ID, a.Name)
		}
		if a.Returns == "" {
			a.Returns = "void"
		}
		if !ValidTypes[a.Returns] {
			return nil, fmt.Errorf("%w %q in return of %s", ErrUnknownType, a.Returns, a.Name)
		}
		for _, p := range a.Params {
			if !ValidTypes[p.Type] || p.Type == "void" {
				return nil, fmt.Errorf("%w %q in parameter %s of %s", ErrUnknownType, p.Type, p.Name, a.Name)
			}
		}
		t.byID[a.ID] = a
	}
	return t, nil
}

// Lookup implements Catalog.
func (t *Table) Lookup(id int) (Action, bool) {
	a, ok := t.byID[id]
	return a, ok
}

// Len returns the number of routines in the table.
func (t *Table) Len() int {
	return len(t.byID)
}

// IDs returns the routine ids in ascending order.
func (t *Table) IDs() []int {
	ids := make([]int, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type catalogFile struct {
	Actions []Action `yaml:"actions"`
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Table, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("actions: parse catalog: %w", err)
	}
	return NewTable(f.Actions)
}

// Load reads a YAML catalog from disk.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("actions: read %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

//go:embed default.yaml
var defaultCatalog []byte

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the built-in catalog of common engine routines.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(defaultCatalog)
		if err != nil {
			panic(err)
		}
		defaultTable = t
	})
	return defaultTable
}
