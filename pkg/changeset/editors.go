package changeset

import "sort"

// Changes counts what one editor produced.
type Changes struct {
	// Changesets is the number of changesets created with the editor.
	Changesets int `json:"changesets"`

	// Changes is the number of element edits across those changesets' diffs.
	Changes int `json:"changes"`
}

// Editors maps an editor name (created_by, "" when absent) to its counters.
type Editors map[string]*Changes

// Get returns the counters for editor, inserting zeroed counters if needed.
func (e Editors) Get(editor string) *Changes {
	c, ok := e[editor]
	if !ok {
		c = &Changes{}
		e[editor] = c
	}
	return c
}

// Names returns the editor names in lexical order.
func (e Editors) Names() []string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Total sums the counters over all editors.
func (e Editors) Total() Changes {
	var total Changes
	for _, c := range e {
		total.Changesets += c.Changesets
		total.Changes += c.Changes
	}
	return total
}
