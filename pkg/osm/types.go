package osm

import (
	"encoding/xml"
	"time"
)

// TimeFormat is the timestamp layout the OSM API expects in the time filter.
const TimeFormat = "2006-01-02T15:04:05Z"

// ChangesetList is the document returned by /changesets.
type ChangesetList struct {
	XMLName    xml.Name    `xml:"osm"`
	Changesets []Changeset `xml:"changeset"`
}

// Changeset is one changeset as listed by the API.
type Changeset struct {
	ID           string     `xml:"id,attr"`
	User         string     `xml:"user,attr"`
	CreatedAt    time.Time  `xml:"created_at,attr"`
	ClosedAt     *time.Time `xml:"closed_at,attr"`
	ChangesCount int        `xml:"changes_count,attr"`
	Tags         []Tag      `xml:"tag"`
}

// Tag is a key/value pair attached to a changeset.
type Tag struct {
	Key   string `xml:"k,attr"`
	Value string `xml:"v,attr"`
}

// Tag returns the value of key, or "" if the changeset has no such tag.
func (c Changeset) Tag(key string) string {
	for _, t := range c.Tags {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

// Editor returns the created_by tag.
func (c Changeset) Editor() string {
	return c.Tag("created_by")
}

// Closed reports whether the changeset has been closed. Open changesets can
// still receive edits.
func (c Changeset) Closed() bool {
	return c.ClosedAt != nil
}

// Diff is the osmChange document returned by /changeset/{id}/download.
type Diff struct {
	XMLName xml.Name     `xml:"osmChange"`
	Actions []DiffAction `xml:",any"`
}

// DiffAction is one create, modify or delete group.
type DiffAction struct {
	XMLName  xml.Name
	Elements []DiffElement `xml:",any"`
}

// Name returns the action name (create, modify, delete).
func (a DiffAction) Name() string {
	return a.XMLName.Local
}

// DiffElement is a node, way or relation inside an action group. Only its
// identity is decoded.
type DiffElement struct {
	XMLName xml.Name
	ID      string `xml:"id,attr"`
}

// ElementCount returns the number of element entries across all actions.
func (d *Diff) ElementCount() int {
	n := 0
	for _, a := range d.Actions {
		n += len(a.Elements)
	}
	return n
}
