package subject

import "strings"

// Kind distinguishes lab sessions from theory lectures.
type Kind string

const (
	Lab    Kind = "lab"
	Theory Kind = "theory"
)

// Subject is one course offering a lecture code can be issued for.
type Subject struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	IsLab     bool   `json:"is_lab"`
	Prefix    string `json:"prefix"`
	Suffix    string `json:"suffix"`
}

var catalog = []Subject{
	{ID: "dhtml_lab", Name: "DHTML (Lab)", ShortName: "DHTML", IsLab: true, Prefix: "DH", Suffix: "LB"},
	{ID: "ds_lab", Name: "DS (Lab)", ShortName: "DS", IsLab: true, Prefix: "DS", Suffix: "LB"},
	{ID: "mysql_lab", Name: "MySQL (Lab)", ShortName: "MySQL", IsLab: true, Prefix: "MY", Suffix: "LB"},
	{ID: "wp_lab", Name: "WordPress (Lab)", ShortName: "WP", IsLab: true, Prefix: "WP", Suffix: "LB"},
	{ID: "dhtml", Name: "DHTML", ShortName: "DHTML", IsLab: false, Prefix: "DH", Suffix: "TH"},
	{ID: "ds", Name: "DS", ShortName: "DS", IsLab: false, Prefix: "DS", Suffix: "TH"},
	{ID: "mysql", Name: "MySQL", ShortName: "MySQL", IsLab: false, Prefix: "MY", Suffix: "TH"},
	{ID: "wordpress", Name: "WordPress", ShortName: "WP", IsLab: false, Prefix: "WP", Suffix: "TH"},
}

// All returns a copy of the catalog in display order.
func All() []Subject {
	out := make([]Subject, len(catalog))
	copy(out, catalog)
	return out
}

// ByID looks a subject up by its id.
func ByID(id string) (Subject, bool) {
	for _, s := range catalog {
		if s.ID == id {
			return s, true
		}
	}
	return Subject{}, false
}

// ByName looks a subject up by its display name, which is also the name the
// spreadsheet backend files records under.
func ByName(name string) (Subject, bool) {
	for _, s := range catalog {
		if s.Name == name {
			return s, true
		}
	}
	return Subject{}, false
}

func (s Subject) Kind() Kind {
	if s.IsLab {
		return Lab
	}
	return Theory
}

// KindLabel is the badge text shown on cards and sheets.
func (s Subject) KindLabel() string {
	if s.IsLab {
		return "Lab"
	}
	return "Theory"
}

// CardName drops the " (Lab)" marker, the card badge carries it instead.
func (s Subject) CardName() string {
	return strings.Replace(s.Name, " (Lab)", "", 1)
}
