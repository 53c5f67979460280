package directory

import (
	"iter"
)

// Selection is the outcome of Select.
type Selection struct {
	// Server is the chosen server, or nil if none was chosen.
	Server *ServerRecord
	// Listed is true when no criteria were given. In that case Candidates
	// holds every usable record and no server is chosen.
	Listed     bool
	Candidates []ServerRecord
}

// Select picks a server from records.
//
// With empty criteria, every usable record is collected into Candidates and
// no server is chosen. Otherwise, the first usable record matching all the
// criteria is chosen and no further record is read from the sequence. The ID
// criterion is applied like the others.
func Select(records iter.Seq[ServerRecord], c Criteria) Selection {
	if c.Empty() {
		sel := Selection{Listed: true}
		for r := range records {
			if r.Usable() {
				sel.Candidates = append(sel.Candidates, r)
			}
		}
		return sel
	}
	for r := range records {
		if r.Usable() && c.Match(r) {
			return Selection{Server: &r}
		}
	}
	return Selection{}
}
