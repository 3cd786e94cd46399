// Package course models the things a student can elect: course identity,
// the ordered list of goals, and the mutual-exclusion / delay rules that
// govern when a goal may be attempted.
package course

import "fmt"

// Identity is the natural key the elective site uses to tell courses
// apart. Two Course values with the same Identity refer to the same
// course offering even if quota fields differ between reads.
type Identity struct {
	Name    string
	ClassNo string
	School  string
}

func (id Identity) String() string {
	return fmt.Sprintf("%s(%s)@%s", id.Name, id.ClassNo, id.School)
}

// Reason explains why a goal is not (or is no longer) being attempted.
type Reason string

const (
	ReasonElected            Reason = "elected"
	ReasonMutexRules         Reason = "mutex_rules"
	ReasonRepeated           Reason = "repeated"
	ReasonTimeConflict       Reason = "time_conflict"
	ReasonExamTimeConflict   Reason = "exam_time_conflict"
	ReasonPermissionRequired Reason = "permission_required"
	ReasonCreditsLimited     Reason = "credits_limited"
	ReasonMutualExclusive    Reason = "mutual_exclusive"
	ReasonMultiEnglish       Reason = "multi_english"
	ReasonMultiPE            Reason = "multi_pe"
)

// Course is a row parsed out of the listing/draw page. MaxQuota and
// UsedQuota are refreshed on every poll; Identity never changes.
type Course struct {
	Identity
	MaxQuota  int
	UsedQuota int
	Href      string
}

// RemainingQuota never goes negative even if the site reports a
// used-quota greater than max (observed during flash-crowds).
func (c Course) RemainingQuota() int {
	r := c.MaxQuota - c.UsedQuota
	if r < 0 {
		return 0
	}
	return r
}

// Available reports whether a seat is currently open.
func (c Course) Available() bool {
	return c.RemainingQuota() > 0
}

// GoalSet is the ordered list of courses the agent is trying to elect,
// together with the subset it has given up on and why.
type GoalSet struct {
	Goals   []Identity
	Ignored map[Identity]Reason
}

// NewGoalSet builds a set holding a copy of goals, with nothing
// ignored yet.
func NewGoalSet(goals []Identity) *GoalSet {
	return &GoalSet{
		Goals:   append([]Identity(nil), goals...),
		Ignored: make(map[Identity]Reason),
	}
}

// Ignore marks id as no longer pursued. Idempotent: re-ignoring with a
// different reason overwrites the recorded reason but never resurrects
// the goal.
func (g *GoalSet) Ignore(id Identity, reason Reason) {
	if g.Ignored == nil {
		g.Ignored = make(map[Identity]Reason)
	}
	g.Ignored[id] = reason
}

// IsIgnored reports whether id has been given up on, and why.
func (g *GoalSet) IsIgnored(id Identity) (Reason, bool) {
	r, ok := g.Ignored[id]
	return r, ok
}

// Pending returns the goals that are neither ignored nor already
// elected, preserving original order.
func (g *GoalSet) Pending() []Identity {
	out := make([]Identity, 0, len(g.Goals))
	for _, id := range g.Goals {
		if _, ignored := g.Ignored[id]; ignored {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Done reports whether every goal has either been elected or ignored.
func (g *GoalSet) Done() bool {
	return len(g.Pending()) == 0
}

// Rules captures the mutual-exclusion groups and per-course submit
// delays an operator configures alongside the goal set.
type Rules struct {
	// Mutex lists groups of identities where electing one should cause
	// the others in the same group to be ignored with ReasonMutexRules.
	Mutex [][]Identity
	// Delay maps an identity to a minimum remaining-quota threshold:
	// the election is skipped until the course's remaining quota drops
	// to or below this value, so a goal can wait for the crowd to thin
	// out instead of racing every seat from the moment it opens.
	Delay map[Identity]int
}

// MutexGroup returns the other members of id's mutex group, if any.
func (r Rules) MutexGroup(id Identity) []Identity {
	for _, group := range r.Mutex {
		for _, member := range group {
			if member == id {
				out := make([]Identity, 0, len(group)-1)
				for _, m := range group {
					if m != id {
						out = append(out, m)
					}
				}
				return out
			}
		}
	}
	return nil
}

// DelayFor returns the configured remaining-quota threshold for id, or 0.
// A rule keyed without a school matches id whatever its school.
func (r Rules) DelayFor(id Identity) int {
	if r.Delay == nil {
		return 0
	}
	if v, ok := r.Delay[id]; ok {
		return v
	}
	return r.Delay[Identity{Name: id.Name, ClassNo: id.ClassNo}]
}
