package blackboard

import (
	"sort"

	"github.com/nmoralez/rudder/internal/flow"
)

// Resolve runs one arbitration round over the collected proposals.
//
// Blocking proposals own the action and transition outright: a secondary
// question must not hijack a higher-priority obligation. Combinable proposals
// still get their data-updates and flags merged in either case. With no
// blocking proposal, the highest-priority combinable proposal supplies the
// action/transition and the rest contribute data and flags.
//
// Proposals must arrive in source registration order; ties within a priority
// tier are broken by that order, which makes resolution deterministic for a
// given snapshot.
func Resolve(spec *flow.Specification, proposals []*Proposal) *ResolvedDecision {
	if len(proposals) == 0 {
		return &ResolvedDecision{
			FinalAction:     spec.DefaultAction,
			FinalTransition: spec.DefaultTransition,
			Flags:           []string{FlagDefaulted},
		}
	}

	ordered := make([]*Proposal, len(proposals))
	copy(ordered, proposals)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	var primary *Proposal
	var blocking, combinable []*Proposal
	for _, p := range ordered {
		if p.Combinable {
			combinable = append(combinable, p)
		} else {
			blocking = append(blocking, p)
		}
	}
	if len(blocking) > 0 {
		primary = blocking[0]
	} else {
		primary = combinable[0]
	}

	d := &ResolvedDecision{
		FinalAction:     primary.Action,
		FinalTransition: primary.Transition,
		DataUpdates:     make(map[string]string),
	}
	if d.FinalAction == "" {
		d.FinalAction = spec.DefaultAction
	}

	// Data and flags merge from the primary plus every combinable proposal.
	// Non-selected blocking proposals are discarded whole.
	merged := make([]*Proposal, 0, len(combinable)+1)
	merged = append(merged, primary)
	for _, p := range combinable {
		if p != primary {
			merged = append(merged, p)
		}
	}
	for _, p := range blocking {
		if p != primary {
			d.DiscardedSources = append(d.DiscardedSources, p.SourceID)
		}
	}

	dataOwner := make(map[string]string) // key -> source that set it
	flagSet := make(map[string]bool)
	for _, p := range merged {
		d.ContributingSources = append(d.ContributingSources, p.SourceID)
		for _, f := range p.Flags {
			flagSet[f] = true
		}
		for _, key := range sortedKeys(p.DataUpdates) {
			value := p.DataUpdates[key]
			existing, taken := d.DataUpdates[key]
			if !taken {
				d.DataUpdates[key] = value
				dataOwner[key] = p.SourceID
				continue
			}
			if existing == value {
				continue
			}
			// First writer holds the key: the primary's data always stands,
			// and combinables among themselves resolve by priority order.
			d.ConflictsDiscarded = append(d.ConflictsDiscarded, Conflict{
				Key:           key,
				WinningSource: dataOwner[key],
				WinningValue:  existing,
				LosingSource:  p.SourceID,
				LosingValue:   value,
			})
		}
	}

	d.Flags = make([]string, 0, len(flagSet))
	for f := range flagSet {
		d.Flags = append(d.Flags, f)
	}
	sort.Strings(d.Flags)

	if len(d.DataUpdates) == 0 {
		d.DataUpdates = nil
	}
	return d
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
