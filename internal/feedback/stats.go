package feedback

import (
	"sort"
)

// Filter narrows aggregates to one character and/or motion type. Empty
// fields match everything.
type Filter struct {
	Character  string
	MotionType string
}

func (f Filter) match(r Record) bool {
	return (f.Character == "" || r.Character == f.Character) &&
		(f.MotionType == "" || r.MotionType == f.MotionType)
}

// Rate is the acceptance breakdown of one group.
type Rate struct {
	Key      string  `json:"key" yaml:"key"`
	Accepted int     `json:"accepted" yaml:"accepted"`
	Rejected int     `json:"rejected" yaml:"rejected"`
	Rate     float64 `json:"rate" yaml:"rate"`
}

// IssueCount is how often an issue tag appears on rejected frames.
type IssueCount struct {
	Issue string `json:"issue" yaml:"issue"`
	Count int    `json:"count" yaml:"count"`
}

// Summary aggregates feedback over the current disposition of each frame.
// Means and rates with no underlying data are absent rather than zero.
type Summary struct {
	Records        int                     `json:"records" yaml:"records"`
	Runs           int                     `json:"runs" yaml:"runs"`
	Frames         int                     `json:"frames" yaml:"frames"`
	Accepted       int                     `json:"accepted" yaml:"accepted"`
	Rejected       int                     `json:"rejected" yaml:"rejected"`
	Unreviewed     int                     `json:"unreviewed" yaml:"unreviewed"`
	AutoAccepted   int                     `json:"auto_accepted" yaml:"auto_accepted"`
	AcceptanceRate *float64                `json:"acceptance_rate,omitempty" yaml:"acceptance_rate,omitempty"`
	MeanConfidence map[Disposition]float64 `json:"mean_confidence" yaml:"mean_confidence"`
	ByMotionType   []Rate                  `json:"by_motion_type" yaml:"by_motion_type"`
	ByCharacter    []Rate                  `json:"by_character" yaml:"by_character"`
	CommonIssues   []IssueCount            `json:"common_issues" yaml:"common_issues"`
	Calibration    Calibration             `json:"calibration" yaml:"calibration"`
}

// Compute aggregates records, given in append order. It is a pure function
// and returns zeroed aggregates for an empty input.
func Compute(records []Record, filter Filter) Summary {
	s := Summary{
		MeanConfidence: map[Disposition]float64{},
		ByMotionType:   []Rate{},
		ByCharacter:    []Rate{},
		CommonIssues:   []IssueCount{},
	}

	runs := map[string]struct{}{}
	var matched []Record
	for _, r := range records {
		if !filter.match(r) {
			continue
		}
		s.Records++
		runs[r.RunID] = struct{}{}
		matched = append(matched, r)
	}
	s.Runs = len(runs)

	current := latest(matched)
	s.Frames = len(current)

	sums := map[Disposition]float64{}
	counts := map[Disposition]int{}
	byMotion := map[string]*Rate{}
	byCharacter := map[string]*Rate{}
	issues := map[string]int{}

	for _, r := range current {
		switch r.Disposition {
		case Accepted:
			s.Accepted++
			if r.AutoAccepted {
				s.AutoAccepted++
			}
		case Rejected:
			s.Rejected++
			for _, issue := range r.Issues {
				issues[issue]++
			}
		case Unreviewed:
			s.Unreviewed++
		}

		if r.Confidence != nil {
			sums[r.Disposition] += *r.Confidence
			counts[r.Disposition]++
		}
		if r.Disposition != Unreviewed {
			tally(byMotion, r.MotionType, r.Disposition)
			tally(byCharacter, r.Character, r.Disposition)
		}
	}

	if reviewed := s.Accepted + s.Rejected; reviewed > 0 {
		rate := float64(s.Accepted) / float64(reviewed)
		s.AcceptanceRate = &rate
	}
	for d, n := range counts {
		s.MeanConfidence[d] = sums[d] / float64(n)
	}

	s.ByMotionType = rates(byMotion)
	s.ByCharacter = rates(byCharacter)
	for issue, n := range issues {
		s.CommonIssues = append(s.CommonIssues, IssueCount{Issue: issue, Count: n})
	}
	sort.Slice(s.CommonIssues, func(i, j int) bool {
		if s.CommonIssues[i].Count != s.CommonIssues[j].Count {
			return s.CommonIssues[i].Count > s.CommonIssues[j].Count
		}
		return s.CommonIssues[i].Issue < s.CommonIssues[j].Issue
	})

	s.Calibration = calibrate(current)
	return s
}

// latest keeps the most recent record per (run, ordinal), in order of
// first appearance.
func latest(records []Record) []Record {
	index := map[key]int{}
	var out []Record
	for _, r := range records {
		if i, ok := index[r.key()]; ok {
			out[i] = r
			continue
		}
		index[r.key()] = len(out)
		out = append(out, r)
	}
	return out
}

func tally(groups map[string]*Rate, k string, d Disposition) {
	if k == "" {
		k = "unknown"
	}
	g, ok := groups[k]
	if !ok {
		g = &Rate{Key: k}
		groups[k] = g
	}
	if d == Accepted {
		g.Accepted++
	} else {
		g.Rejected++
	}
}

func rates(groups map[string]*Rate) []Rate {
	out := make([]Rate, 0, len(groups))
	for _, g := range groups {
		g.Rate = float64(g.Accepted) / float64(g.Accepted+g.Rejected)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
