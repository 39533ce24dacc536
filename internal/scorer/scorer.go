// Package scorer computes keyword match scores between talents and jobs.
package scorer

import (
	"regexp"
	"strings"
	"sync"

	"github.com/amishk599/talentmatch/internal/model"
)

// Talent text fields a keyword can match in.
const (
	FieldPositions  = "positions"
	FieldSkills     = "skills"
	FieldExperience = "experience"
)

// KeywordMatch records how often one job keyword occurred in a talent profile.
type KeywordMatch struct {
	Keyword string   `json:"keyword"`
	Count   int      `json:"count"`
	Fields  []string `json:"fields,omitempty"` // fields with at least one occurrence
}

// Result is the outcome of scoring one talent against one job.
type Result struct {
	Value   int            `json:"value"`
	Matches []KeywordMatch `json:"matches"`
}

// Scorer counts literal, case-insensitive keyword occurrences. Every field
// weighs the same. The zero value is ready to use and safe for concurrent use.
type Scorer struct {
	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// New returns a Scorer.
func New() *Scorer {
	return &Scorer{}
}

// Score returns the total occurrence count of the job's position and skill
// keywords across the talent's positions, skills and experience text.
func (s *Scorer) Score(talent model.Talent, job model.Job) Result {
	fields := []struct {
		name string
		text string
	}{
		{FieldPositions, strings.Join(talent.Positions, ", ")},
		{FieldSkills, talent.Skills},
		{FieldExperience, talent.Experience},
	}

	keywords := Keywords(job)
	res := Result{Matches: make([]KeywordMatch, 0, len(keywords))}
	for _, kw := range keywords {
		re := s.pattern(kw)
		m := KeywordMatch{Keyword: kw}
		for _, f := range fields {
			if f.text == "" {
				continue
			}
			n := len(re.FindAllStringIndex(f.text, -1))
			if n > 0 {
				m.Count += n
				m.Fields = append(m.Fields, f.name)
			}
		}
		res.Value += m.Count
		res.Matches = append(res.Matches, m)
	}
	return res
}

// Keywords returns the union of the job's positions and skills in first-seen
// order, with blanks and exact duplicates removed.
func Keywords(job model.Job) []string {
	seen := make(map[string]bool, len(job.Positions)+len(job.Skills))
	out := make([]string, 0, len(job.Positions)+len(job.Skills))
	for _, list := range [][]string{job.Positions, job.Skills} {
		for _, kw := range list {
			kw = strings.TrimSpace(kw)
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			out = append(out, kw)
		}
	}
	return out
}

func (s *Scorer) pattern(kw string) *regexp.Regexp {
	s.mu.RLock()
	re, ok := s.patterns[kw]
	s.mu.RUnlock()
	if ok {
		return re
	}

	re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(kw))

	s.mu.Lock()
	if s.patterns == nil {
		s.patterns = make(map[string]*regexp.Regexp)
	}
	s.patterns[kw] = re
	s.mu.Unlock()
	return re
}
