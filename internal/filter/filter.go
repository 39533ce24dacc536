package filter

import (
	"strings"

	"github.com/amishk599/talentmatch/internal/model"
)

// Field values the record store uses for job and talent state.
const (
	ListingPublished = "published"
	RecruitmentOpen  = "open"
	TalentWithdrawn  = "withdrawn"
)

// ActivityFilter decides which jobs and talents take part in a run.
// Comparisons are case-insensitive and ignore surrounding whitespace.
type ActivityFilter struct {
	listing   string
	openState string
	withdrawn string
}

// NewActivityFilter returns a filter using the given field values. Blank
// values fall back to the defaults above.
func NewActivityFilter(listing, openState, withdrawn string) *ActivityFilter {
	f := &ActivityFilter{
		listing:   normalize(listing),
		openState: normalize(openState),
		withdrawn: normalize(withdrawn),
	}
	if f.listing == "" {
		f.listing = ListingPublished
	}
	if f.openState == "" {
		f.openState = RecruitmentOpen
	}
	if f.withdrawn == "" {
		f.withdrawn = TalentWithdrawn
	}
	return f
}

// DefaultActivityFilter uses the standard field values.
func DefaultActivityFilter() *ActivityFilter {
	return NewActivityFilter("", "", "")
}

// ActiveJob returns true if the job is published and open for recruitment.
func (f *ActivityFilter) ActiveJob(job model.Job) bool {
	return normalize(job.Listing) == f.listing && normalize(job.RecruitmentStatus) == f.openState
}

// ActiveTalent returns true unless the talent is marked withdrawn.
func (f *ActivityFilter) ActiveTalent(talent model.Talent) bool {
	return normalize(talent.Status) != f.withdrawn
}

// Listing returns the value a published job carries.
func (f *ActivityFilter) Listing() string { return f.listing }

// OpenState returns the value an open job carries.
func (f *ActivityFilter) OpenState() string { return f.openState }

// Withdrawn returns the value a withdrawn talent carries.
func (f *ActivityFilter) Withdrawn() string { return f.withdrawn }

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
