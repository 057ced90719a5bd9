// Package leaderboard contains the ranked views of a challenge. Rankings are
// derived projections: they are built from participant and team rows and
// carry no state of their own, so two builds over the same rows always
// produce the same order and the same ranks.
package leaderboard

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank is a position in a ranking, starting at 1.
type Rank int

// IsValid checks that the rank is positive.
func (r Rank) IsValid() bool {
	return r > 0
}

// IsPodium returns true for the top three positions.
func (r Rank) IsPodium() bool {
	return r >= 1 && r <= 3
}

// String returns a display representation of the rank.
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilEntry - nil entries cannot be ranked.
	ErrNilEntry = errors.New("leaderboard entry is nil")

	// ErrDuplicateEntry - each subject appears in a ranking at most once.
	ErrDuplicateEntry = errors.New("duplicate leaderboard entry")
)

// ══════════════════════════════════════════════════════════════════════════════
// INDIVIDUAL ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one participant's row in an individual leaderboard.
type Entry struct {
	// Rank - position after sorting, 1-based.
	Rank Rank

	// UserID - the ranked participant's user.
	UserID string

	// TeamID - team membership, empty for individual challenges.
	TeamID string

	// Progress - accumulated progress in challenge units.
	Progress float64

	// PointsEarned - points under the challenge rules.
	PointsEarned int

	// IsCompleted - whether the participant reached the goal.
	IsCompleted bool

	// UpdatedAt - last progress write. Ties on progress break by this:
	// whoever reached the value first ranks higher.
	UpdatedAt time.Time
}

// String returns a compact representation for logging.
func (e *Entry) String() string {
	return fmt.Sprintf("Entry{Rank: %d, User: %s, Progress: %.1f}", e.Rank, e.UserID, e.Progress)
}

// Ranking is a sorted individual leaderboard under construction.
type Ranking struct {
	entries []*Entry
	byUser  map[string]*Entry
}

// NewRanking creates an empty ranking.
func NewRanking() *Ranking {
	return &Ranking{
		entries: make([]*Entry, 0),
		byUser:  make(map[string]*Entry),
	}
}

// Add appends an entry without sorting. Each user may appear once.
func (r *Ranking) Add(entry *Entry) error {
	if entry == nil {
		return ErrNilEntry
	}
	if _, exists := r.byUser[entry.UserID]; exists {
		return ErrDuplicateEntry
	}
	r.entries = append(r.entries, entry)
	r.byUser[entry.UserID] = entry
	return nil
}

// Sort orders entries by progress DESC, then updatedAt ASC, then userID ASC
// as a total order for identical timestamps, and assigns ranks 1..n.
func (r *Ranking) Sort() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		a, b := r.entries[i], r.entries[j]
		if a.Progress != b.Progress {
			return a.Progress > b.Progress
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.UserID < b.UserID
	})
	for i, e := range r.entries {
		e.Rank = Rank(i + 1)
	}
}

// Entries returns the entries in their current order.
func (r *Ranking) Entries() []*Entry {
	return r.entries
}

// Find returns the entry for a user, or nil.
func (r *Ranking) Find(userID string) *Entry {
	return r.byUser[userID]
}

// Len returns the number of entries.
func (r *Ranking) Len() int {
	return len(r.entries)
}

// Page returns the entries for one page. Offsets past the end yield an
// empty slice, never an error.
func (r *Ranking) Page(limit, offset int) []*Entry {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(r.entries) {
		return []*Entry{}
	}
	end := len(r.entries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return r.entries[offset:end]
}

// ══════════════════════════════════════════════════════════════════════════════
// TEAM ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

// TeamEntry is one team's row in a team leaderboard.
type TeamEntry struct {
	// Rank - position after sorting, 1-based.
	Rank Rank

	// TeamID / Name - the ranked team.
	TeamID string
	Name   string

	// MemberCount - active and completed members. The first tie-break:
	// fewer members reaching the same total ranks higher.
	MemberCount int

	// TotalProgress - summed member progress, the primary sort key.
	TotalProgress float64

	// AverageProgress - TotalProgress / MemberCount.
	AverageProgress float64

	// IsCompleted - whether either team predicate has fired.
	IsCompleted bool

	// UpdatedAt - last aggregate recalculation, the final tie-break.
	UpdatedAt time.Time
}

// String returns a compact representation for logging.
func (e *TeamEntry) String() string {
	return fmt.Sprintf("TeamEntry{Rank: %d, Team: %s, Total: %.1f}", e.Rank, e.Name, e.TotalProgress)
}

// TeamRanking is a sorted team leaderboard under construction.
type TeamRanking struct {
	entries []*TeamEntry
	byTeam  map[string]*TeamEntry
}

// NewTeamRanking creates an empty team ranking.
func NewTeamRanking() *TeamRanking {
	return &TeamRanking{
		entries: make([]*TeamEntry, 0),
		byTeam:  make(map[string]*TeamEntry),
	}
}

// Add appends an entry without sorting. Each team may appear once.
func (r *TeamRanking) Add(entry *TeamEntry) error {
	if entry == nil {
		return ErrNilEntry
	}
	if _, exists := r.byTeam[entry.TeamID]; exists {
		return ErrDuplicateEntry
	}
	r.entries = append(r.entries, entry)
	r.byTeam[entry.TeamID] = entry
	return nil
}

// Sort orders entries by totalProgress DESC, then memberCount ASC, then
// updatedAt ASC, then teamID ASC, and assigns ranks 1..n.
func (r *TeamRanking) Sort() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		a, b := r.entries[i], r.entries[j]
		if a.TotalProgress != b.TotalProgress {
			return a.TotalProgress > b.TotalProgress
		}
		if a.MemberCount != b.MemberCount {
			return a.MemberCount < b.MemberCount
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.TeamID < b.TeamID
	})
	for i, e := range r.entries {
		e.Rank = Rank(i + 1)
	}
}

// Entries returns the entries in their current order.
func (r *TeamRanking) Entries() []*TeamEntry {
	return r.entries
}

// Find returns the entry for a team, or nil.
func (r *TeamRanking) Find(teamID string) *TeamEntry {
	return r.byTeam[teamID]
}

// Len returns the number of entries.
func (r *TeamRanking) Len() int {
	return len(r.entries)
}

// Page returns the entries for one page, mirroring Ranking.Page.
func (r *TeamRanking) Page(limit, offset int) []*TeamEntry {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(r.entries) {
		return []*TeamEntry{}
	}
	end := len(r.entries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return r.entries[offset:end]
}
