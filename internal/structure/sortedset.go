package structure

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ErrNotANumber is returned when a score or an increment result is NaN.
var ErrNotANumber = errors.New("structure: score is not a number")

// ScoredMember represents a member with its score in a sorted set.
type ScoredMember struct {
	Member string
	Score  float64
}

// SortedSet keeps (score, member) pairs ordered by ascending score, ties
// broken by member. The order is restored after every mutation by a full
// sort, and membership checks are linear, which is fine for moderate
// cardinalities only.
type SortedSet struct {
	entries []ScoredMember
}

// NewSortedSet creates a new sorted set.
func NewSortedSet() *SortedSet {
	return &SortedSet{
		entries: make([]ScoredMember, 0),
	}
}

// Add adds or updates members. Returns the number of new members added.
// A member that appears twice in one call is new only the first time; the
// last score given wins.
func (z *SortedSet) Add(members ...ScoredMember) (int, error) {
	for _, m := range members {
		if math.IsNaN(m.Score) {
			return 0, ErrNotANumber
		}
	}

	added := 0
	for _, m := range members {
		if idx := z.indexOf(m.Member); idx >= 0 {
			z.entries[idx].Score = m.Score
			continue
		}
		z.entries = append(z.entries, m)
		added++
	}
	z.resort()
	return added, nil
}

// IncrBy adds increment to the score of member, creating it with score
// increment if absent. Returns the new score.
func (z *SortedSet) IncrBy(member string, increment float64) (float64, error) {
	idx := z.indexOf(member)
	score := increment
	if idx >= 0 {
		score = z.entries[idx].Score + increment
	}
	if math.IsNaN(score) {
		return 0, ErrNotANumber
	}

	if idx >= 0 {
		z.entries[idx].Score = score
	} else {
		z.entries = append(z.entries, ScoredMember{Member: member, Score: score})
	}
	z.resort()
	return score, nil
}

// Remove removes members from the set. Returns number removed.
func (z *SortedSet) Remove(members ...string) int {
	drop := make(map[string]struct{}, len(members))
	for _, m := range members {
		drop[m] = struct{}{}
	}

	kept := z.entries[:0]
	for _, e := range z.entries {
		if _, ok := drop[e.Member]; ok {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(z.entries) - len(kept)
	z.entries = kept
	return removed
}

// Score returns the score of a member.
func (z *SortedSet) Score(member string) (float64, bool) {
	idx := z.indexOf(member)
	if idx < 0 {
		return 0, false
	}
	return z.entries[idx].Score, true
}

// Rank returns the rank of a member (0-based, ascending by score).
func (z *SortedSet) Rank(member string) (int, bool) {
	idx := z.indexOf(member)
	if idx < 0 {
		return -1, false
	}
	return idx, true
}

// Card returns the cardinality (number of elements) of the sorted set.
func (z *SortedSet) Card() int {
	return len(z.entries)
}

// Range returns members by index range (inclusive, 0-based).
// Supports negative indices (-1 = last element).
func (z *SortedSet) Range(start, stop int) []ScoredMember {
	s, e, ok := clampRange(start, stop, len(z.entries))
	if !ok {
		return []ScoredMember{}
	}
	result := make([]ScoredMember, e-s+1)
	copy(result, z.entries[s:e+1])
	return result
}

// RevRange applies Range to the sequence reversed (descending by score).
func (z *SortedSet) RevRange(start, stop int) []ScoredMember {
	n := len(z.entries)
	reversed := make([]ScoredMember, n)
	for i, e := range z.entries {
		reversed[n-1-i] = e
	}

	s, e, ok := clampRange(start, stop, n)
	if !ok {
		return []ScoredMember{}
	}
	return reversed[s : e+1]
}

// RangeByScore returns members with min <= score <= max in ascending order.
// offset and count page through the filtered result; count <= 0 means no limit.
func (z *SortedSet) RangeByScore(min, max float64, offset, count int) []ScoredMember {
	result := make([]ScoredMember, 0)
	skipped := 0
	for _, m := range z.entries {
		if m.Score < min || m.Score > max {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if count > 0 && len(result) >= count {
			break
		}
		result = append(result, m)
	}
	return result
}

// Count returns the number of elements with scores between min and max (inclusive).
func (z *SortedSet) Count(min, max float64) int {
	count := 0
	for _, m := range z.entries {
		if m.Score >= min && m.Score <= max {
			count++
		}
	}
	return count
}

func (z *SortedSet) indexOf(member string) int {
	for i, e := range z.entries {
		if e.Member == member {
			return i
		}
	}
	return -1
}

func (z *SortedSet) resort() {
	sort.Slice(z.entries, func(i, j int) bool {
		if z.entries[i].Score != z.entries[j].Score {
			return z.entries[i].Score < z.entries[j].Score
		}
		return z.entries[i].Member < z.entries[j].Member
	})
}

// MarshalJSON encodes the set as [[score, member], ...]. Infinite scores are
// written as the strings "+inf" and "-inf", which plain JSON numbers cannot hold.
func (z *SortedSet) MarshalJSON() ([]byte, error) {
	pairs := make([][2]any, len(z.entries))
	for i, e := range z.entries {
		pairs[i] = [2]any{encodeScore(e.Score), e.Member}
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON decodes [[score, member], ...] and restores the ordering.
func (z *SortedSet) UnmarshalJSON(data []byte) error {
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}

	entries := make([]ScoredMember, 0, len(pairs))
	for i, p := range pairs {
		score, err := decodeScore(p[0])
		if err != nil {
			return fmt.Errorf("structure: pair %d: %w", i, err)
		}
		var member string
		if err := json.Unmarshal(p[1], &member); err != nil {
			return fmt.Errorf("structure: pair %d: %w", i, err)
		}
		entries = append(entries, ScoredMember{Member: member, Score: score})
	}
	z.entries = entries
	z.resort()
	return nil
}

func encodeScore(score float64) any {
	switch {
	case math.IsInf(score, 1):
		return "+inf"
	case math.IsInf(score, -1):
		return "-inf"
	default:
		return score
	}
}

func decodeScore(raw json.RawMessage) (float64, error) {
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, nil
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return 0, fmt.Errorf("invalid score %s", raw)
	}
	score, err := ParseScore(token)
	if err != nil {
		return 0, err
	}
	return score, nil
}

// ParseScore parses a score bound. Besides plain numbers it accepts the
// sentinels "-inf", "+inf" and "inf" (any case).
func ParseScore(s string) (float64, error) {
	switch s {
	case "-inf", "-Inf", "-INF":
		return math.Inf(-1), nil
	case "+inf", "+Inf", "+INF", "inf", "Inf", "INF":
		return math.Inf(1), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("structure: invalid score %q", s)
	}
	if math.IsNaN(f) {
		return 0, ErrNotANumber
	}
	return f, nil
}
