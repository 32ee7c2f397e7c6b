package archive

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Match says how a token was resolved. Higher values are stronger.
type Match int

const (
	MatchNone Match = iota
	MatchAlias
	MatchName
	MatchID
)

func (m Match) String() string {
	switch m {
	case MatchID:
		return "id"
	case MatchName:
		return "name"
	case MatchAlias:
		return "alias"
	}
	return "none"
}

var aliasPattern = regexp.MustCompile(`^player\s*#?\s*(\d+)$`)

// Resolve maps a historical player reference to an id. Comparison ignores case
// and surrounding space; an exact id beats a name, which beats a positional
// "player N" alias.
func Resolve(sum Summary, token string) (string, Match) {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return "", MatchNone
	}

	for _, s := range sum.SlotMapping.Slots {
		if strings.EqualFold(s.ID, tok) {
			return s.ID, MatchID
		}
	}
	ids := make([]string, 0, len(sum.Players))
	for id := range sum.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if strings.EqualFold(id, tok) {
			return id, MatchID
		}
	}

	for _, s := range sum.SlotMapping.Slots {
		if strings.EqualFold(strings.TrimSpace(s.Name), tok) {
			return s.ID, MatchName
		}
	}
	for _, id := range ids {
		if strings.EqualFold(strings.TrimSpace(sum.Players[id]), tok) {
			return id, MatchName
		}
	}

	if m := aliasPattern.FindStringSubmatch(strings.ToLower(tok)); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			for _, s := range sum.SlotMapping.Slots {
				if s.Slot == n {
					return s.ID, MatchAlias
				}
			}
		}
	}
	return "", MatchNone
}
