package reconcile

import "strings"

// Segment positions in a service's organisation notes: "ORG_NAME > ORG_OTHER_NAME".
const (
	OrgNoteNameIndex  = 0
	OrgNoteOtherIndex = 1
)

// NameParts is a full name split for the Contact FirstName/LastName fields.
type NameParts struct {
	First string
	Last  string
}

// SplitName splits a full name on whitespace. A name that does not split
// into at least two words is kept whole, with its original spacing, as the
// last name.
func SplitName(full string) NameParts {
	words := strings.Fields(full)
	if len(words) < 2 {
		return NameParts{Last: full}
	}
	return NameParts{
		First: words[0],
		Last:  strings.Join(words[1:], " "),
	}
}

// OrgNoteSegment returns the trimmed segment at index of a '>' delimited
// notes value. When notes is nil or has too few segments it is returned as is.
//
//	"Treasury Board Secretariat > Canadian Digital Service", 0 -> "Treasury Board Secretariat"
func OrgNoteSegment(notes *string, index int) *string {
	if notes == nil || index < 0 {
		return notes
	}
	parts := strings.Split(*notes, ">")
	if len(parts) <= index {
		return notes
	}
	segment := strings.TrimSpace(parts[index])
	return &segment
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
