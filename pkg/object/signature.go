package object

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// String renders the signature the way it appears in commit and tag
// headers: "Name <email> unix ±HHMM".
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), formatTZ(s.When))
}

func formatTZ(t time.Time) string {
	_, offset := t.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%c%02d%02d", sign, offset/3600, (offset%3600)/60)
}

// ParseSignature parses "Name <email> unix ±HHMM". A missing or unparsable
// timestamp yields the zero time rather than an error, matching how git
// tolerates damaged identity lines.
func ParseSignature(line string) (Signature, error) {
	open := strings.IndexByte(line, '<')
	closeIdx := strings.LastIndexByte(line, '>')
	if open < 0 || closeIdx < open {
		return Signature{}, fmt.Errorf("parse signature %q: missing <email>", line)
	}
	sig := Signature{
		Name:  strings.TrimSpace(line[:open]),
		Email: line[open+1 : closeIdx],
	}

	fields := strings.Fields(line[closeIdx+1:])
	if len(fields) == 0 {
		return sig, nil
	}
	unix, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return sig, nil
	}
	loc := time.UTC
	if len(fields) > 1 {
		if l, ok := parseTZ(fields[1]); ok {
			loc = l
		}
	}
	sig.When = time.Unix(unix, 0).In(loc)
	return sig, nil
}

func parseTZ(tz string) (*time.Location, bool) {
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return nil, false
	}
	hh, err1 := strconv.Atoi(tz[1:3])
	mm, err2 := strconv.Atoi(tz[3:5])
	if err1 != nil || err2 != nil {
		return nil, false
	}
	offset := hh*3600 + mm*60
	if tz[0] == '-' {
		offset = -offset
	}
	return time.FixedZone("", offset), true
}

// CommitSigningPayload returns the canonical bytes that are signed for a
// commit. The payload excludes the gpgsig header itself.
func CommitSigningPayload(c *CommitObj) []byte {
	if c == nil {
		return nil
	}
	copyCommit := *c
	copyCommit.Signature = ""
	return MarshalCommit(&copyCommit)
}
