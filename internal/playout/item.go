// Package playout provides the regulation-ordered alert playout queue and
// the background worker that drives external playback.
package playout

import (
	"strings"
	"time"
)

// ComponentPlayout is the component tag used in enhanced errors.
const ComponentPlayout = "playout"

// PrecedenceLevel orders alert classes per 47 CFR § 11.31. Lower values
// carry higher priority.
type PrecedenceLevel int

const (
	PrecedencePresidential   PrecedenceLevel = 1 // EAN
	PrecedenceNationwideTest PrecedenceLevel = 2 // NPT
	PrecedenceLocal          PrecedenceLevel = 3
	PrecedenceState          PrecedenceLevel = 4
	PrecedenceNational       PrecedenceLevel = 5
	PrecedenceTest           PrecedenceLevel = 6 // RMT, RWT
	PrecedenceUnknown        PrecedenceLevel = 99
)

// String names the precedence class.
func (p PrecedenceLevel) String() string {
	switch p {
	case PrecedencePresidential:
		return "PRESIDENTIAL"
	case PrecedenceNationwideTest:
		return "NATIONWIDE_TEST"
	case PrecedenceLocal:
		return "LOCAL"
	case PrecedenceState:
		return "STATE"
	case PrecedenceNational:
		return "NATIONAL"
	case PrecedenceTest:
		return "TEST"
	default:
		return "UNKNOWN"
	}
}

// SeverityLevel orders CAP severity tokens.
type SeverityLevel int

const (
	SeverityExtreme  SeverityLevel = 1
	SeveritySevere   SeverityLevel = 2
	SeverityModerate SeverityLevel = 3
	SeverityMinor    SeverityLevel = 4
	SeverityUnknown  SeverityLevel = 5
)

// UrgencyLevel orders CAP urgency tokens.
type UrgencyLevel int

const (
	UrgencyImmediate UrgencyLevel = 1
	UrgencyExpected  UrgencyLevel = 2
	UrgencyFuture    UrgencyLevel = 3
	UrgencyPast      UrgencyLevel = 4
	UrgencyUnknown   UrgencyLevel = 5
)

// ParseSeverity maps a CAP severity token to its level. Missing or
// unrecognised tokens map to unknown.
func ParseSeverity(severity string) SeverityLevel {
	switch strings.ToUpper(severity) {
	case "EXTREME":
		return SeverityExtreme
	case "SEVERE":
		return SeveritySevere
	case "MODERATE":
		return SeverityModerate
	case "MINOR":
		return SeverityMinor
	default:
		return SeverityUnknown
	}
}

// ParseUrgency maps a CAP urgency token to its level.
func ParseUrgency(urgency string) UrgencyLevel {
	switch strings.ToUpper(urgency) {
	case "IMMEDIATE":
		return UrgencyImmediate
	case "EXPECTED":
		return UrgencyExpected
	case "FUTURE":
		return UrgencyFuture
	case "PAST":
		return UrgencyPast
	default:
		return UrgencyUnknown
	}
}

// PrecedenceSets holds the operator-configurable event-code classes used
// by DeterminePrecedence.
type PrecedenceSets struct {
	State    map[string]bool
	National map[string]bool
}

// DefaultPrecedenceSets returns the built-in state and national code sets.
func DefaultPrecedenceSets() PrecedenceSets {
	return PrecedenceSets{
		State:    codeSet("SPW", "EVI", "CEM", "DMO"),
		National: codeSet("NIC", "ADR", "AVW", "AVA"),
	}
}

// NewPrecedenceSets builds sets from configured code lists, falling back
// to the defaults when a list is empty.
func NewPrecedenceSets(state, national []string) PrecedenceSets {
	sets := DefaultPrecedenceSets()
	if len(state) > 0 {
		sets.State = codeSet(state...)
	}
	if len(national) > 0 {
		sets.National = codeSet(national...)
	}
	return sets
}

func codeSet(codes ...string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[strings.ToUpper(c)] = true
	}
	return set
}

// DeterminePrecedence classifies an alert per 47 CFR § 11.31. Scope and
// message type come from the upstream alert pipeline; public operational
// alerts default to local precedence unless their event code belongs to
// the state or national sets.
func DeterminePrecedence(eventCode, scope, messageType string, sets PrecedenceSets) PrecedenceLevel {
	if eventCode == "" {
		return PrecedenceUnknown
	}
	code := strings.ToUpper(eventCode)

	switch code {
	case "EAN":
		return PrecedencePresidential
	case "NPT":
		return PrecedenceNationwideTest
	case "RMT", "RWT":
		return PrecedenceTest
	}

	if strings.EqualFold(messageType, "Test") {
		return PrecedenceTest
	}

	if strings.EqualFold(scope, "Public") {
		if sets.National[code] {
			return PrecedenceNational
		}
		if sets.State[code] {
			return PrecedenceState
		}
		return PrecedenceLocal
	}

	return PrecedenceUnknown
}

// Item is one prioritised playout queue entry. The priority tuple
// (precedence, severity, urgency, origin timestamp, queue id) is totally
// ordered with the smallest tuple winning; queue ids are assigned by the
// queue and strictly increase within a queue instance.
type Item struct {
	QueueID         uint64
	Precedence      PrecedenceLevel
	Severity        SeverityLevel
	Urgency         UrgencyLevel
	OriginTimestamp time.Time // source event time, not enqueue time

	EventCode string
	EventName string
	// SAMEHeader is carried opaquely; the core never parses it.
	SAMEHeader string
	AudioPath  string
	EOMPath    string
	Metadata   map[string]any
}

// Less orders items by the full priority tuple.
func (i *Item) Less(other *Item) bool {
	if i.Precedence != other.Precedence {
		return i.Precedence < other.Precedence
	}
	if i.Severity != other.Severity {
		return i.Severity < other.Severity
	}
	if i.Urgency != other.Urgency {
		return i.Urgency < other.Urgency
	}
	if !i.OriginTimestamp.Equal(other.OriginTimestamp) {
		return i.OriginTimestamp.Before(other.OriginTimestamp)
	}
	return i.QueueID < other.QueueID
}

// CloneMetadata returns a copy of the metadata bag, never nil.
func (i *Item) CloneMetadata() map[string]any {
	out := make(map[string]any, len(i.Metadata))
	for k, v := range i.Metadata {
		out[k] = v
	}
	return out
}
