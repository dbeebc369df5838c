//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/manetu/sqlsecurity/pkg/common"
)

// SchemaV1 is the only line layout the decoder understands:
//
//	[time] [origin] [event_type] origin_type=[..], origin_address=[..], principal=[..],
//	  (run_as_principal=[..], )(run_by_principal=[..], )action=[..], (indices=[..], )request=[..]
//
// Any run of whitespace may separate fields.
const SchemaV1 = "v1"

const (
	fieldTime          = "time"
	fieldOrigin        = "origin"
	fieldEventType     = "event_type"
	fieldOriginType    = "origin_type"
	fieldOriginAddress = "origin_address"
	fieldPrincipal     = "principal"
	fieldRunAs         = "run_as_principal"
	fieldRunBy         = "run_by_principal"
	fieldAction        = "action"
	fieldIndices       = "indices"
	fieldRequest       = "request"
)

// required fields must be present and non-empty on every line
var required = []string{fieldTime, fieldEventType, fieldPrincipal, fieldAction, fieldRequest}

func part(name string) string {
	return `\[(?P<` + name + `>[^\]]*)\]`
}

func keyed(name string) string {
	return name + `=` + part(name) + `,\s+`
}

var v1Pattern = regexp.MustCompile(`^\s*` +
	part(fieldTime) + `\s+` +
	part(fieldOrigin) + `\s+` +
	part(fieldEventType) + `\s+` +
	keyed(fieldOriginType) +
	keyed(fieldOriginAddress) +
	keyed(fieldPrincipal) +
	`(?:` + keyed(fieldRunAs) + `)?` +
	`(?:` + keyed(fieldRunBy) + `)?` +
	fieldAction + `=\[(?P<` + fieldAction + `>.*?)\],\s+` +
	`(?:` + keyed(fieldIndices) + `)?` +
	fieldRequest + `=` + part(fieldRequest) +
	`\s*$`)

// Decoder turns audit lines into events.  It is stateless and safe for
// concurrent use.
type Decoder struct {
	pattern *regexp.Regexp
	groups  map[string]int
}

// NewDecoder returns a decoder for [SchemaV1].
func NewDecoder() *Decoder {
	groups := make(map[string]int)
	for i, name := range v1Pattern.SubexpNames() {
		if name != "" {
			groups[name] = i
		}
	}
	return &Decoder{pattern: v1Pattern, groups: groups}
}

// Decode parses a single line.  A line that does not have the expected
// structure is a [common.KindParse] error; such lines are never skipped.
func (d *Decoder) Decode(line string) (Event, error) {
	line = strings.TrimRight(line, "\r\n")
	m := d.pattern.FindStringSubmatch(line)
	if m == nil {
		return Event{}, common.Errorf(common.KindParse, "unrecognized log: %s", line)
	}

	get := func(name string) string {
		return m[d.groups[name]]
	}

	for _, name := range required {
		if get(name) == "" {
			return Event{}, common.Errorf(common.KindParse, "empty %s in log: %s", name, line)
		}
	}

	return Event{
		Timestamp:      get(fieldTime),
		Origin:         get(fieldOrigin),
		EventType:      EventType(get(fieldEventType)),
		OriginType:     get(fieldOriginType),
		OriginAddress:  get(fieldOriginAddress),
		Principal:      get(fieldPrincipal),
		RunAsPrincipal: get(fieldRunAs),
		RunByPrincipal: get(fieldRunBy),
		Action:         get(fieldAction),
		Indices:        SplitIndices(get(fieldIndices)),
		Request:        get(fieldRequest),
	}, nil
}

// SplitIndices splits a comma separated index list into a sorted set.
// Blank entries are dropped.
func SplitIndices(csv string) []string {
	set := make(map[string]struct{})
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			set[s] = struct{}{}
		}
	}

	indices := make([]string, 0, len(set))
	for s := range set {
		indices = append(indices, s)
	}
	sort.Strings(indices)
	return indices
}

// Encode renders an event as a [SchemaV1] line without the trailing newline.
// Decode(Encode(e)) returns e for any event whose fields hold no brackets or
// commas and whose indices are sorted.
func Encode(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] [%s]\torigin_type=[%s], origin_address=[%s], principal=[%s], ",
		e.Timestamp, e.Origin, e.EventType, e.OriginType, e.OriginAddress, e.Principal)
	if e.RunAsPrincipal != "" {
		fmt.Fprintf(&b, "run_as_principal=[%s], ", e.RunAsPrincipal)
	}
	if e.RunByPrincipal != "" {
		fmt.Fprintf(&b, "run_by_principal=[%s], ", e.RunByPrincipal)
	}
	fmt.Fprintf(&b, "action=[%s], ", e.Action)
	if len(e.Indices) > 0 {
		fmt.Fprintf(&b, "indices=[%s], ", strings.Join(e.Indices, ","))
	}
	fmt.Fprintf(&b, "request=[%s]", e.Request)
	return b.String()
}
