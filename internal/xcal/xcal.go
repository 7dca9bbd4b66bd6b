// Package xcal renders iCalendar objects in the XML representation of RFC 6321.
package xcal

import (
	"cmp"
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/beevik/etree"
	"github.com/emersion/go-ical"
)

// Namespace is the xCal namespace
const Namespace = "urn:ietf:params:xml:ns:icalendar-2.0"

// ContentType is the media type of xCal documents
const ContentType = "application/calendar+xml"

// Element names
const (
	TagICalendar  = "icalendar"
	TagProperties = "properties"
	TagParameters = "parameters"
	TagComponents = "components"
	TagRecur      = "recur"
)

// Value type element names
const (
	TypeText     = "text"
	TypeDate     = "date"
	TypeDateTime = "date-time"
	TypeInteger  = "integer"
	TypeRecur    = "recur"
	TypeUnknown  = "unknown"
)

// ErrNilCalendar is returned when Encode is given no calendar
var ErrNilCalendar = errors.New("nil calendar")

var defaultTypes = map[string]string{
	ical.PropDateTimeStart:   TypeDateTime,
	ical.PropDateTimeEnd:     TypeDateTime,
	ical.PropDue:             TypeDateTime,
	ical.PropDateTimeStamp:   TypeDateTime,
	ical.PropCreated:         TypeDateTime,
	ical.PropLastModified:    TypeDateTime,
	ical.PropCompleted:       TypeDateTime,
	ical.PropRecurrenceID:    TypeDateTime,
	ical.PropExceptionDates:  TypeDateTime,
	ical.PropRecurrenceDates: TypeDateTime,
	ical.PropRecurrenceRule:  TypeRecur,
	ical.PropSequence:        TypeInteger,
	ical.PropPriority:        TypeInteger,
	ical.PropPercentComplete: TypeInteger,
	ical.PropUID:             TypeText,
	ical.PropSummary:         TypeText,
	ical.PropDescription:     TypeText,
	ical.PropProductID:       TypeText,
	ical.PropVersion:         TypeText,
	ical.PropStatus:          TypeText,
	ical.PropTimezoneID:      TypeText,
	ical.PropCategories:      TypeText,
}

// multiValued properties carry comma separated lists of values
var multiValued = map[string]bool{
	ical.PropExceptionDates:  true,
	ical.PropRecurrenceDates: true,
	ical.PropCategories:      true,
}

// Encode converts cal into an xCal document
func Encode(cal *ical.Calendar) (*etree.Document, error) {
	if cal == nil || cal.Component == nil {
		return nil, ErrNilCalendar
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement(TagICalendar)
	root.CreateAttr("xmlns", Namespace)
	root.AddChild(componentElement(cal.Component))
	return doc, nil
}

// EncodeToString is Encode followed by indented serialization
func EncodeToString(cal *ical.Calendar) (string, error) {
	doc, err := Encode(cal)
	if err != nil {
		return "", err
	}
	doc.Indent(2)
	return doc.WriteToString()
}

func componentElement(comp *ical.Component) *etree.Element {
	elem := etree.NewElement(strings.ToLower(comp.Name))

	if len(comp.Props) > 0 {
		props := elem.CreateElement(TagProperties)
		for _, name := range sortedNames(comp.Props) {
			for _, prop := range comp.Props[name] {
				props.AddChild(propertyElement(&prop))
			}
		}
	}

	if len(comp.Children) > 0 {
		children := elem.CreateElement(TagComponents)
		for _, child := range comp.Children {
			children.AddChild(componentElement(child))
		}
	}

	return elem
}

// sortedNames keeps the well-known header properties first and the rest in
// lexical order so output is stable.
func sortedNames(props ical.Props) []string {
	rank := func(name string) int {
		switch name {
		case ical.PropVersion, ical.PropUID:
			return 0
		case ical.PropProductID, ical.PropDateTimeStamp:
			return 1
		}
		return 2
	}
	names := slices.Collect(maps.Keys(props))
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(rank(a), rank(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return names
}

func propertyElement(prop *ical.Prop) *etree.Element {
	elem := etree.NewElement(strings.ToLower(prop.Name))

	valueType := valueTypeOf(prop)

	var params *etree.Element
	for _, name := range slices.Sorted(maps.Keys(prop.Params)) {
		values := prop.Params[name]
		if strings.EqualFold(name, ical.ParamValue) {
			continue
		}
		if params == nil {
			params = elem.CreateElement(TagParameters)
		}
		param := params.CreateElement(strings.ToLower(name))
		for _, v := range values {
			param.CreateElement(TypeText).SetText(v)
		}
	}

	switch valueType {
	case TypeRecur:
		elem.AddChild(recurElement(prop.Value))
	case TypeText:
		text, err := prop.Text()
		if err != nil {
			text = prop.Value
		}
		if multiValued[strings.ToUpper(prop.Name)] {
			for _, v := range strings.Split(text, ",") {
				elem.CreateElement(TypeText).SetText(v)
			}
		} else {
			elem.CreateElement(TypeText).SetText(text)
		}
	case TypeDate, TypeDateTime:
		values := []string{prop.Value}
		if multiValued[strings.ToUpper(prop.Name)] {
			values = strings.Split(prop.Value, ",")
		}
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			elem.CreateElement(valueType).SetText(formatDateTime(v))
		}
	default:
		elem.CreateElement(valueType).SetText(prop.Value)
	}

	return elem
}

func valueTypeOf(prop *ical.Prop) string {
	if v := prop.Params.Get(ical.ParamValue); v != "" {
		return strings.ToLower(v)
	}
	if t, ok := defaultTypes[strings.ToUpper(prop.Name)]; ok {
		return t
	}
	return TypeUnknown
}

// recurElement splits an RRULE value into its parts. Parts with list values
// become one element per item.
func recurElement(value string) *etree.Element {
	recur := etree.NewElement(TagRecur)
	for _, part := range strings.Split(value, ";") {
		key, val, ok := strings.Cut(part, "=")
		if !ok || key == "" {
			continue
		}
		key = strings.ToLower(key)
		if key == "until" {
			recur.CreateElement(key).SetText(formatDateTime(val))
			continue
		}
		for _, item := range strings.Split(val, ",") {
			recur.CreateElement(key).SetText(item)
		}
	}
	return recur
}

// formatDateTime turns the basic iCalendar forms 20250127 and 20250127T093000Z
// into the extended forms 2025-01-27 and 2025-01-27T09:30:00Z.
func formatDateTime(v string) string {
	date, clock, hasTime := strings.Cut(v, "T")
	if len(date) != 8 {
		return v
	}
	out := date[0:4] + "-" + date[4:6] + "-" + date[6:8]
	if !hasTime {
		return out
	}
	zulu := strings.HasSuffix(clock, "Z")
	clock = strings.TrimSuffix(clock, "Z")
	if len(clock) != 6 {
		return v
	}
	out += "T" + clock[0:2] + ":" + clock[2:4] + ":" + clock[4:6]
	if zulu {
		out += "Z"
	}
	return out
}
