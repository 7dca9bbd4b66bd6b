package storage

import (
	"fmt"
	"strings"
)

// ResourceType represents the type of a schedule resource
type ResourceType int

const (
	ResourceTypePrincipal ResourceType = iota
	ResourceTypeScheduleHome
	ResourceTypeSchedule
	ResourceTypePreview
	ResourceTypePlan
	ResourceTypeExdates
	ResourceTypeExdate
)

// String returns the string representation of the ResourceType
func (rt ResourceType) String() string {
	switch rt {
	case ResourceTypePrincipal:
		return "principal"
	case ResourceTypeScheduleHome:
		return "schedule-home"
	case ResourceTypeSchedule:
		return "schedule"
	case ResourceTypePreview:
		return "preview"
	case ResourceTypePlan:
		return "plan"
	case ResourceTypeExdates:
		return "exdates"
	case ResourceTypeExdate:
		return "exdate"
	default:
		return "unknown"
	}
}

// Representation formats of a schedule resource
const (
	FormatJSON = ""
	FormatICS  = "ics"
	FormatXML  = "xml"
)

// ResourcePath represents a parsed schedule resource path
type ResourcePath struct {
	Type       ResourceType
	UserID     string
	ScheduleID string
	// Format is set for schedule paths with a .ics or .xml suffix
	Format string
	// Date is the exception date of an exdate path
	Date string
}

// String returns the string representation of the ResourcePath
func (rp *ResourcePath) String() string {
	base := fmt.Sprintf("/u/%s/sched/%s", rp.UserID, rp.ScheduleID)
	switch rp.Type {
	case ResourceTypePrincipal:
		return fmt.Sprintf("/u/%s", rp.UserID)
	case ResourceTypeScheduleHome:
		return fmt.Sprintf("/u/%s/sched", rp.UserID)
	case ResourceTypeSchedule:
		if rp.Format != FormatJSON {
			return base + "." + rp.Format
		}
		return base
	case ResourceTypePreview:
		return base + "/preview"
	case ResourceTypePlan:
		return base + "/plan"
	case ResourceTypeExdates:
		return base + "/exdates"
	case ResourceTypeExdate:
		return base + "/exdates/" + rp.Date
	default:
		return ""
	}
}

// ParseResourcePath parses a resource path into its components
func ParseResourcePath(path string) (*ResourcePath, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	// Split path into components
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] != "u" {
		return nil, fmt.Errorf("invalid path format")
	}

	// Get user ID
	userID := parts[1]
	if userID == "" {
		return nil, fmt.Errorf("invalid user ID")
	}

	// User principal path: /u/<userid>
	if len(parts) == 2 {
		return &ResourcePath{
			Type:   ResourceTypePrincipal,
			UserID: userID,
		}, nil
	}

	if parts[2] != "sched" {
		return nil, fmt.Errorf("invalid path format")
	}

	// Schedule home path: /u/<userid>/sched
	if len(parts) == 3 {
		return &ResourcePath{
			Type:   ResourceTypeScheduleHome,
			UserID: userID,
		}, nil
	}

	id := parts[3]
	if id == "" {
		return nil, fmt.Errorf("invalid schedule ID")
	}
	rp := &ResourcePath{UserID: userID, ScheduleID: id}

	switch len(parts) {
	case 4:
		// Schedule path: /u/<userid>/sched/<id>[.ics|.xml]
		rp.Type = ResourceTypeSchedule
		if name, ext, ok := cutExtension(id); ok {
			rp.ScheduleID = name
			rp.Format = ext
		}
		return rp, nil
	case 5:
		switch parts[4] {
		case "preview":
			rp.Type = ResourceTypePreview
			return rp, nil
		case "plan":
			rp.Type = ResourceTypePlan
			return rp, nil
		case "exdates":
			rp.Type = ResourceTypeExdates
			return rp, nil
		}
	case 6:
		// Exception date path: /u/<userid>/sched/<id>/exdates/<date>
		if parts[4] == "exdates" && parts[5] != "" {
			rp.Type = ResourceTypeExdate
			rp.Date = parts[5]
			return rp, nil
		}
	}

	return nil, fmt.Errorf("invalid path format")
}

func cutExtension(id string) (name, ext string, ok bool) {
	for _, format := range []string{FormatICS, FormatXML} {
		if name, found := strings.CutSuffix(id, "."+format); found && name != "" {
			return name, format, true
		}
	}
	return id, FormatJSON, false
}
