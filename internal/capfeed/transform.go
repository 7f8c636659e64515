package capfeed

import (
	"fmt"
	"strings"
	"time"

	"capalert/internal/model"
)

var severityAliases = map[string]model.Severity{
	"extreme":  model.SeverityExtreme,
	"severe":   model.SeveritySevere,
	"moderate": model.SeverityModerate,
	"minor":    model.SeverityMinor,
}

// toModelAlert transforms a decoded capAlert into the canonical model.Alert
// shape (spec.md §4.2 "Transformation"): coerces singleton/list fields,
// parses timestamps as absolute instants, and defaults senderName.
func toModelAlert(sourceID string, ca *capAlert) model.Alert {
	alert := model.Alert{
		SourceID:   sourceID,
		Identifier: ca.Identifier,
		Sender:     ca.Sender,
		Sent:       parseCAPTime(ca.Sent),
		Status:     model.Status(ca.Status),
		MsgType:    model.MsgType(ca.MsgType),
		Scope:      model.Scope(ca.Scope),
		Code:       ca.Code,
		Note:       ca.Note,
		References: ca.References,
		Incidents:  ca.Incidents,
		FetchedAt:  time.Now().UTC(),
	}

	for _, ci := range ca.Info {
		alert.Info = append(alert.Info, toModelInfo(ci))
	}
	alert.Active = alert.IsActiveAt(time.Now().UTC())
	return alert
}

func toModelInfo(ci capInfo) model.Info {
	info := model.Info{
		Language:     ci.Language,
		Category:     ci.Category,
		Event:        ci.Event,
		ResponseType: ci.ResponseType,
		Urgency:      normalizeEnum(ci.Urgency, model.UrgencyUnknown),
		Severity:     normalizeSeverity(ci.Severity),
		Certainty:    normalizeEnum(ci.Certainty, model.CertaintyUnknown),
		Effective:    parseCAPTime(ci.Effective),
		Expires:      parseCAPTime(ci.Expires),
		SenderName:   ci.SenderName,
		Headline:     ci.Headline,
		Description:  ci.Description,
		Instruction:  ci.Instruction,
		Web:          ci.Web,
		Contact:      ci.Contact,
	}
	if info.SenderName == "" {
		info.SenderName = "Unknown"
	}
	if ci.Onset != "" {
		onset := parseCAPTime(ci.Onset)
		info.Onset = &onset
	}
	for _, p := range ci.Parameter {
		info.Parameter = append(info.Parameter, model.Parameter{ValueName: p.ValueName, Value: p.Value})
	}
	for _, ca := range ci.Area {
		info.Area = append(info.Area, toModelArea(ca))
	}
	return info
}

func toModelArea(ca capArea) model.Area {
	area := model.Area{
		AreaDesc: ca.AreaDesc,
		Polygon:  ca.Polygon,
		Circle:   ca.Circle,
	}
	for _, g := range ca.Geocode {
		area.Geocode = append(area.Geocode, model.Geocode{ValueName: g.ValueName, Value: g.Value})
	}
	if v, ok := parseFloatPtr(ca.Altitude); ok {
		area.Altitude = v
	}
	if v, ok := parseFloatPtr(ca.Ceiling); ok {
		area.Ceiling = v
	}
	return area
}

func normalizeEnum[T ~string](raw string, unknown T) T {
	if raw == "" {
		return unknown
	}
	return T(raw)
}

func normalizeSeverity(raw string) model.Severity {
	if s, ok := severityAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	if raw == "" {
		return model.SeverityUnknown
	}
	return model.Severity(raw)
}

// parseCAPTime parses a CAP timestamp, which is an ISO-8601 / RFC 3339
// instant with an explicit offset. An unparsable or empty value yields the
// zero Time rather than an error, matching spec.md's log-and-continue
// policy for malformed publisher data.
func parseCAPTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02T15:04:05Z0700", raw); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func parseFloatPtr(raw string) (*float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	var v float64
	if _, err := fmt.Sscan(raw, &v); err != nil {
		return nil, false
	}
	return &v, true
}
