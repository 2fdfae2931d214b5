package models

import (
	"time"
)

// Document codecs. Documents cross the store boundary as map[string]any;
// timestamps are stored as RFC 3339 strings so that text ordering on the
// field is chronological in every backend. Decoders also accept time.Time
// values, which the in-memory backend preserves as written.

func EncodePrincipal(p *Principal) map[string]any {
	orgIDs := make([]any, 0, len(p.OrgIDs))
	for _, id := range p.OrgIDs {
		orgIDs = append(orgIDs, id)
	}
	return map[string]any{
		"principal_id":    p.PrincipalID,
		"email":           p.Email,
		"display_name":    p.DisplayName,
		"account_kind":    p.AccountKind,
		"org_ids":         orgIDs,
		"notify_by_email": p.NotifyByEmail,
		"notify_in_app":   p.NotifyInApp,
		"created_at":      encodeTime(p.CreatedAt),
		"updated_at":      encodeTime(p.UpdatedAt),
	}
}

func DecodePrincipal(data map[string]any) *Principal {
	return &Principal{
		PrincipalID:   asString(data["principal_id"]),
		Email:         asString(data["email"]),
		DisplayName:   asString(data["display_name"]),
		AccountKind:   asString(data["account_kind"]),
		OrgIDs:        asStrings(data["org_ids"]),
		NotifyByEmail: asBool(data["notify_by_email"]),
		NotifyInApp:   asBool(data["notify_in_app"]),
		CreatedAt:     asTime(data["created_at"]),
		UpdatedAt:     asTime(data["updated_at"]),
	}
}

func EncodeOrganization(o *Organization) map[string]any {
	return map[string]any{
		"org_id":               o.OrgID,
		"name":                 o.Name,
		"plan_tier":            o.PlanTier,
		"status":               o.Status,
		"creator_principal_id": o.CreatorPrincipalID,
		"created_at":           encodeTime(o.CreatedAt),
		"updated_at":           encodeTime(o.UpdatedAt),
	}
}

func DecodeOrganization(data map[string]any) *Organization {
	return &Organization{
		OrgID:              asString(data["org_id"]),
		Name:               asString(data["name"]),
		PlanTier:           asString(data["plan_tier"]),
		Status:             asString(data["status"]),
		CreatorPrincipalID: asString(data["creator_principal_id"]),
		CreatedAt:          asTime(data["created_at"]),
		UpdatedAt:          asTime(data["updated_at"]),
	}
}

func EncodeMembership(m *Membership) map[string]any {
	return map[string]any{
		"org_id":       m.OrgID,
		"principal_id": m.PrincipalID,
		"role":         m.Role,
		"email":        m.Email,
		"display_name": m.DisplayName,
		"created_at":   encodeTime(m.CreatedAt),
		"updated_at":   encodeTime(m.UpdatedAt),
	}
}

func DecodeMembership(data map[string]any) *Membership {
	return &Membership{
		OrgID:       asString(data["org_id"]),
		PrincipalID: asString(data["principal_id"]),
		Role:        asString(data["role"]),
		Email:       asString(data["email"]),
		DisplayName: asString(data["display_name"]),
		CreatedAt:   asTime(data["created_at"]),
		UpdatedAt:   asTime(data["updated_at"]),
	}
}

func EncodeRequest(r *Request) map[string]any {
	return map[string]any{
		"request_id": r.RequestID,
		"org_id":     r.OrgID,
		"title":      r.Title,
		"status":     r.Status,
		"pinned":     r.Pinned,
		"short_code": r.ShortCode,
		"created_by": r.CreatedBy,
		"created_at": encodeTime(r.CreatedAt),
		"updated_at": encodeTime(r.UpdatedAt),
	}
}

func DecodeRequest(data map[string]any) *Request {
	return &Request{
		RequestID: asString(data["request_id"]),
		OrgID:     asString(data["org_id"]),
		Title:     asString(data["title"]),
		Status:    asString(data["status"]),
		Pinned:    asBool(data["pinned"]),
		ShortCode: asString(data["short_code"]),
		CreatedBy: asString(data["created_by"]),
		CreatedAt: asTime(data["created_at"]),
		UpdatedAt: asTime(data["updated_at"]),
	}
}

func EncodeActivity(a *Activity) map[string]any {
	return map[string]any{
		"activity_id": a.ActivityID,
		"org_id":      a.OrgID,
		"actor":       a.Actor,
		"kind":        a.Kind,
		"subject":     a.Subject,
		"message":     a.Message,
		"created_at":  encodeTime(a.CreatedAt),
	}
}

func DecodeActivity(data map[string]any) *Activity {
	return &Activity{
		ActivityID: asString(data["activity_id"]),
		OrgID:      asString(data["org_id"]),
		Actor:      asString(data["actor"]),
		Kind:       asString(data["kind"]),
		Subject:    asString(data["subject"]),
		Message:    asString(data["message"]),
		CreatedAt:  asTime(data["created_at"]),
	}
}

func EncodeNotification(n *Notification) map[string]any {
	return map[string]any{
		"notification_id": n.NotificationID,
		"principal_id":    n.PrincipalID,
		"org_id":          n.OrgID,
		"kind":            n.Kind,
		"message":         n.Message,
		"read":            n.Read,
		"created_at":      encodeTime(n.CreatedAt),
	}
}

func DecodeNotification(data map[string]any) *Notification {
	return &Notification{
		NotificationID: asString(data["notification_id"]),
		PrincipalID:    asString(data["principal_id"]),
		OrgID:          asString(data["org_id"]),
		Kind:           asString(data["kind"]),
		Message:        asString(data["message"]),
		Read:           asBool(data["read"]),
		CreatedAt:      asTime(data["created_at"]),
	}
}

func EncodeComment(c *Comment) map[string]any {
	return map[string]any{
		"comment_id": c.CommentID,
		"request_id": c.RequestID,
		"author":     c.Author,
		"body":       c.Body,
		"created_at": encodeTime(c.CreatedAt),
		"updated_at": encodeTime(c.UpdatedAt),
	}
}

func DecodeComment(data map[string]any) *Comment {
	return &Comment{
		CommentID: asString(data["comment_id"]),
		RequestID: asString(data["request_id"]),
		Author:    asString(data["author"]),
		Body:      asString(data["body"]),
		CreatedAt: asTime(data["created_at"]),
		UpdatedAt: asTime(data["updated_at"]),
	}
}

// timeLayout is RFC 3339 with fixed-width nanoseconds. RFC3339Nano trims
// trailing zeros, and a truncated encoding sorts after a longer one of
// the same second ('Z' > '.'), which would break the stores' textual
// ordering on timestamp fields.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asStrings(v any) []string {
	switch vs := v.(type) {
	case []string:
		out := make([]string, len(vs))
		copy(out, vs)
		return out
	case []any:
		var out []string
		for _, item := range vs {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func asTime(v any) time.Time {
	switch tv := v.(type) {
	case time.Time:
		return tv
	case string:
		if tv == "" {
			return time.Time{}
		}
		t, err := time.Parse(time.RFC3339Nano, tv)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}
