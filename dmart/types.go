package dmart

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the outcome reported in every Dmart response envelope
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ResourceType identifies the kind of a Dmart record
type ResourceType string

const (
	ResourceUser          ResourceType = "user"
	ResourceGroup         ResourceType = "group"
	ResourceFolder        ResourceType = "folder"
	ResourceSchema        ResourceType = "schema"
	ResourceContent       ResourceType = "content"
	ResourceACL           ResourceType = "acl"
	ResourceComment       ResourceType = "comment"
	ResourceMedia         ResourceType = "media"
	ResourceDataAsset     ResourceType = "data_asset"
	ResourceLocator       ResourceType = "locator"
	ResourceRelationship  ResourceType = "relationship"
	ResourceAlteration    ResourceType = "alteration"
	ResourceHistory       ResourceType = "history"
	ResourceSpace         ResourceType = "space"
	ResourceBranch        ResourceType = "branch"
	ResourcePermission    ResourceType = "permission"
	ResourceRole          ResourceType = "role"
	ResourceTicket        ResourceType = "ticket"
	ResourceJSON          ResourceType = "json"
	ResourceLock          ResourceType = "lock"
	ResourcePost          ResourceType = "post"
	ResourceReaction      ResourceType = "reaction"
	ResourceReply         ResourceType = "reply"
	ResourceShare         ResourceType = "share"
	ResourcePluginWrapper ResourceType = "plugin_wrapper"
	ResourceNotification  ResourceType = "notification"
)

// ErrorDetail is the structured error payload Dmart returns on failure
type ErrorDetail struct {
	Type    string           `json:"type"`
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Info    []map[string]any `json:"info,omitempty"`
}

// Record is a single entry in a response envelope
type Record struct {
	ResourceType ResourceType    `json:"resource_type"`
	UUID         string          `json:"uuid,omitempty"`
	Shortname    string          `json:"shortname"`
	Subpath      string          `json:"subpath"`
	Attributes   json.RawMessage `json:"attributes"`
}

// DecodeAttributes unmarshals the record attributes into v
func (r Record) DecodeAttributes(v any) error {
	if len(r.Attributes) == 0 {
		return nil
	}
	return json.Unmarshal(r.Attributes, v)
}

// Envelope is the common shape of every Dmart API response
type Envelope struct {
	Status     Status         `json:"status"`
	Error      *ErrorDetail   `json:"error,omitempty"`
	Records    []Record       `json:"records,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func decodeEnvelope(body []byte) (*Envelope, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Status == "" {
		return nil, fmt.Errorf("response has no status field")
	}

	return &env, nil
}

// Translation holds a localized string
type Translation struct {
	En string `json:"en,omitempty"`
	Ar string `json:"ar,omitempty"`
	Ku string `json:"ku,omitempty"`
}

// Permission describes what a user may do on a resource
type Permission struct {
	AllowedActions      []string       `json:"allowed_actions"`
	Conditions          []string       `json:"conditions"`
	RestrictedFields    []any          `json:"restricted_fields"`
	AllowedFieldsValues map[string]any `json:"allowed_fields_values"`
}

// Profile is the authenticated user's profile as returned by /user/profile
type Profile struct {
	Shortname           string                `json:"-"`
	Subpath             string                `json:"-"`
	ResourceType        ResourceType          `json:"-"`
	Email               string                `json:"email"`
	Msisdn              string                `json:"msisdn"`
	Displayname         Translation           `json:"displayname"`
	Description         Translation           `json:"description"`
	Type                string                `json:"type"`
	Language            string                `json:"language"`
	IsEmailVerified     bool                  `json:"is_email_verified"`
	IsMsisdnVerified    bool                  `json:"is_msisdn_verified"`
	ForcePasswordChange bool                  `json:"force_password_change"`
	Roles               []string              `json:"roles"`
	Groups              []string              `json:"groups"`
	Permissions         map[string]Permission `json:"permissions"`

	// Attributes is the untyped attribute map, including fields not modelled above
	Attributes map[string]any `json:"-"`
}

// GetDisplayName returns the best available human-readable name
func (p *Profile) GetDisplayName() string {
	switch {
	case p.Displayname.En != "":
		return p.Displayname.En
	case p.Displayname.Ar != "":
		return p.Displayname.Ar
	case p.Displayname.Ku != "":
		return p.Displayname.Ku
	case p.Email != "":
		return p.Email
	}
	return p.Shortname
}

func profileFromEnvelope(env *Envelope) (*Profile, error) {
	if len(env.Records) == 0 {
		return nil, fmt.Errorf("profile response has no records")
	}

	rec := env.Records[0]
	profile := &Profile{
		Shortname:    rec.Shortname,
		Subpath:      rec.Subpath,
		ResourceType: rec.ResourceType,
	}
	if err := rec.DecodeAttributes(profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile attributes: %w", err)
	}
	if err := rec.DecodeAttributes(&profile.Attributes); err != nil {
		return nil, fmt.Errorf("failed to decode profile attributes: %w", err)
	}

	return profile, nil
}

// Session is the credential state produced by a successful login
type Session struct {
	Token     string
	Shortname string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiredAt reports whether the session is expired at t, allowing for skew.
// A session without a known expiry never expires locally.
func (s Session) ExpiredAt(t time.Time, skew time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !t.Add(skew).Before(s.ExpiresAt)
}
