package identity

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sakif/cinemax-club/internal/model"
)

// ProjectProfile flattens the session user's metadata into a Profile.
//
// It never fails: no session or no user gives nil, anything else gives a
// Profile whose fields are "" when missing or null. Scalars that are not
// strings keep their JSON text. SIC is always uppercased.
func ProjectProfile(s *model.Session) *model.Profile {
	if s == nil || s.User == nil {
		return nil
	}

	md := s.User.UserMetadata
	field := func(key string) string {
		if len(md) == 0 {
			return ""
		}
		r := gjson.GetBytes(md, key)
		if !r.Exists() || r.Type == gjson.Null || r.IsObject() || r.IsArray() {
			return ""
		}
		return r.String()
	}

	return &model.Profile{
		SIC:      strings.ToUpper(field("sic")),
		FullName: field("full_name"),
		Branch:   field("branch"),
		Year:     field("year"),
	}
}
