package profiles

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	"github.com/dmitrijs2005/openblind/internal/validation"
)

// Patch is a caller-supplied partial profile keyed by the models.Field*
// names. Only the editable fields are honoured; anything else (userId,
// encryptionVersion, timestamps, unknown keys) is silently dropped.
type Patch map[string]any

var editableFields = map[string]struct{}{
	models.FieldGivenName:       {},
	models.FieldFamilyName:      {},
	models.FieldPhone:           {},
	models.FieldBirthDate:       {},
	models.FieldProfileImageURL: {},
	models.FieldPreferences:     {},
}

// Editable returns the subset of p that callers are allowed to change.
func (p Patch) Editable() Patch {
	out := make(Patch, len(p))
	for k, v := range p {
		if _, ok := editableFields[k]; ok {
			out[k] = v
		}
	}
	return out
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrorValidation, fmt.Sprintf(format, args...))
}

func stringValue(field string, v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(s), nil
	case *string:
		if s == nil {
			return "", nil
		}
		return strings.TrimSpace(*s), nil
	}
	return "", invalid("%s must be a string", field)
}

var birthDateLayouts = []string{time.DateOnly, time.RFC3339, time.RFC3339Nano}

func birthDateValue(v any) (*time.Time, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		t := d.UTC()
		return &t, nil
	case *time.Time:
		if d == nil {
			return nil, nil
		}
		t := d.UTC()
		return &t, nil
	case string:
		d = strings.TrimSpace(d)
		if d == "" {
			return nil, nil
		}
		for _, layout := range birthDateLayouts {
			if t, err := time.Parse(layout, d); err == nil {
				t = t.UTC()
				return &t, nil
			}
		}
		return nil, invalid("birthDate %q is not a date", d)
	}
	return nil, invalid("birthDate must be a date string")
}

// preferencesValue merges v onto base and validates the result. v may be a
// full models.Preferences or a partial map as decoded from JSON.
func preferencesValue(base models.Preferences, v any) (models.Preferences, error) {
	base = base.WithDefaults()
	out := base

	switch p := v.(type) {
	case nil:
		return base, nil
	case models.Preferences:
		out = p
	case *models.Preferences:
		if p == nil {
			return base, nil
		}
		out = *p
	case map[string]any:
		for k, raw := range p {
			switch k {
			case "language":
				s, ok := raw.(string)
				if !ok {
					return base, invalid("preferences.language must be a string")
				}
				out.Language = s
			case "voiceSpeed":
				f, ok := toFloat(raw)
				if !ok {
					return base, invalid("preferences.voiceSpeed must be a number")
				}
				out.VoiceSpeed = f
			case "notifications":
				b, ok := raw.(bool)
				if !ok {
					return base, invalid("preferences.notifications must be a boolean")
				}
				out.Notifications = b
			case "theme":
				s, ok := raw.(string)
				if !ok {
					return base, invalid("preferences.theme must be a string")
				}
				out.Theme = s
			}
		}
	default:
		return base, invalid("preferences must be an object")
	}

	if err := validation.Struct(&out); err != nil {
		return base, err
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
