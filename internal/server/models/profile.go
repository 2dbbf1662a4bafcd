package models

import "time"

// Field names of a stored profile. They double as the keys accepted by a
// profile patch and as MongoDB document keys.
const (
	FieldUserID            = "userId"
	FieldGivenName         = "givenName"
	FieldFamilyName        = "familyName"
	FieldPhone             = "phone"
	FieldProfileImageURL   = "profileImageUrl"
	FieldBirthDate         = "birthDate"
	FieldPreferences       = "preferences"
	FieldEncryptionVersion = "encryptionVersion"
	FieldLastProfileUpdate = "lastProfileUpdate"
	FieldUpdatedAt         = "updatedAt"
)

// SensitiveFields lists the profile attributes stored as envelopes.
var SensitiveFields = []string{
	FieldGivenName,
	FieldFamilyName,
	FieldPhone,
	FieldProfileImageURL,
}

// Preferences are accessibility settings. They are not personal data and
// are stored in the clear.
type Preferences struct {
	Language      string  `bson:"language" json:"language" validate:"oneof=es en"`
	VoiceSpeed    float64 `bson:"voiceSpeed" json:"voiceSpeed" validate:"gte=0.5,lte=2"`
	Notifications bool    `bson:"notifications" json:"notifications"`
	Theme         string  `bson:"theme" json:"theme" validate:"oneof=light dark high-contrast"`
}

// DefaultPreferences are applied to new profiles.
func DefaultPreferences() Preferences {
	return Preferences{
		Language:      "es",
		VoiceSpeed:    1.0,
		Notifications: true,
		Theme:         "light",
	}
}

// WithDefaults fills fields that legacy records left empty.
func (p Preferences) WithDefaults() Preferences {
	d := DefaultPreferences()
	if p.Language == "" {
		p.Language = d.Language
	}
	if p.VoiceSpeed == 0 {
		p.VoiceSpeed = d.VoiceSpeed
	}
	if p.Theme == "" {
		p.Theme = d.Theme
	}
	return p
}

// Profile is a profile exactly as persisted. The four sensitive string
// fields hold envelopes, or plaintext for records written before
// encryption was introduced.
type Profile struct {
	ID                string
	UserID            int64
	GivenName         string
	FamilyName        string
	Phone             string
	ProfileImageURL   string
	BirthDate         *time.Time
	Preferences       Preferences
	EncryptionVersion string
	LastProfileUpdate time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Sensitive returns the stored value of a sensitive field by name.
func (p *Profile) Sensitive(field string) string {
	switch field {
	case FieldGivenName:
		return p.GivenName
	case FieldFamilyName:
		return p.FamilyName
	case FieldPhone:
		return p.Phone
	case FieldProfileImageURL:
		return p.ProfileImageURL
	}
	return ""
}

// SetSensitive assigns the stored value of a sensitive field by name.
func (p *Profile) SetSensitive(field, value string) {
	switch field {
	case FieldGivenName:
		p.GivenName = value
	case FieldFamilyName:
		p.FamilyName = value
	case FieldPhone:
		p.Phone = value
	case FieldProfileImageURL:
		p.ProfileImageURL = value
	}
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	c := *p
	if p.BirthDate != nil {
		bd := *p.BirthDate
		c.BirthDate = &bd
	}
	return &c
}
