package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on admin requests.
const AccessTokenHeaderName = "access_token"

// EncryptionVersion tags a profile whose sensitive fields are all sealed
// with the current envelope scheme.
const EncryptionVersion = "v1"

// Account roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
