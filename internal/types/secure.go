package types

// redactedPlaceholder replaces secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive values (the worker secret, provider tokens,
// the store connection string). String() and MarshalJSON() return a redacted
// placeholder; Unmask() retrieves the raw value where it is genuinely needed.
type SecretString string

// String returns a redacted placeholder instead of the raw value, covering
// fmt functions and structured log attributes.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string so secrets
// never land in serialized config dumps or response bodies.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value. Limit use to the places the actual
// secret is required: HTTP auth headers and store connection strings.
func (s SecretString) Unmask() string {
	return string(s)
}
