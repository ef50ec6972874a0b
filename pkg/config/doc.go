// Package config loads the session configuration from YAML.
//
// Defaults cover every field, so a missing or empty config path yields a
// working setup pointed at production endpoints. The bearer token is read
// from a separate file referenced by api.token_file; it never appears in
// the config file itself.
package config
