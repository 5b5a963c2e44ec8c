// Package config loads gateway configuration from YAML or TOML.
//
// Values of the form ${VAR} are replaced from the environment before parsing,
// so secrets such as the JWT secret and the assistant API token can stay out
// of the file:
//
//	auth:
//	  jwt_secret: "${NEXIAL_JWT_SECRET}"
//	assistant:
//	  api_token: "${HF_TOKEN}"
//
// Durations are written as Go duration strings ("30s", "24h"). Empty fields
// take the Default* constants. Validate reports the first invalid field.
package config
