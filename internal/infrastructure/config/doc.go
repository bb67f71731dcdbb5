// Package config loads the Gym Desk settings file.
//
// Values are layered: built-in defaults, then the YAML file, then GYM_*
// environment variables for the fields that carry an env tag. Unknown YAML
// keys are an error. Validate reports every problem in one message.
//
// The JWT secret and the bootstrap admin password have development
// fallbacks so a fresh checkout starts without a .env file. Setting
// environment: production turns either fallback into a startup error.
package config
