// Package config loads feed configuration from YAML or TOML with
// environment variable substitution.
//
// Configuration files support ${VAR} syntax. An optional .env file can seed
// the environment before loading.
package config
