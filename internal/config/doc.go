// Package config manages user-level settings stored at ~/.extmgr/config.yaml.
// Values come from the config file, EXTMGR_* environment variables and
// built-in defaults, in that order of precedence after explicit flags.
package config
