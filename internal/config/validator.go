package config

import "fmt"

// ValidationIssue describes a single problem with a configuration field.
type ValidationIssue struct {
	Field   string
	Message string
}

// ValidationResult aggregates configuration errors and warnings.
type ValidationResult struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

// IsValid returns true when no hard errors were found.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validate checks a configuration for impossible or suspicious values.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	relay := cfg.GetRelay()

	if relay.GamePort < 1 || relay.GamePort > 65535 {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "relay.game_port",
			Message: fmt.Sprintf("game port %d out of range 1-65535", relay.GamePort),
		})
	}

	if cfg.Application.APIPort < 0 || cfg.Application.APIPort > 65535 {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "application.api_port",
			Message: fmt.Sprintf("API port %d out of range 0-65535", cfg.Application.APIPort),
		})
	}

	if cfg.Application.APIPort == relay.GamePort && cfg.Application.APIPort != 0 {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "application.api_port",
			Message: "API port collides with the game port",
		})
	}

	if relay.IdleTimeoutMS <= 0 {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "relay.idle_timeout_ms",
			Message: "idle timeout must be positive",
		})
	}

	if relay.BattlePingIntervalMS <= 0 || relay.BattlePingTimeoutMS <= relay.BattlePingIntervalMS {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "relay.battle_ping_timeout_ms",
			Message: "battle ping timeout must exceed the ping interval",
		})
	}

	if relay.IdleTimeoutMS < relay.LobbyPingIntervalMS {
		result.Warnings = append(result.Warnings, ValidationIssue{
			Field:   "relay.idle_timeout_ms",
			Message: "idle timeout shorter than the lobby ping interval; quiet clients will be reaped",
		})
	}

	if len(relay.MapFilename) == 0 {
		result.Warnings = append(result.Warnings, ValidationIssue{
			Field:   "relay.map_filename",
			Message: "empty map filename; clients will show a blank map box",
		})
	}

	return result
}
