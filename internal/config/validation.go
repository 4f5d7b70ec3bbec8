package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}

	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Add appends a new validation error.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors reports whether any errors were collected.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// FormatValidationError wraps collected errors with the entity they belong to.
func FormatValidationError(entityType, entityName string, errs ValidationErrors) error {
	if entityName == "" {
		return fmt.Errorf("invalid %s: %w", entityType, errs)
	}
	return fmt.Errorf("invalid %s %q: %w", entityType, entityName, errs)
}

// ValidateOneOf checks value against a fixed set of allowed values.
func ValidateOneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return ValidationError{Field: field, Message: fmt.Sprintf("must be one of %s, got %q", strings.Join(allowed, ", "), value)}
}

func validateSettings(s Settings) ValidationErrors {
	var errs ValidationErrors

	if s.UUID == "" {
		errs.Add(KeyUUID, "is required")
	}
	if s.CFPort != "" {
		if _, err := parsePort(s.CFPort); err != nil {
			errs.Add(KeyCFPort, err.Error())
		}
	}
	if s.NezhaPort != "" {
		if _, err := parsePort(s.NezhaPort); err != nil {
			errs.Add(KeyNezhaPort, err.Error())
		}
	}
	if strings.ContainsAny(s.SubPath, "/\\") {
		errs.Add(KeySubPath, "must be a single path segment")
	}
	return errs
}

// Warnings returns non-fatal remarks about s that an operator should see.
func Warnings(s Settings) []string {
	var notes []string
	if _, err := uuid.Parse(s.UUID); err != nil {
		notes = append(notes, fmt.Sprintf("%s %q is not a UUID; relay clients may reject it", KeyUUID, s.UUID))
	}
	if s.UUID == DefaultUUID {
		notes = append(notes, fmt.Sprintf("%s is the built-in default; set your own with 'config gen-token'", KeyUUID))
	}
	if (s.ArgoDomain == "") != (s.ArgoAuth == "") {
		notes = append(notes, fmt.Sprintf("%s and %s must both be set for a fixed tunnel; falling back to a quick tunnel", KeyArgoDomain, KeyArgoAuth))
	}
	if s.NezhaServer != "" && s.NezhaKey == "" {
		notes = append(notes, fmt.Sprintf("%s is set without %s; monitoring agent disabled", KeyNezhaServer, KeyNezhaKey))
	}
	if s.AutoAccess && s.ProjectURL == "" {
		notes = append(notes, fmt.Sprintf("%s is enabled without %s; keep-alive registration skipped", KeyAutoAccess, KeyProjectURL))
	}
	return notes
}

func validateRuntime(rt Runtime) error {
	var errs ValidationErrors

	durations := map[string]time.Duration{
		"timing.processSettle": rt.Timing.ProcessSettle,
		"timing.tunnelSettle":  rt.Timing.TunnelSettle,
		"timing.postLaunch":    rt.Timing.PostLaunch,
		"timing.restartSettle": rt.Timing.RestartSettle,
		"timing.cleanupGrace":  rt.Timing.CleanupGrace,
		"timing.stopTimeout":   rt.Timing.StopTimeout,
		"resolver.warmup":      rt.Resolver.Warmup,
		"resolver.cooldown":    rt.Resolver.Cooldown,
	}
	for field, d := range durations {
		if d < 0 {
			errs.Add(field, "must not be negative")
		}
	}
	if rt.Timing.WatchInterval <= 0 {
		errs.Add("timing.watchInterval", "must be positive")
	}
	if rt.Resolver.MaxAttempts < 1 {
		errs.Add("resolver.maxAttempts", "must be at least 1, got "+strconv.Itoa(rt.Resolver.MaxAttempts))
	}

	if errs.HasErrors() {
		return FormatValidationError("runtime config", "", errs)
	}
	return nil
}
