package device

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength  = 100
	maxIDLength    = 50
	maxTopicLength = 100
	maxPort        = 65535
	idPattern      = `^[a-z0-9]+(?:-[a-z0-9]+)*$`
)

var idRegex = regexp.MustCompile(idPattern)

// Pre-computed validation set for O(1) lookups.
var validTransports map[TransportKind]struct{}

func init() {
	validTransports = make(map[TransportKind]struct{}, len(AllTransports()))
	for _, t := range AllTransports() {
		validTransports[t] = struct{}{}
	}
}

// ValidateDefinition performs comprehensive validation on a definition.
// Returns an error describing the first validation failure found.
func ValidateDefinition(d *Definition) error {
	if d == nil {
		return fmt.Errorf("%w: definition is nil", ErrInvalidDevice)
	}
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if _, ok := validTransports[d.Transport]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidTransport, d.Transport)
	}

	switch d.Transport {
	case TransportMQTT:
		if err := ValidateTopic(d.Topic); err != nil {
			return err
		}
		if d.Broker != nil {
			if d.Broker.Host == "" {
				return fmt.Errorf("%w: broker host is required", ErrInvalidDevice)
			}
			if err := validatePort(d.Broker.Port); err != nil {
				return err
			}
		}
	case TransportHTTP:
		if strings.TrimSpace(d.Host) == "" {
			return fmt.Errorf("%w: http device requires host", ErrInvalidDevice)
		}
		if err := validatePort(d.Port); err != nil {
			return err
		}
	}

	if _, _, err := d.StaticCapabilities(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDevice, err)
	}
	return nil
}

// ValidateID checks an ID is lowercase alphanumeric with hyphens.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidDevice)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidDevice, maxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: id must be lowercase alphanumeric with hyphens", ErrInvalidDevice)
	}
	return nil
}

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateTopic checks a Tasmota device topic. Wildcards and whitespace
// are rejected since the topic is embedded in subscriptions.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: mqtt device requires topic", ErrInvalidDevice)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic exceeds %d characters", ErrInvalidDevice, maxTopicLength)
	}
	if strings.ContainsAny(topic, "+# \t") || strings.HasPrefix(topic, "/") || strings.HasSuffix(topic, "/") {
		return fmt.Errorf("%w: invalid topic %q", ErrInvalidDevice, topic)
	}
	return nil
}

func validatePort(port int) error {
	if port < 0 || port > maxPort {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidDevice, port)
	}
	return nil
}

// GenerateSlug creates an ID-safe slug from a name.
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	if len(slug) > maxIDLength {
		slug = slug[:maxIDLength]
		slug = strings.TrimRight(slug, "-")
	}

	return slug
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
