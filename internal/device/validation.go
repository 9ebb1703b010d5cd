package device

import (
	"fmt"
	"regexp"
)

// serialPattern accepts the serials printed on controller units.
// The charset deliberately excludes '/', '+' and '#', which are MQTT
// topic metacharacters; a serial containing them could hijack topic
// matching on the broker.
var serialPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidateSerial checks that a serial is safe to embed in MQTT topics.
func ValidateSerial(serial string) error {
	if serial == "" {
		return fmt.Errorf("%w: serial is empty", ErrInvalidSerial)
	}
	if !serialPattern.MatchString(serial) {
		return fmt.Errorf("%w: %q", ErrInvalidSerial, serial)
	}
	return nil
}
