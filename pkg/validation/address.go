package validation

import (
	"fmt"
	"net/mail"
	"net/netip"
	"strings"
)

// ValidateIP validates an IPv4 or IPv6 address
func ValidateIP(ip string) error {
	if strings.TrimSpace(ip) == "" {
		return fmt.Errorf("ip address cannot be empty")
	}
	if _, err := netip.ParseAddr(strings.TrimSpace(ip)); err != nil {
		return fmt.Errorf("invalid ip address: %w", err)
	}
	return nil
}

// NormalizeIP returns the canonical text form of an address, unmapping
// IPv4-in-IPv6 and dropping any zone.
func NormalizeIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return strings.TrimSpace(ip)
	}
	return addr.Unmap().WithZone("").String()
}

// ValidateAndNormalizeIP validates an address and returns its normalized form
func ValidateAndNormalizeIP(ip string) (string, error) {
	if err := ValidateIP(ip); err != nil {
		return "", err
	}
	return NormalizeIP(ip), nil
}

// ValidateEmail accepts a bare address like ops@example.com. Display names
// are rejected.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email: %w", err)
	}
	if addr.Name != "" || addr.Address != email {
		return fmt.Errorf("invalid email: expected a bare address")
	}
	return nil
}
