// Package notify tells library owners that an import finished.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

var ErrNoRecipient = errors.New("no notification recipient for library")

type RecipientResolver interface {
	Resolve(ctx context.Context, libraryID string) (string, error)
}

// StaticRecipients maps library IDs to addresses. The "*" entry, when
// present, serves libraries without their own entry.
type StaticRecipients map[string]string

// ParseRecipients reads "libraryID=address" pairs separated by commas.
func ParseRecipients(raw string) (StaticRecipients, error) {
	out := StaticRecipients{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		library, address, ok := strings.Cut(pair, "=")
		library, address = strings.TrimSpace(library), strings.TrimSpace(address)
		if !ok || library == "" || address == "" {
			return nil, fmt.Errorf("invalid recipient entry %q", pair)
		}
		if _, err := mail.ParseAddress(address); err != nil {
			return nil, fmt.Errorf("invalid recipient address %q: %w", address, err)
		}
		out[strings.ToLower(library)] = address
	}
	return out, nil
}

func (r StaticRecipients) Resolve(_ context.Context, libraryID string) (string, error) {
	if address, ok := r[strings.ToLower(libraryID)]; ok {
		return address, nil
	}
	if address, ok := r["*"]; ok {
		return address, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoRecipient, libraryID)
}
