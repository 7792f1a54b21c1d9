package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// componentIDPrefix marks custom ids generated by this service.
const componentIDPrefix = "flowbot"

// ComponentID is the routing context encoded into a generated interactive
// component identifier, enough to correlate a later interaction back to its
// origin without ambient state.
type ComponentID struct {
	TemplateID string
	Page       int
	ElementID  string
	Nonce      string
}

// EncodeComponentID builds the custom id of one interactive element:
// "flowbot:<template>:<page>:<element>:<nonce>". The nonce keeps ids unique
// across republishes of the same template page.
func EncodeComponentID(templateID string, page int, elementID string) string {
	nonce := uuid.NewString()[:8]
	return strings.Join([]string{componentIDPrefix, templateID, strconv.Itoa(page), elementID, nonce}, ":")
}

// ParseComponentID decodes a custom id produced by EncodeComponentID.
func ParseComponentID(customID string) (ComponentID, error) {
	parts := strings.Split(customID, ":")
	if len(parts) != 5 || parts[0] != componentIDPrefix {
		return ComponentID{}, fmt.Errorf("not a flowbot component id: %q", customID)
	}
	page, err := strconv.Atoi(parts[2])
	if err != nil {
		return ComponentID{}, fmt.Errorf("bad page in component id %q: %w", customID, err)
	}
	return ComponentID{
		TemplateID: parts[1],
		Page:       page,
		ElementID:  parts[3],
		Nonce:      parts[4],
	}, nil
}

// IsComponentID reports whether a custom id was generated by this service.
func IsComponentID(customID string) bool {
	return strings.HasPrefix(customID, componentIDPrefix+":")
}
