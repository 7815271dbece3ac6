package enums

import "fmt"

// GratuityKind selects how a gratuity value is interpreted.
type GratuityKind string

const (
	GratuityPercentage GratuityKind = "percentage"
	GratuityAmount     GratuityKind = "amount"
)

func (g GratuityKind) IsValid() bool {
	return g == GratuityPercentage || g == GratuityAmount
}

// ParseGratuityKind converts raw input into a GratuityKind.
func ParseGratuityKind(value string) (GratuityKind, error) {
	kind := GratuityKind(value)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid gratuity kind %q", value)
	}
	return kind, nil
}
