package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"inkdrop/internal/domain"
)

// RawFields keys set by the parser itself.
const (
	// FieldOriginalCategory preserves the classified value when the
	// confidence threshold forces needs_review, for audit purposes.
	FieldOriginalCategory = "original_category"
	// FieldParseError records why raw output could not be decoded.
	FieldParseError = "parse_error"
)

// Parse validates and normalizes raw classifier output. It never fails:
// malformed input is itself a valid, handled case whose outcome is
// needs_review with zero confidence. Decoded results are coerced into the
// closed category enumeration, confidence is clamped to [0,1], and values
// below threshold are routed to needs_review with the original category
// preserved in RawFields.
func Parse(raw string, threshold float64) domain.ClassificationResult {
	decoded, err := decode(raw)
	if err != nil {
		return domain.ClassificationResult{
			Category:   domain.CategoryNeedsReview,
			Confidence: 0,
			RawFields:  map[string]string{FieldParseError: err.Error()},
		}
	}

	result := domain.ClassificationResult{
		Category:  domain.CategoryNeedsReview,
		RawFields: map[string]string{},
	}

	for key, value := range decoded {
		switch key {
		case "category":
			if category := domain.Category(asString(value)); category.Valid() {
				result.Category = category
			}
		case "sub_area":
			result.SubArea = asString(value)
		case "confidence":
			if f, ok := value.(float64); ok {
				result.Confidence = clamp01(f)
			}
		default:
			result.RawFields[key] = asString(value)
		}
	}

	if result.Confidence < threshold && result.Category != domain.CategoryNeedsReview {
		result.RawFields[FieldOriginalCategory] = string(result.Category)
		result.Category = domain.CategoryNeedsReview
	}

	return result
}

// decode strips formatting artifacts the model may add around the payload
// and unmarshals it. Fenced code markers are the common case.
func decode(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("decode classifier output: %w", err)
	}
	return decoded, nil
}

func asString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func clamp01(f float64) float64 {
	switch {
	case f != f: // NaN
		return 0
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
