package writer

import (
	"fmt"
	"sort"
	"strings"

	"inkdrop/internal/classify"
	"inkdrop/internal/domain"
)

// Anchor markers designate where appended content is inserted within a
// document. Skeletons for freshly created documents carry the matching
// anchor so the first append already lands in the right section.
const (
	anchorPeople   = "<!-- inkdrop:log -->"
	anchorProjects = "<!-- inkdrop:tasks -->"
	anchorIdeas    = "<!-- inkdrop:ideas -->"
	anchorReview   = "<!-- inkdrop:inbox -->"
)

const timeLayout = "2006-01-02 15:04"

// renderBlock produces the destination-specific content block. Rendering is
// pure placeholder substitution over the event and classification, so the
// same inputs always yield byte-identical output. Dispatch is a closed
// switch over the category enumeration; registry template identifiers map
// onto the same four variants.
func renderBlock(event domain.CaptureEvent, result domain.ClassificationResult) string {
	stamp := event.ReceivedAt.UTC().Format(timeLayout)

	switch result.Category {
	case domain.CategoryPeople:
		var sb strings.Builder
		fmt.Fprintf(&sb, "### %s — %s\n", stamp, event.Author)
		if result.SubArea != "" {
			fmt.Fprintf(&sb, "Re: %s\n", result.SubArea)
		}
		fmt.Fprintf(&sb, "%s\n\n", strings.TrimSpace(event.Text))
		return sb.String()

	case domain.CategoryProjects:
		line := fmt.Sprintf("- [ ] %s", strings.TrimSpace(event.Text))
		if summary, ok := result.RawFields["summary"]; ok {
			line = fmt.Sprintf("- [ ] %s", summary)
		}
		return fmt.Sprintf("%s (from %s in #%s, %s)\n", line, event.Author, event.Channel, stamp)

	case domain.CategoryIdeas:
		return fmt.Sprintf("- %s — %s, %s\n", strings.TrimSpace(event.Text), event.Author, stamp)

	default: // needs_review, the catch-all for degraded classifications
		var sb strings.Builder
		fmt.Fprintf(&sb, "## %s — %s (#%s)\n", stamp, event.Author, event.Channel)
		fmt.Fprintf(&sb, "> %s\n", strings.ReplaceAll(strings.TrimSpace(event.Text), "\n", "\n> "))
		fmt.Fprintf(&sb, "confidence: %.2f\n", result.Confidence)
		for _, key := range sortedKeys(result.RawFields) {
			fmt.Fprintf(&sb, "%s: %s\n", key, result.RawFields[key])
		}
		sb.WriteString("\n")
		return sb.String()
	}
}

func anchorFor(category domain.Category) string {
	switch category {
	case domain.CategoryPeople:
		return anchorPeople
	case domain.CategoryProjects:
		return anchorProjects
	case domain.CategoryIdeas:
		return anchorIdeas
	default:
		return anchorReview
	}
}

// skeletonFor returns the initial document body for create-then-append.
func skeletonFor(category domain.Category, target domain.TargetLocation) string {
	title := strings.TrimSuffix(baseName(target.Path), ".md")

	switch category {
	case domain.CategoryPeople:
		return fmt.Sprintf("# %s\n\n## Log\n\n%s\n", title, anchorPeople)
	case domain.CategoryProjects:
		return fmt.Sprintf("# %s\n\n## Tasks\n\n%s\n", title, anchorProjects)
	case domain.CategoryIdeas:
		return fmt.Sprintf("# %s\n\n## Ideas\n\n%s\n", title, anchorIdeas)
	default:
		return fmt.Sprintf("# %s\n\n## Inbox\n\n%s\n", title, anchorReview)
	}
}

func baseName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		// parse errors are audit detail, not note content
		if key == classify.FieldParseError {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
