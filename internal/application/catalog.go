package application

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jcourt/go-rally/internal/domain"
)

// titleCaser renders display names derived from activity IDs.
var titleCaser = cases.Title(language.English)

// catalogFile is the on-disk shape of an activity catalog.
type catalogFile struct {
	Activities []domain.Activity `yaml:"activities"`
}

// LoadCatalog reads the activity catalog from a YAML file. Every entry is
// validated and duplicate IDs are rejected; the catalog is static
// reference data, so a malformed entry fails the load rather than being
// skipped. Entries without a display name get one derived from their ID.
func LoadCatalog(path string) ([]domain.Activity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := strictUnmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(file.Activities) == 0 {
		return nil, fmt.Errorf("catalog %s: %w", path, domain.ErrEmptyCandidateSet)
	}

	verr := domain.NewValidationError("activity catalog")
	seen := make(map[string]struct{}, len(file.Activities))
	activities := make([]domain.Activity, 0, len(file.Activities))

	for i, activity := range file.Activities {
		if err := validate.Struct(activity); err != nil {
			verr.AddError(fmt.Sprintf("entry %d (%s): %v", i, activity.ID, err))
			continue
		}
		if _, dup := seen[activity.ID]; dup {
			verr.AddError(fmt.Sprintf("entry %d: duplicate id %q", i, activity.ID))
			continue
		}
		seen[activity.ID] = struct{}{}

		if activity.Name == "" {
			activity.Name = displayName(activity.ID)
		}
		activities = append(activities, activity)
	}

	if verr.HasErrors() {
		return nil, verr
	}
	return activities, nil
}

// displayName derives a readable name from a snake_case or kebab-case
// activity ID, e.g. "trail_running" becomes "Trail Running".
func displayName(id string) string {
	name := strings.NewReplacer("_", " ", "-", " ").Replace(id)
	return titleCaser.String(name)
}
