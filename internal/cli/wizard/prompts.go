// Package wizard provides interactive prompts for CLI commands.
package wizard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// Settings are the values collected by PromptSettings. Fields that are
// already set are offered as defaults.
type Settings struct {
	Repository    string
	ProjectNumber int
	TargetStatus  string
	Type          string
	Label         string
}

// PromptSettings asks for the settings a starter config needs.
func PromptSettings(s *Settings) error {
	project := ""
	if s.ProjectNumber > 0 {
		project = strconv.Itoa(s.ProjectNumber)
	}
	if s.Type == "" {
		s.Type = "comment"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Repository (owner/name)").
				Value(&s.Repository).
				Validate(ValidateRepository),

			huh.NewInput().
				Title("Project Number").
				Value(&project).
				Validate(func(v string) error {
					_, err := ParseProjectNumber(v)
					return err
				}),

			huh.NewInput().
				Title("Target Status").
				Value(&s.TargetStatus).
				Validate(func(v string) error {
					if strings.TrimSpace(v) == "" {
						return fmt.Errorf("target status is required")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notify By").
				Options(
					huh.NewOption("Issue comment", "comment"),
					huh.NewOption("Email", "email"),
				).
				Value(&s.Type),

			huh.NewInput().
				Title("Label for notified issues (optional)").
				Value(&s.Label),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("prompt cancelled: %w", err)
	}

	n, err := ParseProjectNumber(project)
	if err != nil {
		return err
	}
	s.ProjectNumber = n
	s.Repository = strings.TrimSpace(s.Repository)
	s.TargetStatus = strings.TrimSpace(s.TargetStatus)
	s.Label = strings.TrimSpace(s.Label)
	return nil
}

// ConfirmOverwrite asks before replacing an existing config file.
func ConfirmOverwrite(path string) (bool, error) {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Existing Config Found").
				Description(fmt.Sprintf("%s already exists and will be replaced.", path)),

			huh.NewConfirm().
				Title("Overwrite it?").
				Value(&confirmed),
		),
	)

	if err := form.Run(); err != nil {
		return false, err
	}

	return confirmed, nil
}

// ValidateRepository checks the owner/name form.
func ValidateRepository(s string) error {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("repository must have the form owner/name")
	}
	return nil
}

// ParseProjectNumber parses a positive project number.
func ParseProjectNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("project number must be a positive integer")
	}
	return n, nil
}
