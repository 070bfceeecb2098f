package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			MarginLeft(2)
)

// runWizard fills in the conversion parameters interactively. Flag values
// act as prefilled answers.
func runWizard(params *conversionParams) error {
	fmt.Println(titleStyle.Render("bidsforge: interactive conversion"))

	runStr := ""
	if params.Run > 0 {
		runStr = strconv.Itoa(params.Run)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("DICOM directory").
				Description("Directory holding the series to convert").
				Value(&params.DicomDir).
				Validate(notEmpty("DICOM directory")),
			huh.NewInput().
				Title("Archive root").
				Description("BIDS archive to append into (created if missing)").
				Value(&params.Archive).
				Validate(notEmpty("archive root")),
			huh.NewInput().
				Title("Subject ID").
				Placeholder("01").
				Value(&params.Subject).
				Validate(notEmpty("subject")),
			huh.NewInput().
				Title("Task name").
				Placeholder("faces").
				Value(&params.Task).
				Validate(notEmpty("task")),
			huh.NewInput().
				Title("Session ID (optional)").
				Value(&params.Session),
			huh.NewInput().
				Title("Run number (optional)").
				Value(&runStr).
				Validate(optionalInt),
			huh.NewSelect[string]().
				Title("Datatype").
				Options(
					huh.NewOption("Functional (func)", "func"),
					huh.NewOption("Anatomical (anat)", "anat"),
				).
				Value(&params.Datatype),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("wizard aborted: %w", err)
	}

	if runStr != "" {
		params.Run, _ = strconv.Atoi(runStr)
	}

	fmt.Println(summaryStyle.Render(fmt.Sprintf(
		"sub-%s task-%s datatype-%s: %s -> %s",
		params.Subject, params.Task, params.Datatype, params.DicomDir, params.Archive)))
	return nil
}

func notEmpty(name string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
		return nil
	}
}

func optionalInt(s string) error {
	if s == "" {
		return nil
	}
	if _, err := strconv.Atoi(s); err != nil {
		return fmt.Errorf("must be a number")
	}
	return nil
}
