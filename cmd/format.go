package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/subsync/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

func renderStatus(status models.JobStatus) string {
	switch status {
	case models.JobCompleted:
		return styles.ok.Render(string(status))
	case models.JobNotFound:
		return styles.err.Render(string(status))
	default:
		return styles.warn.Render(string(status))
	}
}

func renderJobStatus(s *models.JobStatusResponse) string {
	var b strings.Builder

	b.WriteString(styles.title.Render("Sync job "+s.JobID) + "\n")
	b.WriteString(fmt.Sprintf("Status:   %s\n", renderStatus(s.Status)))
	if s.Status == models.JobNotFound {
		b.WriteString(styles.help.Render("job records expire after their retention window") + "\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("Progress: %d%% (%d/%d)\n", s.Progress, s.Completed, s.Total))
	b.WriteString(fmt.Sprintf("Outcome:  %s / %s\n",
		styles.ok.Render(fmt.Sprintf("%d succeeded", s.Succeeded)),
		styles.err.Render(fmt.Sprintf("%d failed", s.Failed))))
	b.WriteString(fmt.Sprintf("Items:    %d new\n", s.ItemsFound))

	for _, e := range s.Errors {
		label := e.SubscriptionID
		if label == "" {
			label = "-"
		}
		b.WriteString(fmt.Sprintf("  %s %s: %s\n", styles.err.Render("✗"), label, e.Error))
	}
	return b.String()
}

func renderDLQEntries(entries []models.DLQEntry) string {
	var b strings.Builder

	b.WriteString(styles.title.Render(fmt.Sprintf("Dead-letter entries (%d)", len(entries))) + "\n")
	for _, entry := range entries {
		when := time.UnixMilli(entry.DeadLetteredAt).Format(time.RFC3339)
		b.WriteString(fmt.Sprintf("%s  %s\n", styles.err.Render(entry.ID), styles.help.Render(when)))
		b.WriteString(fmt.Sprintf("  job %s  user %s  %s/%s  attempts %d\n",
			entry.Message.JobID, entry.Message.UserID,
			entry.Message.Provider, entry.Message.SubscriptionID, entry.Attempts))
	}
	return b.String()
}

func renderDLQSummary(s *models.DLQSummary) string {
	var b strings.Builder

	b.WriteString(styles.title.Render("Dead-letter queue") + "\n")
	b.WriteString(fmt.Sprintf("Captured: %d\n", s.Count))
	if s.Count == 0 {
		return b.String()
	}

	b.WriteString(fmt.Sprintf("Newest:   %s\n", time.UnixMilli(s.Newest).Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("Oldest:   %s %s\n",
		time.UnixMilli(s.Oldest).Format(time.RFC3339),
		styles.help.Render("(within the 10 most recent)")))
	b.WriteString(renderDLQEntries(s.Recent))
	return b.String()
}
