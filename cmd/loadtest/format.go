package main

import (
	"fmt"
	"strings"
	"time"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/worker"
)

// formatGrade оценка [0,1] в шкале x.x/10.
func formatGrade(grade *float64) string {
	if grade == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f/10", *grade*10)
}

func formatEvent(e worker.Event) string {
	var b strings.Builder
	b.WriteString(e.Time.Local().Format("15:04:05"))
	if e.TaskIndex != nil {
		fmt.Fprintf(&b, " #%-4d", *e.TaskIndex)
	} else {
		b.WriteString("      ")
	}
	fmt.Fprintf(&b, " %-14s", e.Kind)
	if e.Company != "" {
		fmt.Fprintf(&b, " company=%q", e.Company)
	}
	if e.Mode != "" {
		fmt.Fprintf(&b, " mode=%s", e.Mode)
	}
	if e.Misdirected {
		b.WriteString(" misdirected")
	}
	if e.Kind == worker.EventTaskCompleted {
		fmt.Fprintf(&b, " grade=%s", formatGrade(e.Grade))
	}
	if e.Sent != nil {
		fmt.Fprintf(&b, " sent=%t", *e.Sent)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " reason=%s", e.Reason)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " %s", e.Message)
	}
	return b.String()
}

func formatSummary(s domain.RunSummary) []string {
	lines := []string{
		fmt.Sprintf("Run:                 %s", s.RunID),
	}
	if s.TestID > 0 {
		lines = append(lines, fmt.Sprintf("Test ID:             %d", s.TestID))
	}
	status := "completed"
	if s.Cancelled {
		status = "cancelled"
	}
	lines = append(lines,
		fmt.Sprintf("Status:              %s", status),
		fmt.Sprintf("Companies:           %s", strings.Join(s.Companies, ", ")),
		fmt.Sprintf("Emails:              %d/%d", s.TotalRequests, s.NumEmails),
		fmt.Sprintf("Concurrency:         %d", s.ConcurrencyLevel),
		fmt.Sprintf("Duration:            %s", s.Duration().Round(time.Millisecond)),
		fmt.Sprintf("Successes:           %d", s.SuccessCount),
		fmt.Sprintf("Failures:            %d", s.FailureCount),
		fmt.Sprintf("Sent:                %d", s.SentCount),
		fmt.Sprintf("Send failures:       %d", s.SendFailureCount),
		fmt.Sprintf("Average reply grade: %s", formatGrade(s.AvgReplyGrade)),
	)
	return lines
}
