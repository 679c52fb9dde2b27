package ui

import "fmt"

// FormatETA renders a remaining-time estimate. A nil estimate means no
// account has finished yet.
func FormatETA(seconds *uint64) string {
	if seconds == nil {
		return "calculating"
	}
	secs := *seconds
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	minutes := secs / 60
	if minutes < 60 {
		if rem := secs % 60; rem != 0 {
			return fmt.Sprintf("%dm %ds", minutes, rem)
		}
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	remMinutes := minutes % 60
	if hours < 24 {
		if remMinutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, remMinutes)
	}
	days := hours / 24
	remHours := hours % 24
	if remHours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, remHours)
}
