package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/httprunner/isrsim"
)

const (
	logBanner = "========== ISR EXECUTION LOG =========="
	logFooter = "======================================="
)

func writeLog(w io.Writer, entries []isrsim.LogEntry) error {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(logBanner)
	b.WriteString("\n")
	for _, entry := range entries {
		b.WriteString(entry.String())
		b.WriteString("\n")
	}
	b.WriteString(logFooter)
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func formatDevices(ds []isrsim.Device) string {
	if len(ds) == 0 {
		return "(empty)"
	}
	names := make([]string, 0, len(ds))
	for _, d := range ds {
		names = append(names, d.String())
	}
	return strings.Join(names, " ")
}

func formatMasks(masks map[isrsim.Device]bool) string {
	devices := make([]isrsim.Device, 0, len(masks))
	for d := range masks {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Priority() < devices[j].Priority() })
	parts := make([]string, 0, len(devices))
	for _, d := range devices {
		state := "UNMASKED"
		if masks[d] {
			state = "MASKED"
		}
		parts = append(parts, fmt.Sprintf("%s(p%d)=%s", d, d.Priority(), state))
	}
	return strings.Join(parts, " ")
}
