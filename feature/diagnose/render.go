package diagnose

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Render writes the findings as plain text for an operator terminal.
func Render(w io.Writer, f *AuditFindings) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Diagnosis for caregiver %s\n", f.CaregiverID)
	fmt.Fprintf(&b, "generated: %s\n", f.GeneratedAt.UTC().Format(time.RFC3339))
	if f.CaregiverExists {
		fmt.Fprintf(&b, "caregiver: present (role %s)\n", orDefault(f.CaregiverRole, "unknown"))
	} else {
		b.WriteString("caregiver: missing\n")
	}
	b.WriteString("\n")

	if len(f.Devices) == 0 {
		b.WriteString("devices: none\n\n")
	}
	for _, d := range f.Devices {
		fmt.Fprintf(&b, "device %s\n", d.DeviceID)
		if d.Exists {
			fmt.Fprintf(&b, "  document: present (primary %s, provisioning %s)\n",
				orDefault(d.PrimaryPatientID, "none"), orDefault(d.ProvisioningStatus, "none"))
		} else {
			b.WriteString("  document: missing\n")
		}
		fmt.Fprintf(&b, "  config: %s\n", presence(d.HasConfig))
		fmt.Fprintf(&b, "  state: %s\n", presence(d.HasState))
		fmt.Fprintf(&b, "  caregiver link: %s\n", d.CaregiverLink)
		if len(d.Patients) == 0 {
			b.WriteString("  patients: none\n")
		}
		for _, p := range d.Patients {
			fmt.Fprintf(&b, "  patient %s [%s]\n", p.PatientID, strings.Join(p.Sources, ", "))
			fmt.Fprintf(&b, "    medications: %d\n", p.Medications)
			fmt.Fprintf(&b, "    recent events (%dh): %d\n", f.RecentWindowHours, p.RecentEvents)
		}
		b.WriteString("\n")
	}

	if len(f.Drift) == 0 {
		b.WriteString("pending drift: none\n")
	} else {
		b.WriteString("pending drift\n")
		for _, d := range f.Drift {
			status := d.Status
			if d.Action != "" {
				status += " " + d.Action
			}
			fmt.Fprintf(&b, "  %s %s: %s (%s)\n", d.Category, d.Key, status, d.Reason)
		}
	}
	b.WriteString("\n")

	if len(f.Errors) == 0 {
		b.WriteString("errors: none\n")
	} else {
		b.WriteString("errors\n")
		for _, e := range f.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
