package report

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	DoctorName   = "Docteur Happy"
	HospitalName = "Hôpital Laquintinie"

	shareBaseURL = "https://wa.me/"
)

// ShareText is the plain-text summary handed to the messaging share link.
func ShareText(r *AuditReport) string {
	return fmt.Sprintf("SYNTHESE AUDIT DOULIA\n\n%s - %s\n\nFONCTIONNALITE : %s\nGAIN ESTIMÉ : %s",
		DoctorName, HospitalName, r.PriorityFeature, r.TimeGain)
}

// ShareURL is a WhatsApp link prefilled with ShareText.
func ShareURL(r *AuditReport) string {
	// url.QueryEscape encodes spaces as '+', which wa.me renders literally.
	text := strings.ReplaceAll(url.QueryEscape(ShareText(r)), "+", "%20")
	return shareBaseURL + "?text=" + text
}

// Markdown renders the report for terminals and plain-text channels.
func Markdown(r *AuditReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Synthèse d'audit DOULIA\n\n_%s - %s_\n\n", DoctorName, HospitalName)

	b.WriteString("## Analyse des flux actuels\n\n")
	b.WriteString(r.DailyLife + "\n\n")

	b.WriteString("## Points de friction identifiés\n\n")
	for _, p := range r.PainPoints {
		b.WriteString("- " + p + "\n")
	}
	b.WriteString("\n")

	if r.PersonalChallenges != "" {
		b.WriteString("## Défis personnels\n\n" + r.PersonalChallenges + "\n\n")
	}

	b.WriteString("## Fonctionnalité prioritaire\n\n")
	b.WriteString("**" + r.PriorityFeature + "**\n\n")

	rows := [][2]string{
		{"Gain de temps estimé", r.TimeGain},
		{"Impact sur le service", r.ServiceImpact},
		{"Complexité technique", string(r.TechnicalComplexity)},
		{"Approche recommandée", r.RecommendedModel},
		{"Budget", r.BudgetNote},
	}
	b.WriteString("| Indicateur | Valeur |\n| --- | --- |\n")
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		fmt.Fprintf(&b, "| %s | %s |\n", row[0], strings.ReplaceAll(row[1], "|", "\\|"))
	}
	return b.String()
}
