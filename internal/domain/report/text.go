package report

import (
	"bufio"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// WriteText writes doc as a plain-text report. Section headings, the patient
// name and significant findings are upper-cased, mirroring the printed layout.
func WriteText(w io.Writer, doc Document) error {
	upper := cases.Upper(language.English)
	bw := bufio.NewWriter(w)
	line := func(s string) { bw.WriteString(s + "\n") }
	rule := strings.Repeat("=", 72)

	line(doc.Doctor)
	line(doc.Specialty)
	line("Report date: " + doc.ReportDate)
	line(rule)
	line(upper.String(doc.Title))
	line(rule)
	line("Patient: " + upper.String(doc.Patient))
	line("Date of birth: " + doc.BirthDate)
	line("Clinical indication: " + doc.Indication)
	line("")
	line("Equipment: " + doc.Equipment + "  Probe: " + doc.Probe + "  Angle: " + doc.Angle)
	line("Stenosis analysis: " + doc.Method)
	line("")
	line(upper.String("Segmental analysis"))
	for _, row := range doc.Rows {
		line("")
		line(row.Label)
		writeCell(line, upper, "  Right: ", row.Right)
		writeCell(line, upper, "  Left:  ", row.Left)
	}
	if doc.GeneralNotes != "" {
		line("")
		line(upper.String("General notes"))
		line(doc.GeneralNotes)
	}
	line("")
	line(upper.String("Diagnostic conclusions"))
	line(doc.Conclusions)
	line("")
	line("Signature of the examining physician: " + doc.Signature)
	line("")
	for _, f := range doc.Footer {
		line(f)
	}
	return bw.Flush()
}

func writeCell(line func(string), upper cases.Caser, prefix string, c Cell) {
	lines := c.Lines()
	if c.Style == StyleSignificant {
		lines[0] = upper.String(lines[0])
	}
	pad := strings.Repeat(" ", len(prefix))
	for i, l := range lines {
		if i == 0 {
			line(prefix + l)
			continue
		}
		line(pad + l)
	}
}
