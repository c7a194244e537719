package app

import (
	"bufio"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// cp1252Extras are the non-Latin-1 runes the core fonts can draw.
var cp1252Extras = map[rune]bool{
	'‘': true, '’': true, '“': true, '”': true, '–': true, '—': true,
	'…': true, '•': true, '€': true, '™': true,
}

// pdfSafe replaces runes the core fonts cannot draw. Japanese titles end up
// as question marks; the Markdown report keeps them.
func pdfSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x100 || cp1252Extras[r] {
			return r
		}
		return '?'
	}, s)
}

// writeSimplePDF renders the Markdown report as a minimal PDF: headings in
// bold, table rows and list items as plain lines.
func writeSimplePDF(markdown string, outPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "", 10)
	pdf.AddPage()

	scanner := bufio.NewScanner(strings.NewReader(markdown))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		s := strings.TrimSpace(scanner.Text())
		if s == "" {
			pdf.Ln(4)
			continue
		}
		if strings.HasPrefix(s, "#") {
			i := 0
			for i < len(s) && s[i] == '#' {
				i++
			}
			text := strings.TrimSpace(s[i:])
			if text == "" {
				continue
			}
			size := 14.0
			if i >= 2 {
				size = 12.0
			}
			pdf.SetFont("Helvetica", "B", size)
			pdf.CellFormat(0, 8, tr(pdfSafe(text)), "", 1, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 10)
			continue
		}
		// Table separator rows carry no text.
		if strings.HasPrefix(s, "|") && strings.Trim(s, "|-: ") == "" {
			continue
		}
		if strings.HasPrefix(s, "|") {
			s = strings.Join(splitRow(s), "   ")
		}
		pdf.MultiCell(0, 5, tr(pdfSafe(s)), "", "L", false)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return pdf.OutputFileAndClose(outPath)
}

func splitRow(row string) []string {
	cells := strings.Split(strings.Trim(row, "|"), "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}
