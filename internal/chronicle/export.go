package chronicle

import (
	"context"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// ExportPDF writes the recorded turns of a game to a PDF at path.
func (s *Store) ExportPDF(ctx context.Context, gameID, title, path string) error {
	turns, err := s.Turns(ctx, gameID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return fmt.Errorf("export %s: %w", gameID, ErrNoTurns)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 10, tr(title), "", "C", false)
	pdf.Ln(6)

	for _, t := range turns {
		if choice := strings.TrimSpace(t.Choice); choice != "" {
			pdf.SetFont("Helvetica", "I", 11)
			pdf.SetTextColor(90, 90, 90)
			pdf.MultiCell(0, 6, tr("> "+choice), "", "L", false)
			pdf.Ln(2)
		}
		pdf.SetFont("Helvetica", "", 11)
		pdf.SetTextColor(0, 0, 0)
		pdf.MultiCell(0, 6, tr(t.Description), "", "L", false)
		pdf.Ln(4)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
