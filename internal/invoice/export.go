package invoice

import (
	"fmt"
	"time"

	"finops-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

// GET /api/invoices/export
// Streams the filtered invoice list as an XLSX workbook. Accepts the same
// query filters as the list endpoint.
func ExportInvoicesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq, err := filteredQuery(c)
		if err != nil {
			return err
		}

		var invoices []models.Invoice
		if err := dbq.Preload("Vendor").Preload("Pod").
			Order("invoices.due_date asc, invoices.id asc").
			Find(&invoices).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load invoices")
		}

		f := excelize.NewFile()
		defer f.Close()

		sheet := "Invoices"
		f.SetSheetName("Sheet1", sheet)

		headers := []string{"ID", "Vendor", "Pod", "Invoice No", "Amount", "Invoice Date", "Due Date", "Status", "Reminder"}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue(sheet, cell, h)
		}

		for row, inv := range invoices {
			values := []interface{}{
				inv.ID,
				inv.Vendor.Name,
				inv.Pod.Name,
				inv.InvoiceNumber,
				inv.Amount,
				inv.InvoiceDate.Format("2006-01-02"),
				inv.DueDate.Format("2006-01-02"),
				string(inv.Status),
				string(inv.Reminder),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				f.SetCellValue(sheet, cell, v)
			}
		}

		buf, err := f.WriteToBuffer()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not build export")
		}

		filename := fmt.Sprintf("invoices-%s.xlsx", time.Now().Format("2006-01-02"))
		c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		return c.Send(buf.Bytes())
	}
}
