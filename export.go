package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
)

// exportJournalHandler writes the open journal as an xlsx download, one row
// per order item with its sourcing and issuance state.
func exportJournalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		orders, err := models.GetOpenOrders(c.Request.Context())
		if err != nil {
			config.LogError(logger, "server", "exportJournalHandler", "load open orders", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
			return
		}

		f := excelize.NewFile()
		_, err = f.NewSheet("Sheet1")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
			return
		}

		// Add headers
		f.SetCellValue("Sheet1", "A1", "Order")
		f.SetCellValue("Sheet1", "B1", "DueDate")
		f.SetCellValue("Sheet1", "C1", "Status")
		f.SetCellValue("Sheet1", "D1", "Operator")
		f.SetCellValue("Sheet1", "E1", "Item")
		f.SetCellValue("Sheet1", "F1", "Coating")
		f.SetCellValue("Sheet1", "G1", "Color")
		f.SetCellValue("Sheet1", "H1", "Qty")
		f.SetCellValue("Sheet1", "I1", "Unit")
		f.SetCellValue("Sheet1", "J1", "Origin")
		f.SetCellValue("Sheet1", "K1", "Writeoff")
		f.SetCellValue("Sheet1", "L1", "Ready")
		f.SetCellValue("Sheet1", "M1", "Issued")

		// Add data
		row := 2
		for _, order := range orders {
			for _, item := range order.Items {
				f.SetCellValue("Sheet1", "A"+fmt.Sprint(row), order.Uuid.String())
				f.SetCellValue("Sheet1", "B"+fmt.Sprint(row), order.DueDate.Format("2006-01-02"))
				f.SetCellValue("Sheet1", "C"+fmt.Sprint(row), order.Status)
				f.SetCellValue("Sheet1", "D"+fmt.Sprint(row), order.Operator)
				f.SetCellValue("Sheet1", "E"+fmt.Sprint(row), item.Title)
				f.SetCellValue("Sheet1", "F"+fmt.Sprint(row), item.Coating)
				f.SetCellValue("Sheet1", "G"+fmt.Sprint(row), item.Color)
				f.SetCellValue("Sheet1", "H"+fmt.Sprint(row), item.Qty.String())
				f.SetCellValue("Sheet1", "I"+fmt.Sprint(row), item.Unit)
				f.SetCellValue("Sheet1", "J"+fmt.Sprint(row), string(item.Inventory.Origin))
				f.SetCellValue("Sheet1", "K"+fmt.Sprint(row), item.Inventory.WriteoffAmount.String())
				f.SetCellValue("Sheet1", "L"+fmt.Sprint(row), formatDate(item.Inventory.RdyDate))
				f.SetCellValue("Sheet1", "M"+fmt.Sprint(row), formatDate(item.Inventory.IsuDate))
				row++
			}
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=journal.xlsx")
		if err := f.Write(c.Writer); err != nil {
			config.LogError(logger, "server", "exportJournalHandler", "write xlsx", nil, err)
		}
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
