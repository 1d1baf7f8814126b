package xlsxGenerator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KotFed0t/paper_trading_web/internal/model"
	"github.com/KotFed0t/paper_trading_web/utils"
	"github.com/xuri/excelize/v2"
)

const sheetName = "History"

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

// Generate renders the trade ledger into a single-sheet xlsx file.
func (g *XLSXGenerator) Generate(ctx context.Context, trades []model.Trade) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	if _, err := f.NewSheet(sheetName); err != nil {
		slog.Error("got error while creating NewSheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	if err := g.fillSheet(f, trades); err != nil {
		return nil, "", err
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XLSXGenerator) fillSheet(f *excelize.File, trades []model.Trade) error {
	headerStyleID, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{"#cfe2f3"},
		},
	})
	if err != nil {
		return err
	}

	headers := []string{"Date", "Symbol", "Name", "Side", "Shares", "Price", "Total"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(sheetName, cell, header)
	}

	if err := f.SetCellStyle(sheetName, "A1", "G1", headerStyleID); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, trade := range trades {
		row := i + 2

		side := "buy"
		shares := trade.Shares
		if shares < 0 {
			side = "sell"
			shares = -shares
		}

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), trade.CreatedAt.Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), trade.Symbol)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), trade.Name)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), side)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), shares)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), trade.Price.String())
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), trade.Total().String())
	}

	return nil
}
