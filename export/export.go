// Copyright 2025 Petr Havelka <petr.havelka.dev@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package export writes aggregated transactions into an XLSX workbook
// with a Transactions sheet and an Items sheet.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"poslogproc/aggregate"
)

const (
	sheetTransactions = "Transactions"
	sheetItems        = "Items"
)

var transactionHeader = []any{
	"TransID", "StoreID", "CashierID", "CardID", "FirstName", "LastName",
	"PhoneNumbers", "Promotions", "ItemCount", "TotalAmount", "TransactionTime",
}

var itemHeader = []any{
	"TransID", "PLU", "Name", "DepCode", "Quantity", "Price", "Amount",
}

// WriteWorkbook writes the given transactions to an XLSX file at path.
func WriteWorkbook(path string, txs []*aggregate.Transaction) error {
	wb := excelize.NewFile()
	defer wb.Close()

	wb.SetSheetName("Sheet1", sheetTransactions)
	if _, err := wb.NewSheet(sheetItems); err != nil {
		return fmt.Errorf("failed to create items sheet: %w", err)
	}

	if err := writeRow(wb, sheetTransactions, 1, transactionHeader); err != nil {
		return err
	}
	if err := writeRow(wb, sheetItems, 1, itemHeader); err != nil {
		return err
	}

	itemRow := 2
	for i, tx := range txs {
		txTime := ""
		if !tx.TransactionTime.IsZero() {
			txTime = tx.TransactionTime.Format(time.RFC3339)
		}
		err := writeRow(wb, sheetTransactions, i+2, []any{
			tx.TransID, tx.StoreID, tx.CashierID, tx.CardID,
			tx.FirstName, tx.LastName,
			strings.Join(tx.Phones(), ","), strings.Join(tx.Promotions(), ","),
			len(tx.Items), tx.Total(), txTime,
		})
		if err != nil {
			return err
		}
		for _, it := range tx.Items {
			err := writeRow(wb, sheetItems, itemRow, []any{
				tx.TransID, it.PLU, it.Name, it.DepCode, it.Qty, it.Price, it.Amount,
			})
			if err != nil {
				return err
			}
			itemRow++
		}
	}

	if err := wb.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func writeRow(wb *excelize.File, sheet string, row int, values []any) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to resolve cell coordinates: %w", err)
		}
		if err := wb.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("failed to write cell %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
