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

package generic

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"poslogproc/aggregate"
	"poslogproc/record"
	"poslogproc/xmlkit"
)

// ParseDocument harvests transaction data from one parsed XML
// document. Three document shapes are recognized and may coexist:
// a Session element holding LPE fragments (the terminal's own trace),
// a biztalk_1 envelope with the flat sales-transaction schema, and
// Customer elements carrying loyalty attributes.
func ParseDocument(root *xmlkit.Element, tm *aggregate.TransactionMap, sourceFile string) {
	parseSessionBranch(root, tm)
	parseBiztalkBranch(root, tm)
	parseCustomerBranch(root, tm)
}

func parseSessionBranch(root *xmlkit.Element, tm *aggregate.TransactionMap) {
	session := root.Find("Session")
	if session == nil {
		return
	}
	currentTicket := ""
	for _, lpe := range session.ChildrenByName("LPE") {
		method := lpe.Attr("Method")
		xmlStr := strings.TrimSpace(lpe.InnerText())
		xmlStr = strings.TrimSpace(reXMLDecl.ReplaceAllString(xmlStr, ""))
		subroot, err := xmlkit.Parse(xmlStr)
		if err == nil {
			currentTicket = tm.MergeXML(aggregate.MethodOf(method), subroot, currentTicket)

		} else {
			log.Debug().Str("method", method).Msg("LPE payload is not parseable XML, text harvest only")
		}
		// the raw payload additionally goes through the text-pattern
		// harvest - it catches attributes the method handler does not
		tm.MergeText(xmlStr)
	}
}

func parseBiztalkBranch(root *xmlkit.Element, tm *aggregate.TransactionMap) {
	biztalk := root.Find("biztalk_1")
	if biztalk == nil {
		return
	}
	var ast *xmlkit.Element
	for _, body := range biztalk.ChildrenByName("body") {
		if children := body.ChildrenByName("ActiveStore_SalesTransaction_1.70"); len(children) > 0 {
			ast = children[0]
			break
		}
	}
	if ast == nil {
		return
	}
	txNumber := ast.FindText("TransactionNumber", "")
	if txNumber == "" {
		return
	}
	tm.Init(txNumber)
	rec := tm.Get(txNumber)
	if v := ast.FindText("StoreID", ""); v != "" {
		rec.StoreID = v
	}
	if v := ast.FindText("CashierID", ""); v != "" {
		rec.CashierID = v
	}
	aggregate.ScanTimestamps(ast, rec)
	rec.SettleTime()

	if totalEl := ast.Find("TotalAmount"); totalEl != nil {
		txt := strings.TrimSpace(totalEl.Text)
		if txt == "" {
			rec.SetExplicitTotal(0)

		} else if v, err := strconv.ParseFloat(txt, 64); err == nil {
			rec.SetExplicitTotal(v)
		}
	}

	for _, tdet := range ast.FindAll("TransactionDetail") {
		for _, group := range tdet.ChildrenByName("TransactionDetailGroup") {
			for _, line := range group.ChildrenByName("TransactionDetailLine") {
				if promoID := line.FindText("PromotionID", ""); promoID != "" {
					rec.AddPromotion(promoID)
				}
				itemID := line.FindText("MarkdownItemID", "")
				depCode := line.FindText("MarkdownDepartmentID", "")
				if itemID == "" || depCode == "" {
					continue
				}
				qtyText := line.FindText("TriggeredQty", "")
				if qtyText == "" {
					qtyText = line.FindText("AllocatedQty", "")
				}
				rec.AppendItem(&aggregate.Item{
					PLU:     itemID,
					Name:    "(markdown item)",
					DepCode: depCode,
					Qty:     defensiveFloat(qtyText, 1),
					Amount:  defensiveFloat(line.FindText("Amount", ""), 0),
				})
			}
		}
	}
	for _, psum := range ast.FindAll("PromotionSummary") {
		if id := psum.FindText("RedeemedPromotionId", ""); id != "" {
			rec.AddPromotion(id)
		}
	}
	aggregate.ParseLoyalty(ast, &rec.Loyalty)
}

func parseCustomerBranch(root *xmlkit.Element, tm *aggregate.TransactionMap) {
	var customers []*xmlkit.Element
	if strings.HasSuffix(root.Name, "Customer") {
		customers = []*xmlkit.Element{root}

	} else {
		customers = root.FindAll("Customer")
	}
	for _, cust := range customers {
		txid := cust.Attr("TransID")
		if txid == "" {
			continue
		}
		tm.Init(txid)
		rec := tm.Get(txid)
		if cardID := cust.Attr("CardID"); cardID != "" && rec.CardID == "" {
			rec.CardID = cardID
		}
		if total := cust.Attr("TicketTotal"); total != "" {
			if v, err := strconv.ParseFloat(total, 64); err == nil {
				rec.SetExplicitTotal(v)
			}
		}
		aggregate.ScanTimestamps(cust, rec)
		rec.SettleTime()
		// the serialized subtree runs through the text harvest, which
		// picks up nested member/phone attributes the same way the
		// line driver would
		tm.MergeText(cust.String())
		aggregate.ParseLoyalty(cust, &rec.Loyalty)
	}
}

// ParseBigXML processes a whole-file XML document: first a strict
// single-root parse; when the file concatenates several documents
// (export logs appended across restarts), the chunk scanner splits it
// and every parseable chunk is processed independently. Each document
// yields one row whose time is the earliest transaction time newly
// discovered in it.
func ParseBigXML(data []byte, tm *aggregate.TransactionMap, sourceFile string, emit func(record.Row)) {
	text := strings.TrimPrefix(string(data), "\ufeff")
	text = strings.TrimSpace(xmlkit.Sanitize(text))

	before := idSet(tm)
	if root, err := xmlkit.Parse(text); err == nil {
		ParseDocument(root, tm, sourceFile)
		emit(record.Row{
			RawLine:    text,
			Time:       earliestNewTxTime(tm, before),
			TransIDs:   tm.IDs(),
			SourceFile: sourceFile,
		})
		return
	} else {
		log.Debug().Err(err).Str("sourceFile", sourceFile).
			Msg("single-root parse failed, falling back to chunk scanning")
	}

	for _, chunk := range xmlkit.SplitConcatenated(text) {
		beforeChunk := idSet(tm)
		root, err := xmlkit.Parse(chunk)
		if err != nil {
			log.Warn().Err(err).Str("sourceFile", sourceFile).
				Int("chunkSize", len(chunk)).Msg("skipping unparseable XML chunk")
			continue
		}
		ParseDocument(root, tm, sourceFile)
		emit(record.Row{
			RawLine:    chunk,
			Time:       earliestNewTxTime(tm, beforeChunk),
			TransIDs:   tm.IDs(),
			SourceFile: sourceFile,
		})
	}
}

func idSet(tm *aggregate.TransactionMap) map[string]bool {
	ans := make(map[string]bool)
	for _, id := range tm.IDs() {
		ans[id] = true
	}
	return ans
}

// earliestNewTxTime finds the earliest transaction time among
// transactions created after the `before` snapshot was taken.
func earliestNewTxTime(tm *aggregate.TransactionMap, before map[string]bool) time.Time {
	var earliest time.Time
	for _, id := range tm.IDs() {
		if before[id] {
			continue
		}
		t := tm.Get(id).TransactionTime
		if t.IsZero() {
			continue
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	return earliest
}

func defensiveFloat(v string, dflt float64) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return dflt
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return dflt
	}
	return f
}
