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

package aggregate

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"poslogproc/timestamp"
	"poslogproc/xmlkit"
)

// dateAttrNames is the closed set of attribute (and tag) names the
// recursive timestamp scan recognizes.
var dateAttrNames = map[string]bool{
	"StartDateTime":       true,
	"EndDateTime":         true,
	"BusinessDate":        true,
	"ServerDate":          true,
	"PeriodBusinessDate":  true,
	"MemberEffectiveDate": true,
	"ExpirationDate":      true,
	"StartDate":           true,
	"EndDate":             true,
}

type mergeOpts struct {
	// vendor switches on the vendor protocol behavior: content-hash
	// fragment dedup handled by the caller, POS-sequence aware item
	// identity, raw attribute audit capture and promotion details
	// harvest. The generic document driver instead runs the recursive
	// timestamp scan after each fragment.
	vendor bool
}

type xmlHandler func(tm *TransactionMap, elm *xmlkit.Element, currentTx string, opts mergeOpts) string

var xmlDispatch = map[Method]xmlHandler{
	MethodSetParam:               handleSetParam,
	MethodInit:                   handleInit,
	MethodAddItem:                handleAddItem,
	MethodAddTender:              handleAddTender,
	MethodAddDocument:            handleAddDocument,
	MethodAddDocumentResponse:    handleAddDocument,
	MethodGetTriggeredPromotions: handleTriggeredPromotions,
	MethodQuery:                  handleQuery,
	MethodQueryResponse:          handleQueryResponse,
	MethodAddMmbrCard:            handleMemberUpdate,
	MethodAddMmbrInfo:            handleMemberUpdate,
	MethodGetLoyaltySummary:      handleLoyaltySummary,
	MethodGetSaversSummary:       handleSaversSummary,
}

// MergeXML dispatches one XML fragment through the method handler
// table and returns the transaction the processing context is now
// attached to (the "current ticket" threading). After the dispatched
// handler, the fragment is scanned recursively for timestamps and the
// generic attribute harvest runs against the affected transaction.
func (tm *TransactionMap) MergeXML(method Method, elm *xmlkit.Element, currentTx string) string {
	return tm.mergeXML(method, elm, currentTx, mergeOpts{})
}

// MergeXMLVendor is the vendor protocol variant of MergeXML: fragments
// whose serialized content was already seen within the current
// transaction are skipped entirely, item identity includes the POS
// sequence, and every processed fragment leaves a raw attribute audit
// trail on the transaction.
func (tm *TransactionMap) MergeXMLVendor(method Method, elm *xmlkit.Element, currentTx string) string {
	if currentTx != "" {
		if tx := tm.Get(currentTx); tx != nil {
			sum := sha256.Sum256([]byte(elm.String()))
			if tx.MarkFragment(hex.EncodeToString(sum[:])) {
				log.Debug().
					Str("transId", currentTx).
					Str("method", method.String()).
					Msg("skipping duplicate fragment")
				return currentTx
			}
		}
	}
	return tm.mergeXML(method, elm, currentTx, mergeOpts{vendor: true})
}

func (tm *TransactionMap) mergeXML(method Method, elm *xmlkit.Element, currentTx string, opts mergeOpts) string {
	handler, ok := xmlDispatch[method]
	if !ok {
		handler = handleUnknown
	}
	next := handler(tm, elm, currentTx, opts)
	tx := tm.Get(next)
	if tx == nil {
		return next
	}
	mergeExtra(elm, tx)
	if opts.vendor {
		tx.RawFragmentAttrs = append(tx.RawFragmentAttrs, ExtractAttributes(elm))
		if method != MethodSetParam {
			harvestPromotionDetails(elm, tx)
		}

	} else {
		ScanTimestamps(elm, tx)
		tx.SettleTime()
	}
	return next
}

func handleSetParam(tm *TransactionMap, elm *xmlkit.Element, currentTx string, opts mergeOpts) string {
	sp := elm.Find("SystemParameters")
	if sp == nil {
		return currentTx
	}
	ticket := sp.Attr("TicketNumber")
	if ticket == "" {
		return currentTx
	}
	tm.Init(ticket)
	rec := tm.Get(ticket)
	if v := sp.Attr("StoreID"); v != "" {
		rec.StoreID = v
	}
	if v := sp.Attr("CashierID"); v != "" {
		rec.CashierID = v
	}
	if opts.vendor {
		rec.OtherFragments = append(rec.OtherFragments, &Fragment{
			Method: MethodSetParam.String(),
			Raw:    sp.String(),
		})
	}
	return ticket
}

func handleInit(tm *TransactionMap, elm *xmlkit.Element, currentTx string, opts mergeOpts) string {
	rec := tm.Get(currentTx)
	if rec == nil {
		return currentTx
	}
	initInfo := elm.Find("InitInfo")
	if initInfo == nil {
		return currentTx
	}
	rec.InitInfo = initInfo.AttrMap()
	if devices := initInfo.Find("ActiveDevices"); devices != nil {
		for _, dev := range devices.ChildrenByName("ActiveDevice") {
			rec.ActiveDevices = append(rec.ActiveDevices, dev.AttrMap())
		}
	}
	return currentTx
}

func handleAddItem(tm *TransactionMap, elm *xmlkit.Element, currentTx string, opts mergeOpts) string {
	rec := tm.Get(currentTx)
	if rec == nil {
		return currentTx
	}
	itemInfo := elm.Find("ItemInfo")
	if itemInfo == nil {
		return currentTx
	}
	item := &Item{
		PLU:             itemInfo.Attr("PluCode"),
		Name:            strings.TrimSpace(itemInfo.Attr("Name")),
		DepCode:         itemInfo.Attr("DepCode"),
		PosSequence:     itemInfo.Attr("PosSequence"),
		Qty:             parseFloat(itemInfo.Attr("Quantity"), 1),
		Amount:          parseFloat(itemInfo.Attr("Amount"), 0),
		QuantityInPrice: parseFloat(itemInfo.Attr("QuantityInPrice"), 1),
		Raw:             itemInfo.String(),
	}
	item.Price = resolveItemPrice(itemInfo)
	var key string
	if opts.vendor {
		key = VendorItemKey(item.PLU, item.PosSequence, item.DepCode)

	} else {
		key = GenericItemKey(item.PLU, item.DepCode)
	}
	rec.MergeItem(key, item)
	return currentTx
}

// resolveItemPrice prefers the price stated in a nested Prices/Price
// element over the top-level Price attribute.
func resolveItemPrice(itemInfo *xmlkit.Element) float64 {
	base := parseFloat(itemInfo.Attr("Price"), 0)
	prices := itemInfo.Find("Prices")
	if prices == nil {
		return base
	}
	sub := prices.ChildrenByName("Price")
	if len(sub) == 0 {
		return base
	}
	return parseFloat(sub[0].AttrDefault("Price", "0"), base)
}

func handleAddTender(tm *TransactionMap, elm *xmlkit.Element, currentTx string, opts mergeOpts) string {
	rec := tm.Get(currentTx)
	if rec == nil {
		return currentTx
	}
	tenderEl := elm.Find("TenderInfo")
	if tenderEl == nil {
		return currentTx
	}
	rec.Tenders = append(rec.Tenders, &Tender{
		TenderNo:   tenderEl.Attr("TenderNo"),
		Amount:     parseFloat(tenderEl.Attr("Amount"), 0),
		TenderType: tenderEl.Attr("TenderType"),
	})
	return currentTx
}

func handleAddDocument(tm *TransactionMap, elm *xmlkit.Element, currentTx string, opts mergeOpts) string {
	rec := tm.Get(currentTx)
	if rec == nil {
		return currentTx
	}
	for _, container := range []string{"DocumentInfo", "Documents"} {
		parent := elm.Find(container)
		if parent == nil {
			continue
		}
		for _, d := range parent.ChildrenByName("Document") {
			rec.Documents = append(rec.Documents, &Document{
				DocumentType:      d.Attr("DocumentType"),
				Barcode:           d.Attr("Barcode"),
				ConfirmationLevel: d.Attr("ConfirmationLevel"),
				PromotionID:       d.Attr("PromotionId"),
				Description:       d.Attr("PromotionDescription"),
				Raw:               d.String(),
			})
		}
	}
	return currentTx
}

func handleTriggeredPromotions(tm *TransactionMap, elm *xmlkit.Element, currentTx string, opts mergeOpts) string {
	rec := tm.Get(currentTx)
	if rec == nil {
		return currentTx
	}
	for _, dl := range elm.FindAll("DiscountLine") {
		if pn := dl.Attr("PromNumber"); pn != "" {
			rec.AddPromotion(pn)
		}
		rec.PromoItems = append(rec.PromoItems, dl.AttrMap())
	}
	return currentTx
}

func handleQuery(tm *TransactionMap, elm *xmlkit.Element, currentTx string, opts mergeOpts) string {
	rec := tm.Get(currentTx)
	if rec == nil {
		return currentTx
	}
	if q := elm.Find("PromQuery"); q != nil {
		rec.Queries = append(rec.Queries, q.String())
	}
	return currentTx
}

func handleQueryResponse(tm *TransactionMap, elm *xmlkit.Element, currentTx string, opts mergeOpts) string {
	if gdata := elm.Find("GeneralData"); gdata != nil {
		if tnum := gdata.Attr("TicketNumber"); tnum != "" {
			tm.Init(tnum)
			currentTx = tnum
		}
	}
	rec := tm.Get(currentTx)
	if rec == nil {
		return currentTx
	}
	if titems := elm.Find("TicketItems"); titems != nil {
		for _, iel := range titems.ChildrenByName("Item") {
			qty := parseFloat(iel.Attr("Quantity"), 1)
			price := parseFloat(iel.Attr("Price"), 0)
			reward := parseFloat(iel.Attr("RewardAmount"), 0)
			if reward == 0 {
				reward = price * qty
			}
			rec.MergeItemByPluDep(&Item{
				PLU:     iel.Attr("PluCode"),
				DepCode: iel.Attr("DepCode"),
				Qty:     qty,
				Price:   price,
				Amount:  reward,
				Raw:     iel.String(),
			})
		}
	}
	ParseLoyalty(elm, &rec.Loyalty)
	if loyalty := elm.Find("LoyaltyInfo"); loyalty != nil {
		rec.LoyaltySummary = loyalty.String()
	}
	return currentTx
}

func handleMemberUpdate(tm *TransactionMap, elm *xmlkit.Element, currentTx string, opts mergeOpts) string {
	rec := tm.Get(currentTx)
	if rec == nil {
		return currentTx
	}
	loyalty := elm.Find("LoyaltyInfo")
	if loyalty == nil {
		appendOtherFragment(rec, elm)
		return currentTx
	}
	ParseLoyalty(loyalty, &rec.Loyalty)
	rec.LoyaltySummary = loyalty.String()
	return currentTx
}

func handleLoyaltySummary(tm *TransactionMap, elm *xmlkit.Element, currentTx string, opts mergeOpts) string {
	rec := tm.Get(currentTx)
	if rec == nil {
		return currentTx
	}
	if loyalty := elm.Find("LoyaltyInfo"); loyalty != nil {
		ParseLoyalty(loyalty, &rec.Loyalty)
		rec.LoyaltySummary = loyalty.String()
	}
	return currentTx
}

func handleSaversSummary(tm *TransactionMap, elm *xmlkit.Element, currentTx string, opts mergeOpts) string {
	rec := tm.Get(currentTx)
	if rec == nil {
		return currentTx
	}
	rec.SaversSummary = elm.String()
	return currentTx
}

func handleUnknown(tm *TransactionMap, elm *xmlkit.Element, currentTx string, opts mergeOpts) string {
	rec := tm.Get(currentTx)
	if rec == nil {
		log.Debug().
			Str("method", elm.Attr("Method")).
			Msg("unhandled fragment outside any transaction context")
		return currentTx
	}
	appendOtherFragment(rec, elm)
	return currentTx
}

func appendOtherFragment(rec *Transaction, elm *xmlkit.Element) {
	method := elm.Attr("Method")
	if method == "" {
		method = MethodUnknown.String()
	}
	rec.OtherFragments = append(rec.OtherFragments, &Fragment{
		Method: method,
		Raw:    elm.String(),
	})
}

func harvestPromotionDetails(elm *xmlkit.Element, rec *Transaction) {
	pd := elm.Find("PromotionDetails")
	if pd == nil {
		return
	}
	detail := &PromotionDetail{Attrs: pd.AttrMap()}
	if segs := pd.Find("Segments"); segs != nil {
		for _, child := range segs.Children {
			detail.Segments = append(detail.Segments, child.String())
		}
	}
	rec.PromotionDetails = append(rec.PromotionDetails, detail)
	mergeExtra(pd, rec)
}

// ScanTimestamps walks the fragment and collects every attribute or
// tag text whose name belongs to the known date/time set. Discovered
// values become transaction-time candidates.
func ScanTimestamps(elm *xmlkit.Element, tx *Transaction) {
	for _, a := range elm.Attrs {
		if dateAttrNames[a.Name] {
			tx.AddTimestamp(timestamp.Parse(a.Value))
		}
	}
	if dateAttrNames[elm.Name] {
		if v := strings.TrimSpace(elm.Text); v != "" {
			tx.AddTimestamp(timestamp.Parse(v))
		}
	}
	for _, ch := range elm.Children {
		ScanTimestamps(ch, tx)
	}
}

// mergeExtra harvests customer-identifying attributes anywhere in the
// fragment: card ID and names follow first-non-empty semantics (names
// take the last occurrence within the fragment), phone numbers are a
// set.
func mergeExtra(elm *xmlkit.Element, tx *Transaction) {
	var card, first, last string
	var walk func(node *xmlkit.Element)
	walk = func(node *xmlkit.Element) {
		for _, a := range node.Attrs {
			switch a.Name {
			case "CardID":
				if card == "" {
					card = a.Value
				}
			case "MobilePhoneNumber", "HomePhone":
				tx.AddPhone(a.Value)
			case "FirstName":
				first = a.Value
			case "LastName":
				last = a.Value
			}
		}
		for _, ch := range node.Children {
			walk(ch)
		}
	}
	walk(elm)
	setIfEmpty(&tx.CardID, card)
	setIfEmpty(&tx.FirstName, first)
	setIfEmpty(&tx.LastName, last)
}

// ExtractAttributes collects every attributed element in the fragment
// into a tag -> attribute-maps index (the raw audit form the vendor
// driver retains).
func ExtractAttributes(elm *xmlkit.Element) map[string][]map[string]string {
	ans := make(map[string][]map[string]string)
	var walk func(node *xmlkit.Element)
	walk = func(node *xmlkit.Element) {
		if len(node.Attrs) > 0 {
			ans[node.Name] = append(ans[node.Name], node.AttrMap())
		}
		for _, ch := range node.Children {
			walk(ch)
		}
	}
	walk(elm)
	return ans
}

func ParseLoyalty(root *xmlkit.Element, li *LoyaltyInfo) {
	for _, b := range root.FindAll("Balance") {
		li.Balances = append(li.Balances, &Balance{
			Type:           b.Attr("Type"),
			ID:             b.Attr("ID"),
			Name:           b.Attr("Name"),
			OpenBalance:    b.Attr("OpenBalance"),
			Earnings:       b.Attr("Earnings"),
			Redemptions:    b.Attr("Redemptions"),
			CurrentBalance: b.Attr("CurrentBalance"),
		})
	}
	for _, a := range root.FindAll("Acc") {
		li.Accounts = append(li.Accounts, &Account{
			ID:            a.Attr("ID"),
			EarnValue:     a.Attr("EarnValue"),
			OpenBalance:   a.Attr("OpenBalance"),
			EndingBalance: a.Attr("EndingBalance"),
			Value:         a.Attr("Value"),
		})
	}
	for _, m := range root.FindAll("Member") {
		member := &Member{
			RowID:            uuid.New().String(),
			LastName:         m.Attr("LastName"),
			FirstName:        m.Attr("FirstName"),
			Status:           m.Attr("Status"),
			MemberExternalID: m.Attr("MemberExternalId"),
		}
		for _, s := range m.FindAll("Segment") {
			member.Segments = append(member.Segments, s.AttrMap())
		}
		for _, c := range m.FindAll("Card") {
			member.Cards = append(member.Cards, c.AttrMap())
		}
		for _, s := range m.FindAll("Store") {
			member.Stores = append(member.Stores, s.AttrMap())
		}
		li.Members = append(li.Members, member)
	}
	var segments []*xmlkit.Element
	for _, segsEl := range root.FindAll("Segments") {
		segments = append(segments, segsEl.ChildrenByName("Segment")...)
	}
	if len(segments) == 0 {
		segments = root.FindAll("Seg")
	}
	for _, seg := range segments {
		li.Segments = append(li.Segments, seg.AttrMap())
	}
}
