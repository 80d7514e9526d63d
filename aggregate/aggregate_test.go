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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"poslogproc/xmlkit"
)

func mustParse(t *testing.T, src string) *xmlkit.Element {
	elm, err := xmlkit.Parse(src)
	assert.NoError(t, err)
	return elm
}

func TestInitIsIdempotent(t *testing.T) {
	tm := NewTransactionMap()
	tm.Init("0042")
	tx := tm.Get("0042")
	tx.AddPromotion("7")
	tm.Init("0042")
	assert.Same(t, tx, tm.Get("0042"))
	assert.Equal(t, 1, tm.Size())
	assert.Equal(t, []string{"7"}, tx.Promotions())
}

func TestMergeTextBasicHarvest(t *testing.T) {
	tm := NewTransactionMap()
	tm.MergeText(`<Customer TransID="0042" CardID="989001"><Contact Name="MobilePhoneNumber" Value="604123456"/>` +
		` FirstName="Jan" LastName="Kovar" FirstName="Jana" LastName="Kovarova" PromNumber="1234"`)
	tx := tm.Get("0042")
	assert.NotNil(t, tx)
	assert.Equal(t, "989001", tx.CardID)
	// the last name occurrence within one block wins
	assert.Equal(t, "Jana", tx.FirstName)
	assert.Equal(t, "Kovarova", tx.LastName)
	assert.Equal(t, []string{"604123456"}, tx.Phones())
	assert.Equal(t, []string{"1234"}, tx.Promotions())
}

func TestMergeTextNoTransIDIsNoop(t *testing.T) {
	tm := NewTransactionMap()
	tm.MergeText(`CardID="989001" FirstName="Jan"`)
	assert.Equal(t, 0, tm.Size())
}

func TestMergeTextScalarFieldsFirstNonEmptyWins(t *testing.T) {
	tm := NewTransactionMap()
	tm.MergeText(`TransID="0042" CardID="111"`)
	tm.MergeText(`TransID="0042" CardID="222"`)
	assert.Equal(t, "111", tm.Get("0042").CardID)
}

func TestMergeTextItemBlocks(t *testing.T) {
	tm := NewTransactionMap()
	tm.MergeText(`TicketNumber="7" <ItemInfo PluCode="42" Name=" Rohlik " DepCode="3" Quantity="2" Price="1.5" Amount="3.0">`)
	tm.MergeText(`TicketNumber="7" <ItemInfo PluCode="42" DepCode="3">`)
	tx := tm.Get("7")
	// text-layer items append without dedup
	assert.Len(t, tx.Items, 2)
	assert.Equal(t, "Rohlik", tx.Items[0].Name)
	assert.Equal(t, 2.0, tx.Items[0].Qty)
	assert.Equal(t, 3.0, tx.Items[0].Amount)
	// defensive defaults
	assert.Equal(t, 1.0, tx.Items[1].Qty)
	assert.Equal(t, 0.0, tx.Items[1].Price)
	assert.Equal(t, 0.0, tx.Items[1].Amount)
}

func TestMergeTextTimestampsSettleToMin(t *testing.T) {
	tm := NewTransactionMap()
	tm.MergeText(`TransID="X1" StartDateTime="2025-01-28T10:07:05" EndDateTime="2025-01-28T10:07:01"`)
	tx := tm.Get("X1")
	assert.Equal(t, time.Date(2025, 1, 28, 10, 7, 1, 0, time.UTC), tx.TransactionTime)
}

func TestTransactionTimeFirstAssignmentWins(t *testing.T) {
	tm := NewTransactionMap()
	tm.MergeText(`TransID="X1" StartDateTime="2025-01-28T10:07:05"`)
	tx := tm.Get("X1")
	assert.Equal(t, time.Date(2025, 1, 28, 10, 7, 5, 0, time.UTC), tx.TransactionTime)
	// an earlier candidate arriving later must not lower the settled time
	tm.MergeText(`TransID="X1" StartDateTime="2025-01-28T09:00:00"`)
	assert.Equal(t, time.Date(2025, 1, 28, 10, 7, 5, 0, time.UTC), tx.TransactionTime)
	assert.Len(t, tx.Timestamps(), 2)
}

func TestExplicitTotalPrecedence(t *testing.T) {
	tm := NewTransactionMap()
	tm.Init("1")
	tx := tm.Get("1")
	tx.AppendItem(&Item{PLU: "1", Amount: 10})
	tx.AppendItem(&Item{PLU: "2", Amount: 5})
	assert.Equal(t, 15.0, tx.Total())
	tx.SetExplicitTotal(12.5)
	assert.Equal(t, 12.5, tx.Total())
	v, ok := tx.ExplicitTotal()
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)
}

func TestMergeItemKeyedAdditive(t *testing.T) {
	tm := NewTransactionMap()
	tm.Init("1")
	tx := tm.Get("1")
	key := GenericItemKey("42", "3")
	tx.MergeItem(key, &Item{PLU: "42", DepCode: "3", Name: "Rohlik", Qty: 1, Amount: 1.5})
	tx.MergeItem(key, &Item{PLU: "42", DepCode: "3", Name: "other name", Qty: 2, Amount: 3})
	assert.Len(t, tx.Items, 1)
	assert.Equal(t, 3.0, tx.Items[0].Qty)
	assert.Equal(t, 4.5, tx.Items[0].Amount)
	// non-accumulated fields keep their first-seen values
	assert.Equal(t, "Rohlik", tx.Items[0].Name)
}

func TestVendorItemKeyDistinguishesPosSequence(t *testing.T) {
	assert.Equal(t, VendorItemKey("42", "1", "3"), VendorItemKey("42", "1", "3"))
	assert.NotEqual(t, VendorItemKey("42", "1", "3"), VendorItemKey("42", "2", "3"))
	assert.Equal(t, GenericItemKey("42", "3"), GenericItemKey("42", "3"))
}

func TestMethodOf(t *testing.T) {
	assert.Equal(t, MethodSetParam, MethodOf("SetParam"))
	assert.Equal(t, MethodQueryResponse, MethodOf("Query(Response)"))
	assert.Equal(t, MethodQuery, MethodOf("Query"))
	assert.Equal(t, MethodGetTriggeredPromotions, MethodOf("GetTriggeredPromotions2"))
	assert.Equal(t, MethodGetLoyaltySummary, MethodOf("GetLoyaltySummaryEx"))
	assert.Equal(t, MethodGetSaversSummary, MethodOf("GetSaversSummary(Response)"))
	assert.Equal(t, MethodUnknown, MethodOf("SomethingNew"))
}

func TestMergeXMLSetParamThreadsTicket(t *testing.T) {
	tm := NewTransactionMap()
	elm := mustParse(t, `<LPE Method="SetParam"><SystemParameters TicketNumber="0042" StoreID="S1" CashierID="C9" StartDateTime="2025-01-28T10:07:01"/></LPE>`)
	cur := tm.MergeXML(MethodSetParam, elm, "")
	assert.Equal(t, "0042", cur)
	tx := tm.Get("0042")
	assert.Equal(t, "S1", tx.StoreID)
	assert.Equal(t, "C9", tx.CashierID)
	assert.Equal(t, time.Date(2025, 1, 28, 10, 7, 1, 0, time.UTC), tx.TransactionTime)
}

func TestMergeXMLAddItemPriceOverride(t *testing.T) {
	tm := NewTransactionMap()
	tm.Init("1")
	elm := mustParse(t, `<LPE Method="AddItem"><ItemInfo PluCode="42" Name="Rohlik" DepCode="3" Quantity="2" Amount="5.0" Price="9.99"><Prices><Price Price="2.5"/></Prices></ItemInfo></LPE>`)
	cur := tm.MergeXML(MethodAddItem, elm, "1")
	assert.Equal(t, "1", cur)
	tx := tm.Get("1")
	assert.Len(t, tx.Items, 1)
	assert.Equal(t, 2.5, tx.Items[0].Price)
	assert.Equal(t, 2.0, tx.Items[0].Qty)
	assert.Equal(t, 5.0, tx.Items[0].Amount)
}

func TestMergeXMLAddItemWithoutContextIsIgnored(t *testing.T) {
	tm := NewTransactionMap()
	elm := mustParse(t, `<LPE Method="AddItem"><ItemInfo PluCode="42"/></LPE>`)
	cur := tm.MergeXML(MethodAddItem, elm, "")
	assert.Equal(t, "", cur)
	assert.Equal(t, 0, tm.Size())
}

func TestMergeXMLTenderAndDocuments(t *testing.T) {
	tm := NewTransactionMap()
	tm.Init("1")
	tm.MergeXML(MethodAddTender, mustParse(t,
		`<LPE Method="AddTender"><TenderInfo TenderNo="2" Amount="150.0" TenderType="card"/></LPE>`), "1")
	tm.MergeXML(MethodAddDocumentResponse, mustParse(t,
		`<LPE Method="AddDocument(Response)"><DocumentInfo><Document DocumentType="coupon" Barcode="123" PromotionId="77"/></DocumentInfo></LPE>`), "1")
	tx := tm.Get("1")
	assert.Len(t, tx.Tenders, 1)
	assert.Equal(t, 150.0, tx.Tenders[0].Amount)
	assert.Len(t, tx.Documents, 1)
	assert.Equal(t, "77", tx.Documents[0].PromotionID)
}

func TestMergeXMLQueryResponseRewardFallback(t *testing.T) {
	tm := NewTransactionMap()
	elm := mustParse(t, `<LPE Method="Query(Response)"><GeneralData TicketNumber="0099"/>`+
		`<TicketItems><Item PluCode="42" DepCode="3" Quantity="2" Price="1.5" RewardAmount="0"/>`+
		`<Item PluCode="43" DepCode="3" Quantity="1" Price="5" RewardAmount="4.5"/></TicketItems></LPE>`)
	cur := tm.MergeXML(MethodQueryResponse, elm, "")
	assert.Equal(t, "0099", cur)
	tx := tm.Get("0099")
	assert.Len(t, tx.Items, 2)
	// zero reward falls back to price*qty
	assert.Equal(t, 3.0, tx.Items[0].Amount)
	assert.Equal(t, 4.5, tx.Items[1].Amount)
}

func TestMergeXMLQueryResponseMergesByPluDep(t *testing.T) {
	tm := NewTransactionMap()
	elm := mustParse(t, `<LPE Method="Query(Response)"><GeneralData TicketNumber="0099"/>`+
		`<TicketItems><Item PluCode="42" DepCode="3" Quantity="1" Price="2" RewardAmount="2"/></TicketItems></LPE>`)
	tm.MergeXML(MethodQueryResponse, elm, "")
	elm2 := mustParse(t, `<LPE Method="Query(Response)"><GeneralData TicketNumber="0099"/>`+
		`<TicketItems><Item PluCode="42" DepCode="3" Quantity="2" Price="2" RewardAmount="4"/></TicketItems></LPE>`)
	tm.MergeXML(MethodQueryResponse, elm2, "")
	tx := tm.Get("0099")
	assert.Len(t, tx.Items, 1)
	assert.Equal(t, 3.0, tx.Items[0].Qty)
	assert.Equal(t, 6.0, tx.Items[0].Amount)
}

func TestMergeXMLUnknownMethodKeptAsOtherFragment(t *testing.T) {
	tm := NewTransactionMap()
	tm.Init("1")
	elm := mustParse(t, `<LPE Method="BrandNewThing"><Payload x="1"/></LPE>`)
	cur := tm.MergeXML(MethodOf("BrandNewThing"), elm, "1")
	assert.Equal(t, "1", cur)
	tx := tm.Get("1")
	assert.Len(t, tx.OtherFragments, 1)
	assert.Equal(t, "BrandNewThing", tx.OtherFragments[0].Method)
	assert.Contains(t, tx.OtherFragments[0].Raw, "Payload")
}

func TestMergeXMLVendorFragmentDedup(t *testing.T) {
	tm := NewTransactionMap()
	setup := mustParse(t, `<LPE Method="SetParam"><SystemParameters TicketNumber="7"/></LPE>`)
	cur := tm.MergeXMLVendor(MethodSetParam, setup, "")
	assert.Equal(t, "7", cur)
	item := mustParse(t, `<LPE Method="AddItem"><ItemInfo PluCode="42" DepCode="3" PosSequence="1" Quantity="1" Amount="2"/></LPE>`)
	tm.MergeXMLVendor(MethodAddItem, item, cur)
	// byte-identical fragment must be skipped entirely
	itemAgain := mustParse(t, `<LPE Method="AddItem"><ItemInfo PluCode="42" DepCode="3" PosSequence="1" Quantity="1" Amount="2"/></LPE>`)
	tm.MergeXMLVendor(MethodAddItem, itemAgain, cur)
	tx := tm.Get("7")
	assert.Len(t, tx.Items, 1)
	assert.Equal(t, 1.0, tx.Items[0].Qty)
}

func TestMergeXMLVendorItemMergeByPosSequence(t *testing.T) {
	tm := NewTransactionMap()
	cur := tm.MergeXMLVendor(MethodSetParam,
		mustParse(t, `<LPE Method="SetParam"><SystemParameters TicketNumber="7"/></LPE>`), "")
	tm.MergeXMLVendor(MethodAddItem, mustParse(t,
		`<LPE Method="AddItem" Seq="a"><ItemInfo PluCode="42" DepCode="3" PosSequence="1" Quantity="1" Amount="2"/></LPE>`), cur)
	// different fragment content, same item identity: quantities accumulate
	tm.MergeXMLVendor(MethodAddItem, mustParse(t,
		`<LPE Method="AddItem" Seq="b"><ItemInfo PluCode="42" DepCode="3" PosSequence="1" Quantity="2" Amount="4"/></LPE>`), cur)
	// different POS sequence: a separate line
	tm.MergeXMLVendor(MethodAddItem, mustParse(t,
		`<LPE Method="AddItem" Seq="c"><ItemInfo PluCode="42" DepCode="3" PosSequence="2" Quantity="1" Amount="2"/></LPE>`), cur)
	tx := tm.Get("7")
	assert.Len(t, tx.Items, 2)
	assert.Equal(t, 3.0, tx.Items[0].Qty)
	assert.Equal(t, 6.0, tx.Items[0].Amount)
}

func TestMergeXMLVendorCapturesAuditTrail(t *testing.T) {
	tm := NewTransactionMap()
	cur := tm.MergeXMLVendor(MethodSetParam,
		mustParse(t, `<LPE Method="SetParam"><SystemParameters TicketNumber="7" StoreID="S1"/></LPE>`), "")
	tx := tm.Get(cur)
	assert.NotEmpty(t, tx.RawFragmentAttrs)
	assert.NotEmpty(t, tx.RawFragmentAttrs[0]["SystemParameters"])
	assert.Len(t, tx.OtherFragments, 1)
}

func TestMergeXMLVendorPromotionDetails(t *testing.T) {
	tm := NewTransactionMap()
	cur := tm.MergeXMLVendor(MethodSetParam,
		mustParse(t, `<LPE Method="SetParam"><SystemParameters TicketNumber="7"/></LPE>`), "")
	tm.MergeXMLVendor(MethodGetTriggeredPromotions, mustParse(t,
		`<LPE Method="GetTriggeredPromotions2"><DiscountLine PromNumber="55" Amount="1"/>`+
			`<PromotionDetails ID="55" Name="combo"><Segments><Segment ID="2"/></Segments></PromotionDetails></LPE>`), cur)
	tx := tm.Get("7")
	assert.Equal(t, []string{"55"}, tx.Promotions())
	assert.Len(t, tx.PromoItems, 1)
	assert.Len(t, tx.PromotionDetails, 1)
	assert.Equal(t, "combo", tx.PromotionDetails[0].Attrs["Name"])
	assert.Len(t, tx.PromotionDetails[0].Segments, 1)
}

func TestMergeXMLLoyaltyParsing(t *testing.T) {
	tm := NewTransactionMap()
	tm.Init("1")
	elm := mustParse(t, `<LPE Method="GetLoyaltySummary"><LoyaltyInfo>`+
		`<Balance Type="points" ID="b1" OpenBalance="10" CurrentBalance="12"/>`+
		`<Acc ID="a1" EarnValue="2"/>`+
		`<Member FirstName="Jana" LastName="Kovarova" Status="active" MemberExternalId="M77">`+
		`<Cards><Card ID="989001" Status="ok"/></Cards></Member>`+
		`<Segments><Segment ID="5" Name="families"/></Segments>`+
		`</LoyaltyInfo></LPE>`)
	tm.MergeXML(MethodGetLoyaltySummary, elm, "1")
	tx := tm.Get("1")
	assert.Len(t, tx.Loyalty.Balances, 1)
	assert.Equal(t, "12", tx.Loyalty.Balances[0].CurrentBalance)
	assert.Len(t, tx.Loyalty.Accounts, 1)
	assert.Len(t, tx.Loyalty.Members, 1)
	assert.NotEmpty(t, tx.Loyalty.Members[0].RowID)
	assert.Len(t, tx.Loyalty.Members[0].Cards, 1)
	assert.Len(t, tx.Loyalty.Segments, 1)
	assert.NotEmpty(t, tx.LoyaltySummary)
	// the fragment-wide harvest picks up the member identity
	assert.Equal(t, "Jana", tx.FirstName)
	assert.Equal(t, "Kovarova", tx.LastName)
}

func TestMergeXMLInitInfo(t *testing.T) {
	tm := NewTransactionMap()
	tm.Init("1")
	elm := mustParse(t, `<LPE Method="Init"><InitInfo Version="1.70" Lane="4">`+
		`<ActiveDevices><ActiveDevice Name="scanner"/><ActiveDevice Name="printer"/></ActiveDevices></InitInfo></LPE>`)
	tm.MergeXML(MethodInit, elm, "1")
	tx := tm.Get("1")
	assert.Equal(t, "1.70", tx.InitInfo["Version"])
	assert.Len(t, tx.ActiveDevices, 2)
}

func TestScanTimestampsRecursive(t *testing.T) {
	tm := NewTransactionMap()
	tm.Init("1")
	tx := tm.Get("1")
	elm := mustParse(t, `<A StartDateTime="2025-01-28T10:07:05"><B><BusinessDate>2025-01-27T00:00:00</BusinessDate>`+
		`<C ExpirationDate="2026-01-01T00:00:00"/></B><D Unrelated="2025-01-01T00:00:00"/></A>`)
	ScanTimestamps(elm, tx)
	assert.Len(t, tx.Timestamps(), 3)
}
