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

// Package aggregate builds cross-source transaction records out of the
// fragments POS log dialects produce. A single TransactionMap is shared
// by all drivers within one processing run so that information about
// the same ticket scattered over several files ends up merged into one
// record.
package aggregate

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// Item is a single sold (or markdown) item attached to a transaction.
type Item struct {
	PLU             string
	Name            string
	DepCode         string
	PosSequence     string
	Qty             float64
	Price           float64
	Amount          float64
	QuantityInPrice float64
	Raw             string
}

// Document is an issued coupon/voucher document.
type Document struct {
	DocumentType      string
	Barcode           string
	ConfirmationLevel string
	PromotionID       string
	Description       string
	Raw               string
}

// Tender is one payment applied to a transaction.
type Tender struct {
	TenderNo   string
	Amount     float64
	TenderType string
}

// Balance is a loyalty balance line.
type Balance struct {
	Type           string
	ID             string
	Name           string
	OpenBalance    string
	Earnings       string
	Redemptions    string
	CurrentBalance string
}

// Account is a loyalty account line.
type Account struct {
	ID            string
	EarnValue     string
	OpenBalance   string
	EndingBalance string
	Value         string
}

// Member is a loyalty program member attached to a transaction.
// RowID is a generated identity used by sinks to key member-scoped
// child rows (segments, cards, stores).
type Member struct {
	RowID            string
	LastName         string
	FirstName        string
	Status           string
	MemberExternalID string
	Segments         []map[string]string
	Cards            []map[string]string
	Stores           []map[string]string
}

// LoyaltyInfo groups the loyalty data harvested for one transaction.
type LoyaltyInfo struct {
	Balances []*Balance
	Accounts []*Account
	Members  []*Member
	Segments []map[string]string
}

// Fragment is an XML fragment whose method had no dedicated handler;
// such fragments are retained verbatim rather than dropped.
type Fragment struct {
	Method string
	Raw    string
}

// PromotionDetail is a harvested <PromotionDetails> block.
type PromotionDetail struct {
	Attrs    map[string]string
	Segments []string
}

// Transaction accumulates everything known about one ticket.
type Transaction struct {
	TransID          string
	StoreID          string
	CashierID        string
	CardID           string
	FirstName        string
	LastName         string
	Items            []*Item
	Documents        []*Document
	Tenders          []*Tender
	PromoItems       []map[string]string
	Loyalty          LoyaltyInfo
	TransactionTime  time.Time
	LoyaltySummary   string
	SaversSummary    string
	Queries          []string
	RawFragmentAttrs []map[string][]map[string]string
	PromotionDetails []*PromotionDetail
	OtherFragments   []*Fragment
	InitInfo         map[string]string
	ActiveDevices    []map[string]string

	phoneNumbers  map[string]bool
	promotions    map[string]bool
	timestamps    map[time.Time]bool
	itemIndex     map[string]int
	seenFragments map[string]bool

	explicitTotal    float64
	hasExplicitTotal bool
}

func newTransaction(transID string) *Transaction {
	return &Transaction{
		TransID:       transID,
		phoneNumbers:  make(map[string]bool),
		promotions:    make(map[string]bool),
		timestamps:    make(map[time.Time]bool),
		itemIndex:     make(map[string]int),
		seenFragments: make(map[string]bool),
	}
}

// AddPhone records a customer phone number (set semantics).
func (tx *Transaction) AddPhone(num string) {
	if num != "" {
		tx.phoneNumbers[num] = true
	}
}

// AddPromotion records a triggered/redeemed promotion ID (set semantics).
func (tx *Transaction) AddPromotion(id string) {
	if id != "" {
		tx.promotions[id] = true
	}
}

// Phones returns the recorded phone numbers, sorted for determinism.
func (tx *Transaction) Phones() []string {
	return sortedKeys(tx.phoneNumbers)
}

// Promotions returns the recorded promotion IDs, sorted for determinism.
func (tx *Transaction) Promotions() []string {
	return sortedKeys(tx.promotions)
}

// AddTimestamp records a discovered timestamp candidate. The
// transaction time itself is only derived by SettleTime.
func (tx *Transaction) AddTimestamp(t time.Time) {
	if !t.IsZero() {
		tx.timestamps[t] = true
	}
}

// Timestamps returns all discovered timestamp candidates in ascending order.
func (tx *Transaction) Timestamps() []time.Time {
	ans := make([]time.Time, 0, len(tx.timestamps))
	for t := range tx.timestamps {
		ans = append(ans, t)
	}
	sort.Slice(ans, func(i, j int) bool { return ans[i].Before(ans[j]) })
	return ans
}

// SettleTime assigns the transaction time from the earliest discovered
// timestamp - but only once. A later, smaller candidate never lowers an
// already assigned time; the first assignment reflects when the
// transaction first became visible in the logs.
func (tx *Transaction) SettleTime() {
	if !tx.TransactionTime.IsZero() || len(tx.timestamps) == 0 {
		return
	}
	var min time.Time
	for t := range tx.timestamps {
		if min.IsZero() || t.Before(min) {
			min = t
		}
	}
	tx.TransactionTime = min
}

// SetTimeIfUnset assigns t as the transaction time unless one is
// already set (used for the vendor session-level fallback).
func (tx *Transaction) SetTimeIfUnset(t time.Time) {
	if tx.TransactionTime.IsZero() && !t.IsZero() {
		tx.TransactionTime = t
	}
}

// SetExplicitTotal records a total stated by the source document.
// It takes precedence over the sum derived from items.
func (tx *Transaction) SetExplicitTotal(v float64) {
	tx.explicitTotal = v
	tx.hasExplicitTotal = true
}

// ExplicitTotal returns the stated total; ok is false when the source
// never stated one.
func (tx *Transaction) ExplicitTotal() (float64, bool) {
	return tx.explicitTotal, tx.hasExplicitTotal
}

// Total returns the transaction total: the explicitly stated one when
// available, otherwise the sum of item amounts.
func (tx *Transaction) Total() float64 {
	if tx.hasExplicitTotal {
		return tx.explicitTotal
	}
	var sum float64
	for _, it := range tx.Items {
		sum += it.Amount
	}
	return sum
}

// AppendItem attaches an item without any merging. Used by the
// text-layer extraction where no reliable identity exists.
func (tx *Transaction) AppendItem(it *Item) {
	tx.Items = append(tx.Items, it)
}

// MergeItem attaches an item under the given identity key; when an
// item with the same key already exists, quantity and amount are
// accumulated instead (name, price and the other fields keep their
// first-seen values).
func (tx *Transaction) MergeItem(key string, it *Item) {
	if key != "" {
		if idx, ok := tx.itemIndex[key]; ok {
			tx.Items[idx].Qty += it.Qty
			tx.Items[idx].Amount += it.Amount
			return
		}
		tx.itemIndex[key] = len(tx.Items)
	}
	tx.Items = append(tx.Items, it)
}

// MergeItemByPluDep merges by linear (PLU, depCode) lookup, the
// identity the ticket-items response carries.
func (tx *Transaction) MergeItemByPluDep(it *Item) {
	for _, existing := range tx.Items {
		if existing.PLU == it.PLU && existing.DepCode == it.DepCode {
			existing.Qty += it.Qty
			existing.Amount += it.Amount
			return
		}
	}
	tx.Items = append(tx.Items, it)
}

// MarkFragment registers a fragment content hash; it reports true when
// the same fragment was already processed for this transaction.
func (tx *Transaction) MarkFragment(hash string) bool {
	if tx.seenFragments[hash] {
		return true
	}
	tx.seenFragments[hash] = true
	return false
}

// GenericItemKey is the item identity used by the generic XML document
// driver.
func GenericItemKey(plu, depCode string) string {
	return plu + "|" + depCode
}

// VendorItemKey is the item identity used by the vendor protocol
// driver, which additionally distinguishes the POS sequence.
func VendorItemKey(plu, posSequence, depCode string) string {
	sum := sha256.Sum256([]byte(plu + "_" + posSequence + "_" + depCode))
	return hex.EncodeToString(sum[:])
}

func sortedKeys(m map[string]bool) []string {
	ans := make([]string, 0, len(m))
	for k := range m {
		ans = append(ans, k)
	}
	sort.Strings(ans)
	return ans
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}
