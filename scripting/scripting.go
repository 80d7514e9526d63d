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

// Package scripting runs an optional user-provided Lua script against
// finalized transactions before they are persisted. The script must
// define a global function
//
//	function transform(tx)
//	    -- tx is a table, return it (possibly modified) or nil
//	    return tx
//	end
//
// Returning nil keeps the transaction unchanged; a returned table
// writes its scalar customer/store fields back to the record.
package scripting

import (
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"poslogproc/aggregate"
)

// Environment wraps a Lua state with a loaded customization script.
type Environment struct {
	env        *lua.LState
	scriptPath string
}

// New loads the script at srcPath and verifies it defines the
// transform function.
func New(srcPath string) (*Environment, error) {
	L := lua.NewState()
	if err := L.DoFile(srcPath); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to process customization script %s: %w", srcPath, err)
	}
	if L.GetGlobal("transform") == lua.LNil {
		L.Close()
		return nil, fmt.Errorf(
			"failed to process customization script %s: missing `transform` function", srcPath)
	}
	return &Environment{env: L, scriptPath: srcPath}, nil
}

// NewFromSource is like New but takes the script source directly
// (used by tests).
func NewFromSource(sourceCode string) (*Environment, error) {
	L := lua.NewState()
	if err := L.DoString(sourceCode); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to process customization source code: %w", err)
	}
	if L.GetGlobal("transform") == lua.LNil {
		L.Close()
		return nil, fmt.Errorf("failed to process customization source code: missing `transform` function")
	}
	return &Environment{env: L}, nil
}

// Close releases the Lua state.
func (e *Environment) Close() {
	e.env.Close()
}

// Transform passes one transaction through the script's transform
// function and writes any returned scalar fields back to the record.
func (e *Environment) Transform(rec *aggregate.Transaction) error {
	err := e.env.CallByParam(
		lua.P{
			Fn:      e.env.GetGlobal("transform"),
			NRet:    1,
			Protect: true,
		},
		exportTransaction(e.env, rec),
	)
	if err != nil {
		return fmt.Errorf("failed to transform transaction %s using a Lua script: %w", rec.TransID, err)
	}
	ret := e.env.Get(-1)
	e.env.Pop(1)
	if ret == lua.LNil {
		return nil
	}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return fmt.Errorf(
			"failed to transform transaction %s using a Lua script: transform must return a table or nil",
			rec.TransID)
	}
	importTransaction(tbl, rec)
	return nil
}

func exportTransaction(L *lua.LState, rec *aggregate.Transaction) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("trans_id", lua.LString(rec.TransID))
	tbl.RawSetString("store_id", lua.LString(rec.StoreID))
	tbl.RawSetString("cashier_id", lua.LString(rec.CashierID))
	tbl.RawSetString("card_id", lua.LString(rec.CardID))
	tbl.RawSetString("first_name", lua.LString(rec.FirstName))
	tbl.RawSetString("last_name", lua.LString(rec.LastName))
	tbl.RawSetString("total", lua.LNumber(rec.Total()))
	if !rec.TransactionTime.IsZero() {
		tbl.RawSetString("transaction_time", lua.LString(rec.TransactionTime.Format(time.RFC3339)))
	}

	phones := L.NewTable()
	for i, p := range rec.Phones() {
		phones.RawSetInt(i+1, lua.LString(p))
	}
	tbl.RawSetString("phone_numbers", phones)

	promos := L.NewTable()
	for i, p := range rec.Promotions() {
		promos.RawSetInt(i+1, lua.LString(p))
	}
	tbl.RawSetString("promotions", promos)

	items := L.NewTable()
	for i, it := range rec.Items {
		itemTbl := L.NewTable()
		itemTbl.RawSetString("plu", lua.LString(it.PLU))
		itemTbl.RawSetString("name", lua.LString(it.Name))
		itemTbl.RawSetString("dep_code", lua.LString(it.DepCode))
		itemTbl.RawSetString("qty", lua.LNumber(it.Qty))
		itemTbl.RawSetString("price", lua.LNumber(it.Price))
		itemTbl.RawSetString("amount", lua.LNumber(it.Amount))
		items.RawSetInt(i+1, itemTbl)
	}
	tbl.RawSetString("items", items)
	return tbl
}

// importTransaction writes the scalar fields a script may customize
// back to the record. Collections (items, tenders, loyalty data) stay
// as the aggregator produced them.
func importTransaction(tbl *lua.LTable, rec *aggregate.Transaction) {
	setString := func(key string, dst *string) {
		if v, ok := tbl.RawGetString(key).(lua.LString); ok {
			*dst = string(v)
		}
	}
	setString("store_id", &rec.StoreID)
	setString("cashier_id", &rec.CashierID)
	setString("card_id", &rec.CardID)
	setString("first_name", &rec.FirstName)
	setString("last_name", &rec.LastName)
}
