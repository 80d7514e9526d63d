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

package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"poslogproc/aggregate"
)

func sampleRecord() *aggregate.Transaction {
	tm := aggregate.NewTransactionMap()
	tm.Init("T1")
	rec := tm.Get("T1")
	rec.CardID = "123456789"
	rec.FirstName = "jan"
	rec.AppendItem(&aggregate.Item{PLU: "42", Qty: 2, Amount: 5})
	return rec
}

func TestTransformRewritesScalars(t *testing.T) {
	env, err := NewFromSource(`
		function transform(tx)
			tx.first_name = string.upper(tx.first_name)
			tx.store_id = "S-override"
			return tx
		end
	`)
	assert.NoError(t, err)
	defer env.Close()

	rec := sampleRecord()
	assert.NoError(t, env.Transform(rec))
	assert.Equal(t, "JAN", rec.FirstName)
	assert.Equal(t, "S-override", rec.StoreID)
	// untouched fields survive
	assert.Equal(t, "123456789", rec.CardID)
}

func TestTransformNilReturnKeepsRecord(t *testing.T) {
	env, err := NewFromSource(`
		function transform(tx)
			return nil
		end
	`)
	assert.NoError(t, err)
	defer env.Close()

	rec := sampleRecord()
	assert.NoError(t, env.Transform(rec))
	assert.Equal(t, "jan", rec.FirstName)
}

func TestTransformSeesCollections(t *testing.T) {
	env, err := NewFromSource(`
		function transform(tx)
			if #tx.items == 1 and tx.items[1].plu == "42" then
				tx.last_name = "matched"
			end
			return tx
		end
	`)
	assert.NoError(t, err)
	defer env.Close()

	rec := sampleRecord()
	assert.NoError(t, env.Transform(rec))
	assert.Equal(t, "matched", rec.LastName)
}

func TestTransformErrorPropagates(t *testing.T) {
	env, err := NewFromSource(`
		function transform(tx)
			error("boom")
		end
	`)
	assert.NoError(t, err)
	defer env.Close()

	assert.Error(t, env.Transform(sampleRecord()))
}

func TestMissingTransformFunction(t *testing.T) {
	_, err := NewFromSource(`local x = 1`)
	assert.Error(t, err)
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.lua")
	assert.NoError(t, os.WriteFile(path, []byte(`
		function transform(tx)
			return tx
		end
	`), 0644))
	env, err := New(path)
	assert.NoError(t, err)
	defer env.Close()
	assert.NoError(t, env.Transform(sampleRecord()))
}
