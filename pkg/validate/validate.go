// Package validate checks row payloads against per-table JSON Schemas
// before they are written remotely or enqueued for later replay, so a
// malformed record can never get stuck in the offline queue.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/halolaba/halolaba-client/pkg/models"
)

// Field types are validated by schema; required fields are enforced for
// inserts only, since updates legitimately carry partial rows (for
// example a bare stock decrement).
var tableSchemas = map[string]string{
	"products": `{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"name": {"type": "string", "minLength": 1},
			"stock": {"type": "integer", "minimum": 0},
			"minimal_stock": {"type": "integer", "minimum": 0},
			"cost_price": {"type": "number", "minimum": 0},
			"selling_price": {"type": "number", "minimum": 0},
			"created_at": {"type": "string"},
			"updated_at": {"type": "string"}
		}
	}`,
	"transactions": `{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"total_amount": {"type": "number", "minimum": 0},
			"profit": {"type": "number"},
			"type": {"type": "string", "enum": ["sale", "debt"]},
			"created_at": {"type": "string"}
		}
	}`,
	"transaction_items": `{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"transaction_id": {"type": "string", "minLength": 1},
			"product_id": {"type": "string", "minLength": 1},
			"quantity": {"type": "integer", "minimum": 1},
			"unit_price": {"type": "number", "minimum": 0},
			"total_price": {"type": "number", "minimum": 0}
		}
	}`,
	"expenses": `{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"description": {"type": "string", "minLength": 1},
			"amount": {"type": "number", "minimum": 0},
			"category": {"type": "string"},
			"expense_type": {"type": "string"},
			"expense_category": {"type": "string"},
			"created_at": {"type": "string"}
		}
	}`,
	"debts": `{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"customer_name": {"type": "string", "minLength": 1},
			"amount": {"type": "number", "minimum": 0},
			"status": {"type": "string", "enum": ["unpaid", "paid"]},
			"created_at": {"type": "string"},
			"paid_at": {"type": ["string", "null"]}
		}
	}`,
	"debt_items": `{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"debt_id": {"type": "string", "minLength": 1},
			"product_id": {"type": "string", "minLength": 1},
			"quantity": {"type": "integer", "minimum": 1},
			"unit_price": {"type": "number", "minimum": 0},
			"total_price": {"type": "number", "minimum": 0}
		}
	}`,
	"restock_transactions": `{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"total_amount": {"type": "number", "minimum": 0},
			"created_at": {"type": "string"}
		}
	}`,
	"restock_items": `{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"restock_transaction_id": {"type": "string", "minLength": 1},
			"product_id": {"type": "string", "minLength": 1},
			"quantity": {"type": "integer", "minimum": 1},
			"cost_price": {"type": "number", "minimum": 0},
			"total_price": {"type": "number", "minimum": 0}
		}
	}`,
	"notifications": `{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"title": {"type": "string", "minLength": 1},
			"message": {"type": "string"},
			"type": {"type": "string", "enum": ["low_stock", "debt_due", "sales_target", "system"]},
			"related_id": {"type": "string"},
			"is_read": {"type": "boolean"},
			"created_at": {"type": "string"}
		}
	}`,
}

var requiredOnInsert = map[string][]string{
	"products":             {"name", "stock", "minimal_stock", "cost_price", "selling_price"},
	"transactions":         {"total_amount", "profit", "type"},
	"transaction_items":    {"transaction_id", "product_id", "quantity", "unit_price", "total_price"},
	"expenses":             {"description", "amount"},
	"debts":                {"customer_name", "amount", "status"},
	"debt_items":           {"debt_id", "product_id", "quantity", "unit_price", "total_price"},
	"restock_transactions": {"total_amount"},
	"restock_items":        {"restock_transaction_id", "product_id", "quantity"},
	"notifications":        {"title", "type"},
}

// Validator holds the compiled schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles every table schema.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	for table, src := range tableSchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("parse schema for %s: %w", table, err)
		}
		if err := compiler.AddResource(table+".json", doc); err != nil {
			return nil, fmt.Errorf("register schema for %s: %w", table, err)
		}
	}
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(tableSchemas))}
	for table := range tableSchemas {
		sch, err := compiler.Compile(table + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", table, err)
		}
		v.schemas[table] = sch
	}
	return v, nil
}

// ValidateInsert checks a full row about to be created: schema plus the
// table's required fields.
func (v *Validator) ValidateInsert(table string, row models.Row) error {
	if err := v.validate(table, row); err != nil {
		return err
	}
	for _, field := range requiredOnInsert[table] {
		if _, ok := row[field]; !ok {
			return fmt.Errorf("table %s: missing required field %q", table, field)
		}
	}
	return nil
}

// ValidateUpdate checks a partial row about to be applied to an existing
// remote row: field types and enums only.
func (v *Validator) ValidateUpdate(table string, row models.Row) error {
	return v.validate(table, row)
}

func (v *Validator) validate(table string, row models.Row) error {
	sch, ok := v.schemas[table]
	if !ok {
		return fmt.Errorf("no schema for table %q", table)
	}
	// Round-trip through JSON so the instance carries the value kinds
	// the schema library expects, whatever Go types the caller used.
	b, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("table %s: %w", table, err)
	}
	return nil
}
