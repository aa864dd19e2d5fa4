package api

// The schemas gate shape and types only. Business constraints with their
// own rejection codes (positive amount, distinct accounts, sufficient
// balance) are left to the orchestrator so callers see the proper code
// instead of a generic validation_error.

const depositSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["account_id", "currency", "amount"],
  "properties": {
    "account_id": {"type": "integer", "minimum": 1},
    "currency": {"type": "string", "pattern": "^[A-Z]{3}$"},
    "amount": {"type": "number"}
  }
}`

const withdrawSchema = depositSchema

const transferSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["source_id", "target_id", "currency", "amount"],
  "properties": {
    "source_id": {"type": "integer", "minimum": 1},
    "target_id": {"type": "integer", "minimum": 1},
    "currency": {"type": "string", "pattern": "^[A-Z]{3}$"},
    "amount": {"type": "number"}
  }
}`
