package x402

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// paymentSchema is the structural contract for the X-PAYMENT payload:
// required fields, the protocol version, a 65-byte signature and the six
// authorization fields with their wire formats. Semantic checks (amount
// bounds, expiry, recipient match) happen later in the gate.
const paymentSchema = `{
  "type": "object",
  "required": ["x402Version", "scheme", "network", "payload"],
  "properties": {
    "x402Version": {"type": "integer", "enum": [1]},
    "scheme": {"type": "string", "minLength": 1},
    "network": {"type": "string", "minLength": 1},
    "payload": {
      "type": "object",
      "required": ["signature", "authorization"],
      "properties": {
        "signature": {"type": "string", "pattern": "^0x[0-9a-fA-F]{130}$"},
        "authorization": {
          "type": "object",
          "required": ["from", "to", "value", "validAfter", "validBefore", "nonce"],
          "properties": {
            "from": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
            "to": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
            "value": {"type": "string", "pattern": "^[0-9]+$"},
            "validAfter": {"type": "string", "pattern": "^[0-9]+$"},
            "validBefore": {"type": "string", "pattern": "^[0-9]+$"},
            "nonce": {"type": "string", "pattern": "^0x[0-9a-fA-F]{64}$"}
          }
        }
      }
    }
  }
}`

var paymentSchemaLoader = gojsonschema.NewStringLoader(paymentSchema)

// ValidatePaymentJSON checks a decoded X-PAYMENT body against the payload
// schema. Violations are reported as invalid-format with the first
// offending field in the message.
func ValidatePaymentJSON(data []byte) error {
	result, err := gojsonschema.Validate(paymentSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return WrapError(ClassInvalidFormat, "payment payload is not valid JSON", err)
	}
	if !result.Valid() {
		desc := result.Errors()[0]
		return NewError(ClassInvalidFormat, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return nil
}
