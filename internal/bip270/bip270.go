// Package bip270 implements the BIP-270 invoice protocol: the PaymentRequest,
// Payment and PaymentACK wire messages, the fetch and payment-submission
// protocol and a persistent invoice index.
//
// The wire contract is strict: oversized documents, an unrecognized network,
// missing required fields and mistyped fields are all rejected at parse time
// with distinct errors, and a rejected document never yields a partially
// populated message.
package bip270

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/libsv/go-bt/v2/bscript"
)

// NetworkBitcoin is the only network identifier accepted in payment requests.
const NetworkBitcoin = "bitcoin"

const (
	maxPaymentRequestJSONLength = 10 * 1000 * 1000
	maxPaymentJSONLength        = 10 * 1000 * 1000
	maxPaymentACKJSONLength     = 11 * 1000 * 1000

	// The serialized JSON string form of an output description, quotes
	// included, may not exceed this many bytes.
	maxOutputDescriptionJSONLength = 100
)

var (
	ErrDocumentTooLarge   = errors.New("document exceeds the maximum length")
	ErrMalformedJSON      = errors.New("document is not valid JSON")
	ErrUnknownNetwork     = errors.New("unrecognized payment network")
	ErrMissingField       = errors.New("required field is missing")
	ErrInvalidField       = errors.New("field has the wrong type or value")
	ErrDescriptionTooLong = errors.New("output description too long")
)

// Output is one payee destination inside a PaymentRequest, or a refund
// destination inside a Payment.
type Output struct {
	Script      *bscript.Script
	Amount      *int64
	Description *string
}

// NewOutput validates the description length up front so an invalid output
// never enters a message.
func NewOutput(script *bscript.Script, amount *int64, description *string) (*Output, error) {
	if description != nil {
		if err := checkDescriptionLength(*description); err != nil {
			return nil, err
		}
	}
	return &Output{Script: script, Amount: amount, Description: description}, nil
}

func checkDescriptionLength(description string) error {
	encoded, err := json.Marshal(description)
	if err != nil {
		return err
	}
	if len(encoded) > maxOutputDescriptionJSONLength {
		return errors.Join(ErrDescriptionTooLong,
			fmt.Errorf("%d bytes as JSON, maximum is %d", len(encoded), maxOutputDescriptionJSONLength))
	}
	return nil
}

type outputJSON struct {
	Script      *string `json:"script"`
	Amount      *int64  `json:"amount,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (o Output) MarshalJSON() ([]byte, error) {
	if o.Script == nil {
		return nil, errors.Join(ErrMissingField, errors.New("output field 'script'"))
	}
	scriptHex := o.Script.String()
	return json.Marshal(outputJSON{
		Script:      &scriptHex,
		Amount:      o.Amount,
		Description: o.Description,
	})
}

func (o *Output) UnmarshalJSON(data []byte) error {
	var wire outputJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return classifyJSONError(err)
	}
	if wire.Script == nil {
		return errors.Join(ErrMissingField, errors.New("output field 'script'"))
	}
	script, err := bscript.NewFromHexString(*wire.Script)
	if err != nil {
		return errors.Join(ErrInvalidField, fmt.Errorf("output field 'script': %w", err))
	}
	if wire.Description != nil {
		if err = checkDescriptionLength(*wire.Description); err != nil {
			return err
		}
	}

	o.Script = script
	o.Amount = wire.Amount
	o.Description = wire.Description
	return nil
}

// PaymentRequest is the merchant-issued invoice document.
type PaymentRequest struct {
	Network             string
	Outputs             []*Output
	CreationTimestamp   int64
	ExpirationTimestamp *int64
	Memo                *string
	PaymentURL          *string
	MerchantData        *string
}

type paymentRequestJSON struct {
	Network             *string    `json:"network"`
	Outputs             *[]*Output `json:"outputs"`
	CreationTimestamp   *int64     `json:"creationTimestamp"`
	ExpirationTimestamp *int64     `json:"expirationTimestamp,omitempty"`
	Memo                *string    `json:"memo,omitempty"`
	PaymentURL          *string    `json:"paymentUrl,omitempty"`
	MerchantData        *string    `json:"merchantData,omitempty"`
}

// ParsePaymentRequest decodes and validates a payment request document.
func ParsePaymentRequest(data []byte) (*PaymentRequest, error) {
	if len(data) > maxPaymentRequestJSONLength {
		return nil, errors.Join(ErrDocumentTooLarge,
			fmt.Errorf("payment request of %d bytes", len(data)))
	}

	var wire paymentRequestJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, classifyJSONError(err)
	}

	if wire.Network == nil || *wire.Network != NetworkBitcoin {
		network := "<absent>"
		if wire.Network != nil {
			network = *wire.Network
		}
		return nil, errors.Join(ErrUnknownNetwork, fmt.Errorf("network %q", network))
	}
	if wire.Outputs == nil {
		return nil, errors.Join(ErrMissingField, errors.New("field 'outputs'"))
	}
	if wire.CreationTimestamp == nil {
		return nil, errors.Join(ErrMissingField, errors.New("field 'creationTimestamp'"))
	}

	return &PaymentRequest{
		Network:             *wire.Network,
		Outputs:             *wire.Outputs,
		CreationTimestamp:   *wire.CreationTimestamp,
		ExpirationTimestamp: wire.ExpirationTimestamp,
		Memo:                wire.Memo,
		PaymentURL:          wire.PaymentURL,
		MerchantData:        wire.MerchantData,
	}, nil
}

func (p *PaymentRequest) MarshalJSON() ([]byte, error) {
	network := NetworkBitcoin
	outputs := p.Outputs
	if outputs == nil {
		outputs = []*Output{}
	}
	return json.Marshal(paymentRequestJSON{
		Network:             &network,
		Outputs:             &outputs,
		CreationTimestamp:   &p.CreationTimestamp,
		ExpirationTimestamp: p.ExpirationTimestamp,
		Memo:                p.Memo,
		PaymentURL:          p.PaymentURL,
		MerchantData:        p.MerchantData,
	})
}

// HasExpired reports whether the request carries an expiration timestamp in
// the past.
func (p *PaymentRequest) HasExpired(now int64) bool {
	return p.ExpirationTimestamp != nil && *p.ExpirationTimestamp < now
}

// TotalAmount sums the output amounts. Outputs without an amount count as
// zero.
func (p *PaymentRequest) TotalAmount() int64 {
	var total int64
	for _, output := range p.Outputs {
		if output.Amount != nil {
			total += *output.Amount
		}
	}
	return total
}

// Payment is the payer's response to a PaymentRequest: the settling
// transaction plus refund destinations. Merchant data is opaque and echoed
// back exactly as received.
type Payment struct {
	MerchantData json.RawMessage
	Transaction  string
	RefundTo     []*Output
	Memo         *string
}

type paymentJSON struct {
	MerchantData json.RawMessage `json:"merchantData"`
	Transaction  *string         `json:"transaction"`
	RefundTo     *[]*Output      `json:"refundTo"`
	Memo         *string         `json:"memo,omitempty"`
}

// ParsePayment decodes and validates a payment document.
func ParsePayment(data []byte) (*Payment, error) {
	if len(data) > maxPaymentJSONLength {
		return nil, errors.Join(ErrDocumentTooLarge, fmt.Errorf("payment of %d bytes", len(data)))
	}

	var wire paymentJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, classifyJSONError(err)
	}

	if wire.MerchantData == nil {
		return nil, errors.Join(ErrMissingField, errors.New("field 'merchantData'"))
	}
	if wire.Transaction == nil {
		return nil, errors.Join(ErrMissingField, errors.New("field 'transaction'"))
	}
	if wire.RefundTo == nil {
		return nil, errors.Join(ErrMissingField, errors.New("field 'refundTo'"))
	}

	return &Payment{
		MerchantData: wire.MerchantData,
		Transaction:  *wire.Transaction,
		RefundTo:     *wire.RefundTo,
		Memo:         wire.Memo,
	}, nil
}

func (p *Payment) MarshalJSON() ([]byte, error) {
	refundTo := p.RefundTo
	if refundTo == nil {
		refundTo = []*Output{}
	}
	merchantData := p.MerchantData
	if merchantData == nil {
		merchantData = json.RawMessage("null")
	}
	return json.Marshal(paymentJSON{
		MerchantData: merchantData,
		Transaction:  &p.Transaction,
		RefundTo:     &refundTo,
		Memo:         p.Memo,
	})
}

// PaymentACK is the merchant's acknowledgement. On the wire the acknowledged
// payment rides as a JSON document nested inside a JSON string.
type PaymentACK struct {
	Payment *Payment
	Memo    *string
}

type paymentACKJSON struct {
	Payment *string `json:"payment"`
	Memo    *string `json:"memo,omitempty"`
}

// ParsePaymentACK decodes and validates a payment acknowledgement document.
func ParsePaymentACK(data []byte) (*PaymentACK, error) {
	if len(data) > maxPaymentACKJSONLength {
		return nil, errors.Join(ErrDocumentTooLarge,
			fmt.Errorf("payment ACK of %d bytes", len(data)))
	}

	var wire paymentACKJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, classifyJSONError(err)
	}

	if wire.Payment == nil {
		return nil, errors.Join(ErrMissingField, errors.New("field 'payment'"))
	}
	payment, err := ParsePayment([]byte(*wire.Payment))
	if err != nil {
		return nil, err
	}

	return &PaymentACK{Payment: payment, Memo: wire.Memo}, nil
}

func (a *PaymentACK) MarshalJSON() ([]byte, error) {
	encoded, err := json.Marshal(a.Payment)
	if err != nil {
		return nil, err
	}
	payment := string(encoded)
	return json.Marshal(paymentACKJSON{Payment: &payment, Memo: a.Memo})
}

// classifyJSONError keeps already-classified errors as they are, maps type
// mismatches to ErrInvalidField and everything else to ErrMalformedJSON.
func classifyJSONError(err error) error {
	if errors.Is(err, ErrMissingField) || errors.Is(err, ErrInvalidField) ||
		errors.Is(err, ErrDescriptionTooLong) || errors.Is(err, ErrUnknownNetwork) {
		return err
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return errors.Join(ErrInvalidField, fmt.Errorf("field %q: %w", typeErr.Field, err))
	}
	return errors.Join(ErrMalformedJSON, err)
}
