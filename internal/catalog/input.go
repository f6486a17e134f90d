package catalog

import (
	"encoding/json"
	"errors"
	"io"
	"math"

	"github.com/shopspring/decimal"
)

// wireFields is the request body. Price and stock arrive either as JSON numbers
// or as numeric strings, so they are parsed by hand. An empty string counts as
// not sent.
type wireFields struct {
	Name     *string         `json:"name"`
	Price    json.RawMessage `json:"price"`
	Stock    json.RawMessage `json:"stock"`
	Category *string         `json:"category"`
}

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// DecodeFields reads a single JSON object from r. Malformed bodies and values of
// the wrong type come back as *ValidationError.
func DecodeFields(r io.Reader) (Fields, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var in wireFields
	if err := dec.Decode(&in); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			return Fields{}, invalidf("Invalid field %s: expected %s", te.Field, te.Type.String())
		}
		return Fields{}, &ValidationError{Msg: "Invalid request body"}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Fields{}, &ValidationError{Msg: "Invalid request body"}
	}

	f := Fields{Name: in.Name, Category: in.Category}

	price, err := parseNumber("price", in.Price)
	if err != nil {
		return Fields{}, err
	}
	if price != nil {
		v := price.InexactFloat64()
		f.Price = &v
	}

	stock, err := parseNumber("stock", in.Stock)
	if err != nil {
		return Fields{}, err
	}
	if stock != nil {
		if !stock.IsInteger() {
			return Fields{}, invalidf("Invalid field stock: must be an integer")
		}
		if stock.GreaterThan(maxInt64) || stock.LessThan(minInt64) {
			return Fields{}, invalidf("Invalid field stock: out of range")
		}
		v := stock.IntPart()
		f.Stock = &v
	}

	return f, nil
}

func parseNumber(field string, raw json.RawMessage) (*decimal.Decimal, error) {
	// Form posts send an untouched field as "".
	if len(raw) == 0 || string(raw) == "null" || string(raw) == `""` {
		return nil, nil
	}

	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return nil, invalidf("Invalid field %s: must be a number", field)
	}
	return &d, nil
}
