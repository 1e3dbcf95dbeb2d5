package wire

import (
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/mantra/internal/term"
	"github.com/shopspring/decimal"
)

const ContentType = "application/x-mantra-tlv"

// Type IDs.
const (
	TypeLiteral uint8 = 1
	TypeNumber  uint8 = 2
	TypeList    uint8 = 3
)

const MaxDepth = 128

var (
	ErrUnknownTermType = errors.New("wire: unknown term type")
	ErrTooManyTerms    = errors.New("wire: sequence longer than field id space")
	ErrTooDeep         = errors.New("wire: list nesting too deep")
	ErrBadNumber       = errors.New("wire: malformed number")
)

func EncodeTerms(ts []term.Term) ([]byte, error) {
	return encodeSeq(ts, 0)
}

func encodeSeq(ts []term.Term, depth int) ([]byte, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	if len(ts) > math.MaxUint16+1 {
		return nil, fmt.Errorf("%w: %d", ErrTooManyTerms, len(ts))
	}
	out := make([]byte, 0, len(ts)*(HeaderLen+4))
	for i, t := range ts {
		f := Field{ID: uint16(i)}
		switch t.Kind() {
		case term.KindLiteral:
			sym, _ := t.Symbol()
			f.Type, f.Value = TypeLiteral, []byte(sym.Name())
		case term.KindNumber:
			d, _ := t.Decimal()
			f.Type, f.Value = TypeNumber, []byte(d.String())
		case term.KindList:
			items, _ := t.Items()
			inner, err := encodeSeq(items, depth+1)
			if err != nil {
				return nil, err
			}
			f.Type, f.Value = TypeList, inner
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownTermType, t.Kind())
		}
		out = appendField(out, f)
	}
	return out, nil
}

func DecodeTerms(payload []byte) ([]term.Term, error) {
	return decodeSeq(payload, 0)
}

func decodeSeq(payload []byte, depth int) ([]term.Term, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	fields, err := DecodeFields(payload)
	if err != nil {
		return nil, err
	}
	out := make([]term.Term, 0, len(fields))
	for _, f := range fields {
		switch f.Type {
		case TypeLiteral:
			out = append(out, term.Lit(string(f.Value)))
		case TypeNumber:
			d, err := decimal.NewFromString(string(f.Value))
			if err != nil {
				return nil, fmt.Errorf("%w: field %d: %v", ErrBadNumber, f.ID, err)
			}
			out = append(out, term.Number(d))
		case TypeList:
			items, err := decodeSeq(f.Value, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, term.List(items...))
		default:
			return nil, fmt.Errorf("%w: field %d type %d", ErrUnknownTermType, f.ID, f.Type)
		}
	}
	return out, nil
}
