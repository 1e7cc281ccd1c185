package cart

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// snapshotVersion is written into every snapshot and is the only version
// DecodeSnapshot accepts.
const snapshotVersion = 0

// ErrUnsupportedVersion is returned when a snapshot carries an unknown version.
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// EncodeSnapshot serializes the cart as
// {"state":{"items":[...]},"version":0}.
func EncodeSnapshot(c *Cart) []byte {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("state")
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range c.items {
		EncodeLineItem(e, item)
	}
	e.ArrEnd()
	e.ObjEnd()
	e.FieldStart("version")
	e.Int(snapshotVersion)
	e.ObjEnd()
	return e.Bytes()
}

// EncodeLineItem writes a single line item as a JSON object. NUL bytes are
// dropped from strings: jsonb storage rejects them and they never render.
func EncodeLineItem(e *jx.Encoder, item LineItem) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(stripNUL(item.ID))
	e.FieldStart("name")
	e.Str(stripNUL(item.Name))
	e.FieldStart("price")
	EncodeDecimal(e, item.Price)
	e.FieldStart("image_url")
	e.Str(stripNUL(item.ImageURL))
	e.FieldStart("quantity")
	e.Int(item.Quantity)
	e.FieldStart("provider_id")
	e.Str(stripNUL(item.ProviderID))
	e.ObjEnd()
}

func stripNUL(s string) string {
	if !strings.ContainsRune(s, 0) {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// EncodeDecimal writes d as a bare JSON number.
func EncodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.String()))
}

// DecodeSnapshot restores a cart from a snapshot produced by EncodeSnapshot.
// Unknown fields are skipped. The restored cart goes through New, so a
// snapshot with zero quantities or repeated ids still yields a valid cart.
func DecodeSnapshot(data []byte) (*Cart, error) {
	var (
		items      []LineItem
		version    = snapshotVersion
		hasVersion bool
	)
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "state":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "items" {
					return d.Skip()
				}
				if d.Next() == jx.Null {
					return d.Null()
				}
				return d.Arr(func(d *jx.Decoder) error {
					item, err := DecodeLineItem(d)
					if err != nil {
						return err
					}
					items = append(items, item)
					return nil
				})
			})
		case "version":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "version")
			}
			version, hasVersion = v, true
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	if hasVersion && version != snapshotVersion {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", version)
	}
	return New(items...), nil
}

// DecodeLineItem reads a line item object. Missing quantity decodes as 0.
func DecodeLineItem(d *jx.Decoder) (LineItem, error) {
	var item LineItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			item.ID, err = d.Str()
		case "name":
			item.Name, err = d.Str()
		case "price":
			item.Price, err = DecodeDecimal(d)
		case "image_url":
			item.ImageURL, err = d.Str()
		case "quantity":
			item.Quantity, err = d.Int()
		case "provider_id":
			item.ProviderID, err = d.Str()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return item, err
}

// DecodeDecimal reads a JSON number or a numeric string.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	}
}
