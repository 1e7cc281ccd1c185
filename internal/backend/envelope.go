package backend

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Result is the parsed {"success","message","data"} envelope. Data is only
// decoded when OK is true.
type Result[T any] struct {
	OK      bool
	Message string
	Data    T
}

// errNoSuccessField is returned for bodies that are JSON but not an envelope.
var errNoSuccessField = errors.New("envelope has no success field")

// decodeEnvelope parses an envelope and decodes its data with decodeData
// when success is true.
func decodeEnvelope[T any](body []byte, decodeData func(d *jx.Decoder) (T, error)) (Result[T], error) {
	var (
		res        Result[T]
		hasSuccess bool
		raw        jx.Raw
	)
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "success":
			v, err := d.Bool()
			if err != nil {
				return errors.Wrap(err, "success")
			}
			res.OK, hasSuccess = v, true
		case "message":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "message")
			}
			res.Message = v
		case "data":
			v, err := d.Raw()
			if err != nil {
				return errors.Wrap(err, "data")
			}
			raw = append(jx.Raw(nil), v...)
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return res, errors.Wrap(err, "decode envelope")
	}
	if !hasSuccess {
		return res, errNoSuccessField
	}
	if !res.OK {
		return res, nil
	}
	if len(raw) == 0 {
		return res, errors.New("successful envelope has no data")
	}

	data, err := decodeData(jx.DecodeBytes(raw))
	if err != nil {
		return res, errors.Wrap(err, "decode data")
	}
	res.Data = data
	return res, nil
}

func skipData(d *jx.Decoder) (struct{}, error) {
	return struct{}{}, d.Skip()
}

// decodeObjectName reads either a plain string or an object carrying the
// given name field, e.g. "Rice" or {"name":"Rice"}.
func decodeObjectName(d *jx.Decoder, field string) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Null:
		return "", d.Null()
	case jx.Object:
		var name string
		err := d.Obj(func(d *jx.Decoder, key string) error {
			if key != field || d.Next() != jx.String {
				return d.Skip()
			}
			v, err := d.Str()
			name = v
			return err
		})
		return name, err
	default:
		return "", d.Skip()
	}
}

// decodeOptStr reads a string that may be null.
func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
