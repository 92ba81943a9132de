// Package twin holds the remotely supplied desired configuration and typed lookups
// into it.
package twin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cast"
)

// Desired is the desired configuration document: named keys mapped to bool, number,
// string or nested values.
type Desired map[string]any

// Parse decodes a JSON object. Numbers are kept as json.Number so integer periods are
// not rounded through float64.
func Parse(data []byte) (Desired, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var d Desired
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("parse desired configuration: %w", err)
	}
	if d == nil {
		d = Desired{}
	}
	return d, nil
}

// Has reports whether key is present, whatever its value.
func (d Desired) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Bool looks up a boolean. ok is false when the key is missing; err is set when the
// key is present but not a boolean.
func (d Desired) Bool(key string) (value bool, ok bool, err error) {
	raw, ok := d[key]
	if !ok {
		return false, false, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, true, nil
	case string:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return false, true, fmt.Errorf("%s: %w", key, err)
		}
		return b, true, nil
	default:
		return false, true, fmt.Errorf("%s: expected bool, got %T", key, raw)
	}
}

// maxSeconds is the largest whole-second count a time.Duration can hold.
const maxSeconds = math.MaxInt64 / int64(time.Second)

// Int looks up an integer. ok is false when the key is missing; err is set when the
// key is present but not an integer, or does not fit in an int.
func (d Desired) Int(key string) (value int, ok bool, err error) {
	i, ok, err := d.int64(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	if i > math.MaxInt || i < math.MinInt {
		return 0, true, fmt.Errorf("%s: %d out of range", key, i)
	}
	return int(i), true, nil
}

// Seconds looks up a whole number of seconds as a duration. Values a time.Duration
// cannot represent are malformed.
func (d Desired) Seconds(key string) (value time.Duration, ok bool, err error) {
	i, ok, err := d.int64(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	if i > maxSeconds || i < -maxSeconds {
		return 0, true, fmt.Errorf("%s: %d seconds out of range", key, i)
	}
	return time.Duration(i) * time.Second, true, nil
}

func (d Desired) int64(key string) (int64, bool, error) {
	raw, ok := d[key]
	if !ok {
		return 0, false, nil
	}
	if n, isNumber := raw.(json.Number); isNumber {
		i, err := n.Int64()
		if err != nil {
			return 0, true, fmt.Errorf("%s: expected integer, got %s", key, n)
		}
		return i, true, nil
	}
	if _, isBool := raw.(bool); isBool {
		return 0, true, fmt.Errorf("%s: expected integer, got bool", key)
	}
	i, err := cast.ToInt64E(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return i, true, nil
}
