// Package codec encodes simulator state as a flat key/value query string and
// restores it field by field.
//
// Layout:
//
//	v=1&kn=peak&cpd=15&tcap=25&...&adcpd=10&avcpd=2&aacpd=1
//
// Parameters are keyed by their code. Actions repeat ad<code> (day),
// av<code> (value) and optionally aa<code> (1 active, 0 inactive) once per
// action, matched by position.
package codec

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"simpidemic/internal/action"
	"simpidemic/internal/param"
)

// Version is written to every encoded query.
const Version = "1"

// Reserved keys.
const (
	KeyVersion = "v"
	KeyKernel  = "kn"

	PrefixActionDay    = "ad"
	PrefixActionValue  = "av"
	PrefixActionActive = "aa"
)

var (
	// ErrVersion marks a query written by an unsupported encoder.
	ErrVersion = errors.New("codec: unsupported version")
	// ErrUnknownKey marks a key that names no parameter.
	ErrUnknownKey = errors.New("codec: unknown key")
	// ErrMismatch marks action day/value lists of different lengths.
	ErrMismatch = errors.New("codec: action fields do not line up")
)

// FieldError reports one key that could not be applied. Other keys of the
// same query are still applied.
type FieldError struct {
	Key string
	Err error
}

func (e FieldError) Error() string { return fmt.Sprintf("codec: field %q: %v", e.Key, e.Err) }
func (e FieldError) Unwrap() error { return e.Err }

// State is the encodable simulator input. Kernel is an opaque kernel tag
// owned by the caller.
type State struct {
	Params  *param.Set
	Kernel  string
	Actions *action.Schedule
}

// Encode renders st as query values.
func Encode(st State) url.Values {
	q := url.Values{}
	q.Set(KeyVersion, Version)
	if st.Kernel != "" {
		q.Set(KeyKernel, st.Kernel)
	}
	if st.Params != nil {
		for _, p := range st.Params.All() {
			q.Set(p.Code(), p.Format())
		}
	}
	if st.Actions != nil {
		for _, a := range st.Actions.Entries() {
			q.Add(PrefixActionDay+a.Code, strconv.Itoa(a.Day))
			q.Add(PrefixActionValue+a.Code, param.FormatSignificant(a.Value, param.DefaultDigits))
			active := "1"
			if !a.Active {
				active = "0"
			}
			q.Add(PrefixActionActive+a.Code, active)
		}
	}
	return q
}

// EncodeString is Encode followed by url.Values.Encode, which sorts keys.
func EncodeString(st State) string { return Encode(st).Encode() }

// Decode applies q onto st. Parameter writes happen inside one batch, so
// set-level listeners fire at most once. When q carries any action key the
// schedule is replaced. A bad field is skipped and reported; the returned
// slice is nil when every field applied.
func Decode(q url.Values, st *State) []FieldError {
	var errs []FieldError
	if v := q.Get(KeyVersion); v != "" && v != Version {
		errs = append(errs, FieldError{Key: KeyVersion, Err: fmt.Errorf("%w: %q", ErrVersion, v)})
	}
	if kn, ok := q[KeyKernel]; ok && len(kn) > 0 {
		st.Kernel = kn[0]
	}
	apply := func() error {
		for _, key := range sortedKeys(q) {
			if key == KeyVersion || key == KeyKernel || isActionKey(key) {
				continue
			}
			if st.Params == nil {
				errs = append(errs, FieldError{Key: key, Err: ErrUnknownKey})
				continue
			}
			p, ok := st.Params.ByCode(key)
			if !ok {
				errs = append(errs, FieldError{Key: key, Err: ErrUnknownKey})
				continue
			}
			if err := p.Parse(q.Get(key)); err != nil {
				errs = append(errs, FieldError{Key: key, Err: err})
			}
		}
		return nil
	}
	if st.Params != nil {
		_ = st.Params.Batch(apply)
	} else {
		_ = apply()
	}
	if st.Actions != nil && hasActions(q) {
		st.Actions.Clear()
		errs = append(errs, decodeActions(q, st)...)
	}
	return errs
}

// DecodeString parses raw (with or without a leading '?') and decodes it.
// A query that cannot be parsed at all yields a single FieldError with an
// empty key.
func DecodeString(raw string, st *State) []FieldError {
	q, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return []FieldError{{Key: "", Err: err}}
	}
	return Decode(q, st)
}

func decodeActions(q url.Values, st *State) []FieldError {
	var errs []FieldError
	codes := make(map[string]struct{})
	for key := range q {
		if strings.HasPrefix(key, PrefixActionDay) {
			codes[strings.TrimPrefix(key, PrefixActionDay)] = struct{}{}
		}
		if strings.HasPrefix(key, PrefixActionValue) {
			codes[strings.TrimPrefix(key, PrefixActionValue)] = struct{}{}
		}
	}
	ordered := make([]string, 0, len(codes))
	for c := range codes {
		ordered = append(ordered, c)
	}
	sort.Strings(ordered)

	for _, code := range ordered {
		dayKey, valueKey, activeKey := PrefixActionDay+code, PrefixActionValue+code, PrefixActionActive+code
		var target param.Scalar
		if st.Params != nil {
			if p, ok := st.Params.ByCode(code); ok {
				target, _ = p.(param.Scalar)
			}
		}
		if target == nil {
			errs = append(errs, FieldError{Key: dayKey, Err: ErrUnknownKey})
			continue
		}
		days, values, actives := q[dayKey], q[valueKey], q[activeKey]
		if len(days) != len(values) {
			errs = append(errs, FieldError{Key: valueKey, Err: fmt.Errorf("%w: %d days, %d values", ErrMismatch, len(days), len(values))})
		}
		for i := 0; i < min(len(days), len(values)); i++ {
			day, err := strconv.Atoi(days[i])
			if err != nil {
				errs = append(errs, FieldError{Key: dayKey, Err: err})
				continue
			}
			value, err := strconv.ParseFloat(values[i], 64)
			if err == nil && (math.IsNaN(value) || math.IsInf(value, 0)) {
				err = param.ErrNotFinite
			}
			if err != nil {
				errs = append(errs, FieldError{Key: valueKey, Err: err})
				continue
			}
			active := true
			if i < len(actives) {
				active = actives[i] != "0"
			}
			value = math.Min(math.Max(value, target.Min()), target.Max())
			if _, err := st.Actions.AddValue(day, target.Name(), code, value, active); err != nil {
				errs = append(errs, FieldError{Key: dayKey, Err: err})
			}
		}
	}
	return errs
}

func isActionKey(key string) bool {
	for _, prefix := range []string{PrefixActionDay, PrefixActionValue, PrefixActionActive} {
		if len(key) > len(prefix) && strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func hasActions(q url.Values) bool {
	for key := range q {
		if isActionKey(key) {
			return true
		}
	}
	return false
}

func sortedKeys(q url.Values) []string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
