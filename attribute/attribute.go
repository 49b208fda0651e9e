// Copyright 2024-2025 The h1client Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package attribute provides a type-safe container of custom request
// properties named Values. Callers can attach out-of-band metadata to a
// request — a trace tag, a tenant identifier, a per-request override —
// without the client interpreting it. Properties are declared using
// [NewKey] to create a strongly-typed key; values are read back with
// [GetValue].
//
//	var Tenant = attribute.NewKey[string]()
//
//	req.Properties = attribute.NewValues(Tenant.Value("acme"))
//	...
//	tenant, ok := attribute.GetValue(req.Properties, Tenant)
package attribute

// Values is a collection of type-safe custom property values. It
// contains a mapping of [Key] to value for any number of property keys.
// The zero value is an empty collection.
type Values struct {
	data map[any]any
}

// NewValues creates a new Values object with the provided values.
//
// Use this function in tandem with [Key.Value], like this:
//
//	var testKey = attribute.NewKey[string]()
//	...
//	attribute.NewValues(testKey.Value("test"))
func NewValues(values ...Value) Values {
	data := make(map[any]any, len(values))
	for _, val := range values {
		data[val.key] = val.value
	}
	return Values{data: data}
}

// With returns a copy of the collection with the given values added,
// overwriting any existing values for the same keys. The receiver is
// unchanged.
func (v Values) With(values ...Value) Values {
	data := make(map[any]any, len(v.data)+len(values))
	for key, value := range v.data {
		data[key] = value
	}
	for _, val := range values {
		data[val.key] = val.value
	}
	return Values{data: data}
}

// Key is a property key. Applications should use NewKey to create a new
// key for each distinct property. The type T is the type of values this
// property can have.
type Key[T any] struct {
	// can't be empty or else pointers won't be distinct
	_ bool
}

// NewKey returns a new key that can have values of type T. Each call to
// NewKey results in a distinct property key, even if multiple are
// created for the same type. (Keys are identified by their address.)
func NewKey[T any]() *Key[T] {
	return new(Key[T])
}

// Value constructs a new property value, which can be passed to
// [NewValues] or [Values.With].
func (k *Key[T]) Value(value T) Value {
	return Value{key: k, value: value}
}

// Value is a single custom property, composed of a key and
// corresponding value.
type Value struct {
	key, value any
}

// GetValue retrieves a single value from the given Values. If the key is
// not present, the zero value and false are returned instead.
func GetValue[T any](values Values, key *Key[T]) (value T, ok bool) {
	val, ok := values.data[key]
	if !ok {
		var zero T
		return zero, false
	}
	tval, ok := val.(T)
	return tval, ok
}
