// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package template

import (
	"encoding/json"
	"errors"
	"testing"

	"ipfixgen/common/helpers"
)

func TestFieldValidate(t *testing.T) {
	cases := []struct {
		Pos     helpers.Pos
		Field   Field
		Version Version
		Error   error
	}{
		{
			Pos:     helpers.Mark(),
			Field:   Field{Name: "src", Type: 8, Length: 4, Data: []byte{10, 0, 0, 1}},
			Version: V9,
		}, {
			Pos:     helpers.Mark(),
			Field:   Field{Name: "src", Type: 8, Length: 4, Data: []byte{10, 0, 0, 1}},
			Version: V10,
		}, {
			Pos:     helpers.Mark(),
			Field:   Field{Name: "app", Type: 0x8001, Length: 2, EnterpriseNumber: 9, Data: []byte{0, 1}},
			Version: V10,
		}, {
			Pos:     helpers.Mark(),
			Field:   Field{Name: "app", Type: 0x8001, Length: 2, EnterpriseNumber: 9, Data: []byte{0, 1}},
			Version: V9,
			Error:   ErrUnsupportedFieldKind,
		}, {
			Pos:     helpers.Mark(),
			Field:   Field{Name: "app", Type: 1, Length: 2, EnterpriseNumber: 9, Data: []byte{0, 1}},
			Version: V9,
			Error:   ErrUnsupportedFieldKind,
		}, {
			Pos:     helpers.Mark(),
			Field:   Field{Name: "app", Type: 0x8001, Length: 2, Data: []byte{0, 1}},
			Version: V10,
			Error:   ErrValidation,
		}, {
			Pos:     helpers.Mark(),
			Field:   Field{Name: "name", Type: 96, Length: VariableLength},
			Version: V10,
			Error:   ErrUnsupportedFieldKind,
		}, {
			Pos:     helpers.Mark(),
			Field:   Field{Name: "name", Type: 96, Length: VariableLength},
			Version: V9,
			Error:   ErrUnsupportedFieldKind,
		}, {
			Pos:     helpers.Mark(),
			Field:   Field{Name: "src", Type: 8, Length: 4, Data: []byte{10, 0, 0}},
			Version: V10,
			Error:   ErrValidation,
		}, {
			Pos:     helpers.Mark(),
			Field:   Field{Name: "src", Type: 8, Length: 0},
			Version: V10,
			Error:   ErrValidation,
		}, {
			Pos:     helpers.Mark(),
			Field:   Field{Type: 8, Length: 1, Data: []byte{1}},
			Version: V10,
			Error:   ErrValidation,
		},
	}
	for _, tc := range cases {
		err := tc.Field.Validate(tc.Version)
		if tc.Error == nil && err != nil {
			t.Errorf("%sValidate() error:\n%+v", tc.Pos, err)
		} else if tc.Error != nil && !errors.Is(err, tc.Error) {
			t.Errorf("%sValidate() error %v, expected %v", tc.Pos, err, tc.Error)
		}
	}
}

func TestValidateFieldsDuplicate(t *testing.T) {
	fields := []Field{
		{Name: "a", Type: 1, Length: 1, Data: []byte{0}},
		{Name: "a", Type: 2, Length: 1, Data: []byte{0}},
	}
	if err := ValidateFields(V10, fields); !errors.Is(err, ErrValidation) {
		t.Fatalf("ValidateFields() error %v, expected ErrValidation", err)
	}
	if err := ValidateFields(V10, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("ValidateFields(nil) error %v, expected ErrValidation", err)
	}
}

func TestFieldConfiguration(t *testing.T) {
	cases := []struct {
		Pos      helpers.Pos
		JSON     string
		Expected Field
		Error    bool
	}{
		{
			Pos:  helpers.Mark(),
			JSON: `{"name": "src", "type": 8, "length": 4, "data": [16, 0, 0, 1]}`,
			Expected: Field{
				Name: "src", Type: 8, Length: 4, Data: []byte{16, 0, 0, 1},
			},
		}, {
			Pos:  helpers.Mark(),
			JSON: `{"name": "sourceTransportPort", "length": 2}`,
			Expected: Field{
				Name: "sourceTransportPort", Type: 7, Length: 2, Data: []byte{0, 0},
			},
		}, {
			Pos:  helpers.Mark(),
			JSON: `{"name": "app", "type": 1, "length": 2, "enterprise_number": 9, "data": [0, 1]}`,
			Expected: Field{
				Name: "app", Type: 0x8001, Length: 2, EnterpriseNumber: 9, Data: []byte{0, 1},
			},
		}, {
			Pos:   helpers.Mark(),
			JSON:  `{"name": "src", "type": 8, "length": 1, "data": [256]}`,
			Error: true,
		}, {
			Pos:   helpers.Mark(),
			JSON:  `{"name": "src", "type": 8, "length": 1, "unknown": true}`,
			Error: true,
		}, {
			Pos:   helpers.Mark(),
			JSON:  `{"name": "mystery", "length": 1}`,
			Error: true,
		},
	}
	for _, tc := range cases {
		var fc FieldConfiguration
		err := json.Unmarshal([]byte(tc.JSON), &fc)
		var got Field
		if err == nil {
			got, err = fc.Field()
		}
		if err != nil && !tc.Error {
			t.Errorf("%sField() error:\n%+v", tc.Pos, err)
			continue
		} else if err == nil && tc.Error {
			t.Errorf("%sField() did not error", tc.Pos)
			continue
		} else if tc.Error {
			if !errors.Is(err, ErrValidation) {
				t.Errorf("%sField() error %v, expected ErrValidation", tc.Pos, err)
			}
			continue
		}
		if diff := helpers.Diff(got, tc.Expected); diff != "" {
			t.Errorf("%sField() (-got, +want):\n%s", tc.Pos, diff)
		}
	}
}

func TestFieldConfigurationMarshal(t *testing.T) {
	fc := FieldConfiguration{Name: "src", Type: 8, Length: 2, Data: []byte{1, 2}}
	got, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("json.Marshal() error:\n%+v", err)
	}
	expected := `{"name":"src","type":8,"length":2,"enterprise_number":0,"data":[1,2]}`
	if diff := helpers.Diff(string(got), expected); diff != "" {
		t.Fatalf("json.Marshal() (-got, +want):\n%s", diff)
	}
}

func TestWellKnownType(t *testing.T) {
	if got, ok := WellKnownType("SourceIPv4Address"); !ok || got != 8 {
		t.Errorf("WellKnownType(SourceIPv4Address) = %d, %v", got, ok)
	}
	if _, ok := WellKnownType("nothing"); ok {
		t.Error("WellKnownType(nothing) found something")
	}
}
