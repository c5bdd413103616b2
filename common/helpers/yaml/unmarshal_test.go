// SPDX-FileCopyrightText: 2023 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package yaml_test

import (
	"testing"
	"testing/fstest"

	"ipfixgen/common/helpers"
	"ipfixgen/common/helpers/yaml"
)

func TestUnmarshalWithInclude(t *testing.T) {
	fsys := fstest.MapFS{
		"base.yaml": &fstest.MapFile{Data: []byte(`---
http: !include "http.yaml"
ipfix:
  seed: 42
  nested: !include "nested/ipfix.yaml"
.hidden:
  ignored: true
`)},
		"http.yaml": &fstest.MapFile{Data: []byte(`---
listen: 127.0.0.1:8080
`)},
		"nested/ipfix.yaml": &fstest.MapFile{Data: []byte(`---
"":
  - queue-size: 100
  - scheduling-interval: 10ms
`)},
	}
	var got any
	if err := yaml.UnmarshalWithInclude(fsys, "base.yaml", &got); err != nil {
		t.Fatalf("UnmarshalWithInclude() error:\n%+v", err)
	}
	expected := map[string]any{
		"http": map[string]any{"listen": "127.0.0.1:8080"},
		"ipfix": map[string]any{
			"seed": 42,
			"nested": []any{
				map[string]any{"queue-size": 100},
				map[string]any{"scheduling-interval": "10ms"},
			},
		},
	}
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Fatalf("UnmarshalWithInclude() (-got, +want):\n%s", diff)
	}
}

func TestUnmarshalWithIncludeErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"missing.yaml": &fstest.MapFile{Data: []byte(`---
http: !include "http.yaml"
`)},
		"content.yaml": &fstest.MapFile{Data: []byte(`---
http: !include
  listen: 127.0.0.1:8080
`)},
	}
	for _, name := range []string{"missing.yaml", "content.yaml", "nothing.yaml"} {
		var got any
		if err := yaml.UnmarshalWithInclude(fsys, name, &got); err == nil {
			t.Errorf("UnmarshalWithInclude(%q) did not error", name)
		}
	}
}
