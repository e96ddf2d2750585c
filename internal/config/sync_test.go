// SPDX-License-Identifier: MPL-2.0

package config

import (
	"reflect"
	"strings"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// These tests keep the Go struct tags and the CUE schema field names aligned.

func cueFields(t *testing.T, val cue.Value) map[string]bool {
	t.Helper()

	fields := make(map[string]bool)
	iter, err := val.Fields(cue.Definitions(false), cue.Optional(true))
	if err != nil {
		t.Fatalf("failed to iterate CUE fields: %v", err)
	}
	for iter.Next() {
		sel := iter.Selector()
		if sel.LabelType().IsHidden() || sel.IsDefinition() {
			continue
		}
		fields[strings.TrimSuffix(sel.String(), "?")] = true
	}
	return fields
}

func goFields(typ reflect.Type) map[string]bool {
	fields := make(map[string]bool)
	for i := range typ.NumField() {
		tag := typ.Field(i).Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		fields[tag] = true
	}
	return fields
}

func assertSameFields(t *testing.T, where string, cueSide, goSide map[string]bool) {
	t.Helper()
	for name := range goSide {
		if !cueSide[name] {
			t.Errorf("%s: Go field %q missing from the CUE schema", where, name)
		}
	}
	for name := range cueSide {
		if !goSide[name] {
			t.Errorf("%s: CUE field %q has no Go counterpart", where, name)
		}
	}
}

func TestSchemaSync(t *testing.T) {
	t.Parallel()

	ctx := cuecontext.New()
	schema := ctx.CompileString(configSchema)
	if schema.Err() != nil {
		t.Fatalf("schema does not compile: %v", schema.Err())
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	assertSameFields(t, "#Config", cueFields(t, def), goFields(reflect.TypeFor[Config]()))
	assertSameFields(t, "#Config.staging", cueFields(t, def.LookupPath(cue.MakePath(cue.Str("staging").Optional()))), goFields(reflect.TypeFor[StagingConfig]()))
	assertSameFields(t, "#Config.log", cueFields(t, def.LookupPath(cue.MakePath(cue.Str("log").Optional()))), goFields(reflect.TypeFor[LogConfig]()))
}
