// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"fmt"
	"reflect"
	"strconv"
)

type defaultParser interface {
	ParseDefault(string) error
}

// SetDefaults sets default values on a struct, based on the default
// annotation. Nested structs are handled recursively. It panics on a
// malformed annotation, which is a programming error.
func SetDefaults(data interface{}) {
	s := reflect.ValueOf(data).Elem()
	t := s.Type()

	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if !f.CanSet() {
			continue
		}

		v, ok := t.Field(i).Tag.Lookup("default")
		if !ok {
			if f.Kind() == reflect.Struct {
				SetDefaults(f.Addr().Interface())
			}
			continue
		}

		if parser, ok := f.Addr().Interface().(defaultParser); ok {
			if err := parser.ParseDefault(v); err != nil {
				panic(err)
			}
			continue
		}

		switch f.Kind() {
		case reflect.String:
			f.SetString(v)

		case reflect.Int, reflect.Int32, reflect.Int64:
			i, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				panic(err)
			}
			f.SetInt(i)

		case reflect.Bool:
			f.SetBool(v == "true")

		default:
			panic(fmt.Sprintf("unsupported default on %s (%s)", t.Field(i).Name, f.Type()))
		}
	}
}
