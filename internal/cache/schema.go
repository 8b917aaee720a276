package cache

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const deviceControlSchemaURL = "petfeeder://device-control.schema.json"

// Persisted layout of the "deviceControl" entry. Extra fields (such as
// server-assigned "_id" on entries) are tolerated.
const deviceControlSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["deviceID", "autoStatus", "schedule"],
  "properties": {
    "deviceID": {"type": "string", "minLength": 1},
    "autoStatus": {"enum": [0, 1]},
    "schedule": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["time", "enabled"],
        "properties": {
          "time": {"type": "string", "pattern": "^([01]?[0-9]|2[0-3]):[0-5][0-9]$"},
          "enabled": {"type": "boolean"},
          "_id": {"type": "string"}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func deviceControlValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(deviceControlSchemaURL, strings.NewReader(deviceControlSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile(deviceControlSchemaURL)
	})
	return compiledSchema, schemaErr
}

func validateDeviceControl(raw []byte) error {
	sch, err := deviceControlValidator()
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return sch.Validate(doc)
}
