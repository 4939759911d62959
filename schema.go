package xgbmerge

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema describes the parts of an XGBoost JSON model the parser
// depends on. Everything else is passed through untouched.
const documentSchema = `{
  "type": "object",
  "required": ["learner", "version"],
  "properties": {
    "version": {"type": "array", "items": {"type": "integer"}},
    "learner": {
      "type": "object",
      "required": ["gradient_booster"],
      "properties": {
        "learner_model_param": {"type": "object"},
        "gradient_booster": {
          "type": "object",
          "required": ["name", "model"],
          "properties": {
            "name": {"enum": ["gbtree"]},
            "model": {
              "type": "object",
              "required": ["gbtree_model_param", "trees"],
              "properties": {
                "gbtree_model_param": {
                  "type": "object",
                  "required": ["num_trees", "num_parallel_tree"],
                  "properties": {
                    "num_trees": {"type": "string", "pattern": "^[0-9]+$"},
                    "num_parallel_tree": {"type": "string", "pattern": "^[0-9]+$"}
                  }
                },
                "trees": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "required": ["id"],
                    "properties": {"id": {"type": "integer", "minimum": 0}}
                  }
                },
                "tree_info": {"type": "array", "items": {"type": "integer", "minimum": 0}},
                "iteration_indptr": {"type": "array", "items": {"type": "integer", "minimum": 0}}
              }
            }
          }
        }
      }
    }
  }
}`

// schemaFields are the names whose absence means the document comes from a
// model format this package does not understand, rather than a broken one.
var schemaFields = map[string]bool{
	"version":            true,
	"gbtree_model_param": true,
	"num_trees":          true,
	"num_parallel_tree":  true,
}

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	if err != nil {
		panic(err)
	}
	return schema
}

// checkSchema validates a compact JSON document and classifies the first
// failures as ErrUnsupportedSchema or ErrMalformedDocument.
func checkSchema(document []byte) error {
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return malformed("invalid JSON: %v", err)
	}
	if result.Valid() {
		return nil
	}

	kind := ErrMalformedDocument
	var reasons []string
	for _, e := range result.Errors() {
		switch e.Type() {
		case "required":
			if name, _ := e.Details()["property"].(string); schemaFields[name] {
				kind = ErrUnsupportedSchema
			}
		case "enum":
			kind = ErrUnsupportedSchema
		}
		reasons = append(reasons, e.String())
	}
	return &DocumentError{Kind: kind, Reason: strings.Join(reasons, "; ")}
}
