// Package schema checks message payloads against operation types.
//
// Every type implements domain.Type. Native types constrain the scalar of a
// value; records additionally constrain its children, each field with a
// cardinality range:
//
//	order := schema.Record(schema.Void(), schema.Fields{
//	    "id":    schema.Required(schema.Long()),
//	    "items": schema.Many(schema.String()),
//	    "note":  schema.Optional(schema.String()),
//	})
//
//	op := domain.NewRequestResponse("place", order, schema.Bool(), nil)
//
// Records are closed by default: children not listed in the fields are
// rejected. Open() lifts that restriction.
//
// Record fields can also be written as type strings, which is how they are
// serialized:
//
//	fields, err := schema.ParseFields(map[string]string{
//	    "id":    "long",
//	    "items": "string*",
//	    "note":  "string?",
//	})
//
// Custom types wrap a function for checks the built-in types cannot express.
package schema
