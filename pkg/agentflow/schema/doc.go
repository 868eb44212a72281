// Package schema validates message payloads against named shapes.
//
// A Schema accepts one JSON type. Arrays constrain their elements with
// Items; objects list Properties, Required keys and whether unknown keys
// are allowed:
//
//	reg := schema.NewRegistry()
//	reg.Register("plan", schema.ObjectOf(map[string]*schema.Schema{
//	    "steps": schema.ArrayOf(schema.Of(schema.String)),
//	}))
//	err := reg.Validate("plan", msg.Payload)
//	// validation error on $.steps[1]: expected string
//
// Payloads are compared through their JSON form, so a float64 with no
// fractional part is an integer and structs are checked by their encoded
// field names.
package schema
