/*
Package template expands ${name} placeholders in tool inputs.

Placeholders name a variable, optionally with dotted fields into nested
maps (${user.id}). Variables come from a Source, usually the merged view of
the calling branch:

	exp := template.NewExpander(template.WithMissing(template.MissingError))
	input, err := exp.ExpandValue(map[string]any{
	    "path":  "${save_dir}/${prefix}.json",
	    "limit": "${limit}",
	}, template.Map{"save_dir": "/tmp", "prefix": "run", "limit": 10})
	// input["path"] == "/tmp/run.json", input["limit"] == 10

A string that consists of exactly one placeholder is replaced by the raw
value, so numbers, lists and maps keep their type. Placeholders embedded in
longer strings are formatted with fmt.Sprint.

Expander is safe for concurrent use.
*/
package template
