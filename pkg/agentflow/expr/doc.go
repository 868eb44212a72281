/*
Package expr implements the condition language used by agentflow transitions,
decisions and loops.

# Syntax

	<or>      := <and> { ('or' | '||') <and> }
	<and>     := <unary> { ('and' | '&&') <unary> }
	<unary>   := ('not' | '!') <unary> | <compare>
	<compare> := <operand> [ <op> <operand> ]
	<operand> := literal | path | '(' <or> ')'
	<op>      := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains' | custom

Literals are quoted strings ('a' or "a"), numbers, true, false and null.
A path is an identifier optionally followed by dotted field names
(user.tier); it resolves through nested maps. Unknown paths resolve to nil.

Expressions are parsed once with Compile and evaluated many times:

	prog, err := expr.Compile("count < 3 and status != 'failed'")
	ok, err := prog.Eval(expr.Map{"count": 1, "status": "ok"})

# Comparison rules

== and != compare numerically when both sides are numbers, otherwise by
their formatted string value. Ordering operators are numeric. contains is a
substring test on strings and a membership test on slices.

# Truthiness

A lone operand is tested for truthiness: nil, false, "", and numeric zero
are false; everything else is true.
*/
package expr
