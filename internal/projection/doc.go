// Package projection compiles GraphQL selections into projectors: functions
// that copy only the selected fields, plus the fields other fields require,
// out of a source message.
//
// A selection is first built into a projection tree. Each position in the
// tree is a TypeContainer holding one TypeNode per concrete type the value
// may have. Requirements registered for a field are merged into the node
// whenever the field is selected, even if the client never asks for the
// required fields. Trees are sealed before they are compiled, and a sealed
// tree is immutable and safe to share.
//
// Compiled projectors are cached per execution scope by selection identity
// and root type; see Cache.
package projection
