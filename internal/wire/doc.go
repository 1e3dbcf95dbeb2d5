// Package wire is the binary term codec used by the admin surface.
//
// Every term is one TLV field: id(u16) type(u8) len(u32), big endian. The id
// is the term's position within its sequence. Lists nest their items as
// encoded fields inside the value.
package wire
