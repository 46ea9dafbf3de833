// Package protocol owns the SDAP wire contract.
//
// Ownership boundary:
// - outbound request envelopes, one type per operation kind
// - inbound envelopes decoded once into a closed set of Go types
// - the op mapping (pointer -> set) shared by update and changes messages
//
// Every envelope is a JSON object carrying a "type" discriminator. Decode
// reads the discriminator once; consumers dispatch with a type switch.
package protocol
