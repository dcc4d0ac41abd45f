// Package codec owns byte <-> display conversions.
//
// Ownership boundary:
// - hex parsing/formatting (HexToBytes, BytesToHex, ParseHexData)
// - view mode rendering (Decode/Encode for text, hex, bin)
// - the closed text encoding catalog
// - display line splitting
//
// Everything here is a pure function and safe for concurrent use.
package codec
