// Package utils provides loose-type conversions for documents whose schema is
// not enforced by the store. Legacy records written by older clients carry
// numbers as strings, booleans as 0/1 and timestamps in several encodings;
// these helpers normalize them without failing the read.
package utils
