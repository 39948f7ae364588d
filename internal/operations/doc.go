// Package operations is the static catalog of operation kinds a column
// configuration can carry. The catalog is fixed at build time; callers read
// it through List, LookupByKey, Available and ParseKind.
package operations
