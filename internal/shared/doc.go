// Package shared holds code used by more than one package that belongs to
// none of them. Its testutil subpackage records slog output so tests can
// assert on what was logged.
package shared
