package operations

import (
	"fmt"
	"strings"

	apperrors "distconsole/internal/errors"
	"distconsole/pkg/contracts/domain"
)

// KindInfo is the registry metadata for one operation kind
type KindInfo struct {
	Kind  domain.OperationKind `json:"kind"`
	Label string               `json:"label"`
	// Code is the short badge shown next to a configured operation
	Code string `json:"code"`
}

var catalog = [...]KindInfo{
	{Kind: domain.OperationKindValue, Label: "Value", Code: "VAL"},
	{Kind: domain.OperationKindFilter, Label: "Filter", Code: "FILTER"},
	{Kind: domain.OperationKindExpression, Label: "Expression", Code: "EXP"},
}

// List returns every kind in display order
func List() []KindInfo {
	out := make([]KindInfo, len(catalog))
	copy(out, catalog[:])
	return out
}

// LookupByKey finds a kind by its key. Unknown keys report false.
func LookupByKey(key string) (KindInfo, bool) {
	for _, info := range catalog {
		if string(info.Kind) == key {
			return info, true
		}
	}
	return KindInfo{}, false
}

// Available returns the kinds not yet present, in display order
func Available(present []domain.OperationKind) []KindInfo {
	used := make(map[domain.OperationKind]struct{}, len(present))
	for _, k := range present {
		used[k] = struct{}{}
	}

	out := make([]KindInfo, 0, len(catalog))
	for _, info := range catalog {
		if _, ok := used[info.Kind]; !ok {
			out = append(out, info)
		}
	}
	return out
}

// ParseKind resolves user input to a kind. It accepts the key or the badge
// code in any case.
func ParseKind(s string) (domain.OperationKind, error) {
	needle := strings.TrimSpace(s)
	for _, info := range catalog {
		if strings.EqualFold(needle, string(info.Kind)) || strings.EqualFold(needle, info.Code) {
			return info.Kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownOperationKind, s)
}
