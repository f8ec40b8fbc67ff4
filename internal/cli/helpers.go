package cli

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ProductKind = "product"
	WebhookKind = "webhook"

	jsonFormat = "json"
	yamlFormat = "yaml"
)

var (
	pluralKinds = map[string]string{
		ProductKind: "products",
		WebhookKind: "webhooks",
	}

	legalOutputTypes = []string{jsonFormat, yamlFormat}
)

// parseAndValidateKindId splits TYPE or TYPE/ID. The id is nil when absent.
func parseAndValidateKindId(arg string) (string, *int64, error) {
	kind, idStr, hasID := strings.Cut(arg, "/")
	kind = singular(kind)
	if _, ok := pluralKinds[kind]; !ok {
		return "", nil, fmt.Errorf("invalid resource kind: %s", kind)
	}
	if !hasID {
		return kind, nil, nil
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return "", nil, fmt.Errorf("invalid ID: %q", idStr)
	}
	return kind, &id, nil
}

func singular(kind string) string {
	for singular, plural := range pluralKinds {
		if kind == plural {
			return singular
		}
	}
	return kind
}

func plural(kind string) string {
	return pluralKinds[kind]
}
