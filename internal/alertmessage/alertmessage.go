// Package alertmessage builds the human-readable alert sentence for every
// recognized testType, collapsing the per-test-type switch of a naive
// implementation into a lookup table keyed by the testType string that
// holds each type's verb phrase.
package alertmessage

import (
	"fmt"

	"github.com/cito-data/test-engine/internal/testtype"
)

var verbs = map[string]string{
	testtype.ColumnFreshness:               "Freshness deviation for column",
	testtype.ColumnDistribution:            "Distribution deviation for column",
	testtype.ColumnCardinality:             "Cardinality deviation for column",
	testtype.ColumnNullness:                "Nullness deviation for column",
	testtype.ColumnUniqueness:              "Uniqueness deviation for column",
	testtype.MaterializationColumnCount:    "Column count deviation for materialization",
	testtype.MaterializationRowCount:       "Row count deviation for materialization",
	testtype.MaterializationFreshness:      "Freshness deviation for materialization",
	testtype.MaterializationSchemaChange:   "Schema change for materialization",
}

// Builtin builds the alert message for a built-in quantitative or
// qualitative test: a sentence naming the kind of deviation, a link
// back to the resource carrying targetResourceId and whether the target is
// a column, and the fully qualified resource name.
func Builtin(baseURL, targetResourceID, databaseName, schemaName, materializationName, columnName, testType string) (string, error) {
	verb, ok := verbs[testType]
	if !ok {
		return "", fmt.Errorf("alertmessage: unhandled test type %q", testType)
	}

	resourceName := fmt.Sprintf("%s.%s.%s", databaseName, schemaName, materializationName)
	if columnName != "" {
		resourceName += "." + columnName
	}

	link := fmt.Sprintf("%s?targetResourceId=%s&ampisColumn=%t", baseURL, targetResourceID, columnName != "")

	return fmt.Sprintf("%s <%s|%s> detected", verb, link, resourceName), nil
}

// Custom builds the alert message for a custom test: custom tests have
// no fixed resource triple, only the metric name the user's SQL produced.
func Custom(baseURL, metricName string) string {
	return fmt.Sprintf("Deviation for metric <%s?metric=%s> detected", baseURL, metricName)
}
