package telemetry

import (
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"
)

// EnableDBTracing installs the otelgorm plugin so every query becomes a span
// under the active trace
func EnableDBTracing(db *gorm.DB, dbName string) error {
	plugin := otelgorm.NewPlugin(
		otelgorm.WithDBName(dbName),
		otelgorm.WithoutQueryVariables(),
	)
	if err := db.Use(plugin); err != nil {
		return fmt.Errorf("failed to install otelgorm plugin: %w", err)
	}
	return nil
}
