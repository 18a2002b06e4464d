package telemetrydb

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("telemetrydb")

// Migrate copies every row from src into dst, identity by identity.
// Used to move historical document-layout rows into the flat layout.
// Counters outside CounterNames are dropped when dst is the flat
// layout; all rows themselves are preserved.
func Migrate(ctx context.Context, src, dst Store) (int64, error) {
	identities, err := src.Identities(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing source identities: %w", err)
	}

	var migrated int64
	for _, identity := range identities {
		rows, err := src.ListByIdentity(ctx, identity)
		if err != nil {
			return migrated, fmt.Errorf("listing rows for %s: %w", identity, err)
		}

		for _, row := range rows {
			if err := dst.Insert(ctx, row); err != nil {
				return migrated, fmt.Errorf("inserting row for %s: %w", identity, err)
			}
			migrated++
		}
	}

	log.Infof("Migrated %d telemetry rows across %d identities", migrated, len(identities))

	return migrated, nil
}
