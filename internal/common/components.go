package common

const (
	ComponentService      = "service"
	ComponentRPC          = "rpc"
	ComponentStore        = "store"
	ComponentIngest       = "ingest"
	ComponentBackfill     = "backfill"
	ComponentStream       = "stream"
	ComponentReconcile    = "reconcile"
	ComponentLeader       = "leader"
	ComponentHousekeeping = "housekeeping"
	ComponentAPI          = "api"
)

var AllComponents = map[string]struct{}{
	ComponentService:      {},
	ComponentRPC:          {},
	ComponentStore:        {},
	ComponentIngest:       {},
	ComponentBackfill:     {},
	ComponentStream:       {},
	ComponentReconcile:    {},
	ComponentLeader:       {},
	ComponentHousekeeping: {},
	ComponentAPI:          {},
}
