// AngelaMos | 2026
// dto.go

package admin

type TenantStats struct {
	Users         int64            `json:"users" db:"users"`
	Organizations int64            `json:"organizations" db:"organizations"`
	Members       int64            `json:"members" db:"members"`
	Invitations   map[string]int64 `json:"invitations"`
	Subscriptions map[string]int64 `json:"subscriptions"`
}

type PurgeSessionsResponse struct {
	Deleted int64 `json:"deleted"`
}

type SystemStatsResponse struct {
	Database DependencyStatus[DBPoolStats]    `json:"database"`
	Redis    DependencyStatus[RedisPoolStats] `json:"redis"`
	Runtime  RuntimeStats                     `json:"runtime"`
}

// DependencyStatus pairs a liveness check with the pool counters of the
// same dependency. Stats is omitted when no source is wired.
type DependencyStatus[T any] struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	Stats   *T     `json:"stats,omitempty"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
	MaxIdleClosed      int64  `json:"max_idle_closed"`
	MaxLifetimeClosed  int64  `json:"max_lifetime_closed"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	StaleConns uint32 `json:"stale_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}
