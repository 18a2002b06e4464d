package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/swarmscore/swarmscore/internal/events"
	"github.com/swarmscore/swarmscore/internal/ledger"
)

var log = logging.Logger("registry")

var (
	// ErrUnknownIdentity rejects self-reports from identities absent
	// from the current membership snapshot.
	ErrUnknownIdentity = errors.New("identity not in current membership")

	ErrNotFound = errors.New("identity not found")
)

// Route is one pollable entry of the route table.
type Route struct {
	Identity string `json:"identity"`
	UID      int    `json:"uid"`
	Address  string `json:"address"`
	WorkerID string `json:"worker_id"`
}

// Worker is the dashboard view of a registered node.
type Worker struct {
	Identity string    `json:"identity"`
	UID      int       `json:"uid"`
	Address  string    `json:"address,omitempty"`
	WorkerID string    `json:"worker_id,omitempty"`
	Stake    float64   `json:"stake"`
	LastSeen time.Time `json:"last_seen,omitempty"`
	Routable bool      `json:"routable"`
}

type member struct {
	uid          int
	stake        float64
	address      string
	workerID     string
	lastSeen     time.Time
	missingSince time.Time // zero while present in the latest snapshot
}

type registryConfig struct {
	eventLog *events.Log
}

type Option func(*registryConfig)

func WithEventLog(l *events.Log) Option {
	return func(c *registryConfig) {
		c.eventLog = l
	}
}

// Registry maps node identities to reachable addresses, merging the
// external membership snapshot with self-reported registrations. All
// state is owned by the service object and guarded by its lock.
type Registry struct {
	mu       sync.RWMutex
	graceTTL time.Duration
	members  map[string]*member
	eventLog *events.Log
}

func New(graceTTL time.Duration, opts ...Option) *Registry {
	cfg := &registryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Registry{
		graceTTL: graceTTL,
		members:  make(map[string]*member),
		eventLog: cfg.eventLog,
	}
}

// SyncMembership merges an external membership snapshot. New identities
// are added without an address; identities missing from the snapshot
// are tombstoned and removed once they have been absent for longer than
// the grace TTL. Removal happens here, never mid scoring cycle. The
// identities removed this sync are returned so the caller can purge
// their telemetry.
func (r *Registry) SyncMembership(snapshot []ledger.Member) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(snapshot))

	for _, m := range snapshot {
		seen[m.Identity] = struct{}{}

		existing, ok := r.members[m.Identity]
		if !ok {
			r.members[m.Identity] = &member{uid: m.UID, stake: m.Stake, address: m.Address}
			log.Debugf("New member %s (uid %d)", m.Identity, m.UID)
			continue
		}

		existing.uid = m.UID
		existing.stake = m.Stake
		existing.missingSince = time.Time{}
		// the ledger address only fills a gap; self-reports win
		if existing.address == "" && m.Address != "" {
			existing.address = m.Address
		}
	}

	var removed []string
	for identity, mem := range r.members {
		if _, ok := seen[identity]; ok {
			continue
		}
		if mem.missingSince.IsZero() {
			mem.missingSince = now
			continue
		}
		if now.Sub(mem.missingSince) > r.graceTTL {
			delete(r.members, identity)
			removed = append(removed, identity)
		}
	}

	for _, identity := range removed {
		log.Infof("Member %s removed after grace period", identity)
		if r.eventLog != nil {
			r.eventLog.Append(identity, events.SeverityInfo, "removed from membership after grace period")
		}
	}

	return removed
}

// Register handles an inbound self-report from a node. Last writer
// wins.
func (r *Registry) Register(identity, address, workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mem, ok := r.members[identity]
	if !ok {
		if r.eventLog != nil {
			r.eventLog.Append(identity, events.SeverityWarn, "registration rejected: not in current membership")
		}
		return fmt.Errorf("registering %s: %w", identity, ErrUnknownIdentity)
	}

	mem.address = address
	mem.workerID = workerID
	mem.lastSeen = time.Now().UTC()

	log.Debugf("Registered %s at %s (worker %s)", identity, address, workerID)

	return nil
}

// Routes returns the pollable members ordered by slot index.
func (r *Registry) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]Route, 0, len(r.members))
	for identity, mem := range r.members {
		if mem.address == "" {
			continue
		}
		routes = append(routes, Route{
			Identity: identity,
			UID:      mem.uid,
			Address:  mem.address,
			WorkerID: mem.workerID,
		})
	}

	sort.Slice(routes, func(i, j int) bool { return routes[i].UID < routes[j].UID })

	return routes
}

// Workers returns every known member, routable or not, for the
// dashboard.
func (r *Registry) Workers() []Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workers := make([]Worker, 0, len(r.members))
	for identity, mem := range r.members {
		workers = append(workers, Worker{
			Identity: identity,
			UID:      mem.uid,
			Address:  mem.address,
			WorkerID: mem.workerID,
			Stake:    mem.stake,
			LastSeen: mem.lastSeen,
			Routable: mem.address != "" && mem.missingSince.IsZero(),
		})
	}

	sort.Slice(workers, func(i, j int) bool { return workers[i].UID < workers[j].UID })

	return workers
}

// Resolve returns the registered address of an identity.
func (r *Registry) Resolve(identity string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mem, ok := r.members[identity]
	if !ok || mem.address == "" {
		return "", fmt.Errorf("resolving %s: %w", identity, ErrNotFound)
	}
	return mem.address, nil
}
