// Package machine provides the machine registration catalogue for
// Shopfloor Core.
//
// A Machine is the durable registration of one monitored device: its
// provider type tag, enabled flag, poll interval and the opaque provider
// configuration blob. The monitor package owns everything that is live
// (handles, current state); this package owns everything that survives a
// restart.
//
// # Key Types
//
//   - Machine: one device registration (SQLite row)
//   - Repository: persistence interface (SQLite implementation provided)
//   - Registry: cached, thread-safe management layer over a Repository
//
// # Usage
//
//	repo := machine.NewSQLiteRepository(db.DB)
//	registry := machine.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	m := &machine.Machine{
//	    Name:           "Prusa MK4 - bench 2",
//	    Type:           "octoprint",
//	    Enabled:        true,
//	    PollIntervalMS: 1000,
//	    Config:         machine.Config{"base_url": "http://10.0.1.42", "api_key": "..."},
//	}
//	if err := registry.CreateMachine(ctx, m); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Reads are served from an
// in-memory cache of deep copies; all CRUD operations write through to
// the repository and update the cache.
package machine
