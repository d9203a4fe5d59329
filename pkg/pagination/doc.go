// Package pagination implements the incremental character list: pages are
// fetched on demand, appended in order, and the whole sequence restarts at
// page 1 whenever the filter changes.
//
// The API pages by number. A page that comes back empty ends the list; any
// other page yields the cursor page+1. Page 1 drives the initial load state,
// every later page drives the append state, so a failed "load more" never
// hides items already on screen.
//
// Example usage:
//
//	store := filter.NewStore()
//	engine := pagination.NewEngine(ramClient, store, pagination.DefaultConfig(), logger)
//
//	changes, cancel := store.Subscribe()
//	defer cancel()
//	go engine.Watch(ctx, changes)
//
//	// while the user scrolls
//	err := engine.Visible(ctx, lastVisibleIndex)
//
// The engine:
//   - Never retries on its own; Retry re-issues exactly the failed page
//   - Shares one in-flight request between callers asking for the same page
//   - Discards results requested under an older filter or before a Refresh
//   - Drops characters whose id is already in the list
package pagination
