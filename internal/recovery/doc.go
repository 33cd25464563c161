// Package recovery associates tracks left without a cluster after the main
// reconstruction with nearby calorimeter clusters.
//
// A pass runs in two phases. Generator scans every eligible (track, cluster)
// pair through a cascade of cuts (longitudinal position, energy-momentum
// chi, helix layers crossed, geometric proximity) and records each survivor
// in a Ledger with its closest-approach score. Resolve then drains the ledger
// greedily: the globally lowest-scoring pair is committed, that track's
// candidates are dropped, and the process repeats. Clusters are never
// removed, so several tracks may end up on the same cluster.
//
// Ties on score are broken by track ID and then cluster ID, making the
// outcome independent of map iteration order.
//
// A pass is single threaded and synchronous. It owns the event for its
// duration; nothing else may mutate tracks or clusters concurrently.
package recovery
