// Package event owns the per-event object graph: tracks, calorimeter
// clusters and the hits they contain.
//
// Objects live in an Event arena and are referenced by stable integer
// handles (TrackID, ClusterID) assigned in creation order. Cross-references
// between tracks (parent, sibling, daughter) and between tracks and clusters
// are stored as handles, never as pointers into another object.
//
// Association state is mutated only through Event.AddTrackClusterAssociation,
// which keeps the track and cluster sides of the link consistent.
package event
