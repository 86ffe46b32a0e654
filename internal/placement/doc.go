// Package placement assigns clusters of items to beat slots.
//
// Assignment runs in two passes over the effective slot range, sharing one
// Occupancy:
//
//  1. Pin pass: explicit slot requests are honored first, in cluster order.
//     A request that is out of range or already taken is rejected and the
//     item falls back to chronological placement.
//  2. Chronological pass: every cluster without a successful pin is mapped to
//     a preferred slot from its representative timestamp and then moved to
//     the nearest free slot using the search order of Candidate.
//
// Capacity is checked before either pass; a failing assignment never
// returns partial placements.
package placement
