// Package dedup implements the content-addressed deduplication index.
//
// Every ingestion funnels through LookupOrReserve: a hash that maps to an
// existing asset short-circuits all processing, while a novel hash yields a
// reservation that serializes concurrent ingestions of identical bytes.
// Reservations expire so a crashed worker cannot permanently block a hash.
package dedup
