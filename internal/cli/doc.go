// Package cli implements the command-line interface for notice-watch.
//
// The root command performs one check of the notice board: it fetches the
// list pages, compares them with the persisted seen set, emails a digest of
// new notices and saves the advanced state. The state subcommand prints the
// persisted state. Output is available as text or JSON.
package cli
