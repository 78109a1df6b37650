// Package iconcache mirrors achievement icon assets into object storage.
//
// Icons are keyed by the hash of their provider reference, so repeated
// mirroring of the same definition set is a no-op. Mirroring is strictly
// best effort: the refresh coordinator logs failures and moves on, and a
// missing mirror never affects cached achievement data.
package iconcache
