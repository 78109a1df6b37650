// Package achievements exposes the cached achievement data over a read-only
// HTTP API.
//
// The service queries the store's tables directly; writes only happen
// through refresh batches (see feature/refresh). Completion is derived per
// request from the definition and unlock sets, honoring the external
// capstone override when one is configured.
package achievements
