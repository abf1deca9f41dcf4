// Package relay rewrites inbound gateway topics to canonical outbound
// topics and prepares the republished payload.
//
// Rules pair a source regex with a target template; the first matching
// rule wins. Topics that would land back on a relay target are detected
// so the pipeline can skip them at ingest and not loop.
package relay
