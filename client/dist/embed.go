package clientdist

import _ "embed"

// TabsyncJS is the thin client JavaScript bundle.
//
// It is served by the bridge at "<prefix>/client.js".
//go:embed tabsync.js
var TabsyncJS []byte
