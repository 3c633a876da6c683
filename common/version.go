package common

// Version is the current parley release version. Overridden at build time via
// -ldflags "-X parley/common.Version=...".
var Version = "0.4.0"
