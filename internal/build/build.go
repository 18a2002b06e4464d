package build

// Version is overridden at build time via -ldflags.
var Version = "v0.0.0-dev"
