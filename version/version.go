package version

// Version is overridden at build time with -ldflags "-X pruneware/version.Version=...".
var Version = "dev"
