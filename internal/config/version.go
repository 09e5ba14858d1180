package config

// Version is the recall binary version.
// Set at build time via: -ldflags "-X github.com/persistorai/recall/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
