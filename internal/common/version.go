package common

// Version is the application version, overridable at build time via
// -ldflags "-X github.com/jerilmartin/infini8seo-sub000/internal/common.Version=..."
var Version = "0.1.0"
