package version

// Version is the crawler release reported at startup and by --version.
const Version = "0.3.0"
