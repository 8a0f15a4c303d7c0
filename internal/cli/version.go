package cli

// Version is the CLI version string.
const Version = "0.1.0"
