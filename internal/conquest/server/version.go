package server

// Version is the catalog server version reported by the version endpoint.
const Version = "0.1.0"
